// Package events streams workshop board changes to browsers over websockets.
//
// The Hub groups clients into one room per workshop. Board sessions publish
// their changes to the Hub, which numbers them per room and fans them out.
// Clients only listen; they can ask for a fresh full state with a "sync"
// message.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/collagist/collagist/backend-go/internal/typeid"
	"github.com/collagist/collagist/backend-go/internal/workshop"
)

// StateFunc returns the current state of an open workshop, or false when
// the workshop is not loaded.
type StateFunc func(key string) (any, bool)

type room struct {
	key     string
	seq     int64
	clients map[string]*Client // clientID -> client
}

type Hub struct {
	state  StateFunc
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room // workshop key -> room

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	done       chan struct{}
}

func NewHub(state StateFunc, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		state:      state,
		logger:     logger,
		rooms:      make(map[string]*room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop disconnects every client and waits for Run to return.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish implements workshop.Publisher.
func (h *Hub) Publish(key string, changes []workshop.Change) {
	payload, err := json.Marshal(changes)
	if err != nil {
		h.logger.Error("marshal changes", "error", err)
		return
	}

	h.mu.Lock()
	r, ok := h.rooms[key]
	if !ok {
		h.mu.Unlock()
		return
	}
	r.seq++
	msg := &Message{
		Type:     TypeChanges,
		ID:       typeid.NewEventID(),
		Workshop: key,
		Seq:      r.seq,
		Payload:  payload,
	}
	clients := r.snapshot()
	h.mu.Unlock()

	for _, c := range clients {
		c.Send(msg)
	}
}

// Clients returns how many clients are connected to key.
func (h *Hub) Clients(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[key]; ok {
		return len(r.clients)
	}
	return 0
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	r, ok := h.rooms[client.Workshop]
	if !ok {
		r = &room{key: client.Workshop, clients: make(map[string]*Client)}
		h.rooms[client.Workshop] = r
	}
	r.clients[client.ClientID] = client
	seq := r.seq
	h.mu.Unlock()

	welcome := WelcomePayload{ClientID: client.ClientID, Seq: seq}
	if h.state != nil {
		if st, ok := h.state(client.Workshop); ok {
			welcome.State = st
		}
	}
	payload, _ := json.Marshal(welcome)
	client.Send(&Message{Type: TypeWelcome, Workshop: client.Workshop, ClientID: client.ClientID, Seq: seq, Payload: payload})

	h.logger.Info("client joined", "client", client.ClientID, "workshop", client.Workshop)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	r, ok := h.rooms[client.Workshop]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := r.clients[client.ClientID]; !ok {
		h.mu.Unlock()
		return
	}

	delete(r.clients, client.ClientID)
	client.close()

	if len(r.clients) == 0 {
		delete(h.rooms, client.Workshop)
	}
	h.mu.Unlock()

	h.logger.Info("client left", "client", client.ClientID, "workshop", client.Workshop)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, r := range h.rooms {
		for _, c := range r.clients {
			c.close()
		}
		delete(h.rooms, key)
	}
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	switch msg.Type {
	case TypeSync:
		h.handleSync(sender)
	default:
		h.logger.Warn("unknown message type", "type", msg.Type, "client", sender.ClientID)
		payload, _ := json.Marshal(ErrorPayload{Message: "unknown message type " + msg.Type})
		sender.Send(&Message{Type: TypeError, Payload: payload})
	}
}

func (h *Hub) handleSync(sender *Client) {
	h.mu.RLock()
	var seq int64
	if r, ok := h.rooms[sender.Workshop]; ok {
		seq = r.seq
	}
	h.mu.RUnlock()

	var st any
	if h.state != nil {
		st, _ = h.state(sender.Workshop)
	}
	payload, _ := json.Marshal(st)
	sender.Send(&Message{Type: TypeState, Workshop: sender.Workshop, Seq: seq, Payload: payload})
}

func (r *room) snapshot() []*Client {
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

var _ workshop.Publisher = (*Hub)(nil)
