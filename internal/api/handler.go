// Package api exposes workshop boards over HTTP and websockets.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/collagist/collagist/backend-go/internal/asset"
	"github.com/collagist/collagist/backend-go/internal/catalog"
	"github.com/collagist/collagist/backend-go/internal/contour"
	"github.com/collagist/collagist/backend-go/internal/events"
	"github.com/collagist/collagist/backend-go/internal/export"
	"github.com/collagist/collagist/backend-go/internal/layout"
	"github.com/collagist/collagist/backend-go/internal/silhouette"
	"github.com/collagist/collagist/backend-go/internal/workshop"
)

const maxCommandSize = 16 << 10

// Boards opens workshop sessions by key.
type Boards interface {
	Open(ctx context.Context, key string) (*workshop.Session, error)
}

// Silhouettes resolves image outlines by id.
type Silhouettes interface {
	Get(ctx context.Context, id string) (*silhouette.Data, error)
}

type Handler struct {
	boards      Boards
	silhouettes Silhouettes
	hub         *events.Hub
	origins     []string
	logger      *slog.Logger
}

// NewHandler creates the API handler. origins are the allowed browser
// origins for the websocket feed, e.g. "http://localhost:5173".
func NewHandler(boards Boards, silhouettes Silhouettes, hub *events.Hub, origins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		boards:      boards,
		silhouettes: silhouettes,
		hub:         hub,
		origins:     originPatterns(origins),
		logger:      logger,
	}
}

// Register mounts the routes on r. edit guards the mutating routes.
func (h *Handler) Register(r *mux.Router, edit mux.MiddlewareFunc) {
	exportHandler := export.NewHandler(h.boards, h.silhouettes)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/workshops/{key}", h.GetWorkshop).Methods("GET")
	api.HandleFunc("/workshops/{key}/overlaps", h.Overlaps).Methods("GET")
	api.HandleFunc("/workshops/{key}/hit", h.Hit).Methods("GET")
	api.HandleFunc("/workshops/{key}/export.svg", exportHandler.ExportSVG).Methods("GET")
	api.HandleFunc("/silhouettes", h.GetSilhouette).Methods("GET")

	var apply http.Handler = http.HandlerFunc(h.ApplyCommand)
	if edit != nil {
		apply = edit(apply)
	}
	api.Handle("/workshops/{key}/commands", apply).Methods("POST", "OPTIONS")

	if h.hub != nil {
		r.HandleFunc("/ws/workshops/{key}", h.WebSocket)
	}
}

func (h *Handler) GetWorkshop(w http.ResponseWriter, r *http.Request) {
	session, err := h.boards.Open(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

func (h *Handler) ApplyCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCommandSize)

	var cmd workshop.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	session, err := h.boards.Open(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	res, err := session.Apply(r.Context(), cmd)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type overlapsResponse struct {
	Image       string   `json:"image"`
	Overlapping []string `json:"overlapping"`
}

func (h *Handler) Overlaps(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("image")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image is required"})
		return
	}

	session, err := h.boards.Open(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	ids, err := session.Overlapping(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, overlapsResponse{Image: id, Overlapping: ids})
}

type hitResponse struct {
	Image string `json:"image,omitempty"`
	Hit   bool   `json:"hit"`
}

func (h *Handler) Hit(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "x and y must be numbers"})
		return
	}

	session, err := h.boards.Open(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	id, ok := session.HitTest(x, y)
	writeJSON(w, http.StatusOK, hitResponse{Image: id, Hit: ok})
}

type silhouetteResponse struct {
	ID       string   `json:"id"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Points   [][2]int `json:"points"`
	ClipPath string   `json:"clipPath"`
	Polygon  string   `json:"polygon"`
}

func (h *Handler) GetSilhouette(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("image")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image is required"})
		return
	}

	data, err := h.silhouettes.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	points := make([][2]int, len(data.Boundary))
	for i, p := range data.Boundary {
		points[i] = [2]int{p.X, p.Y}
	}

	writeJSON(w, http.StatusOK, silhouetteResponse{
		ID:       data.ID,
		Width:    data.Width,
		Height:   data.Height,
		Points:   points,
		ClipPath: data.ClipPath(),
		Polygon:  data.PolygonPoints(),
	})
}

// WebSocket streams board changes for one workshop.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	// Load the board first so the welcome message carries its state.
	if _, err := h.boards.Open(r.Context(), key); err != nil {
		h.handleServiceError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Error("websocket accept", "error", err)
		return
	}

	client := events.NewClient(h.hub, conn, key, uuid.New().String())
	h.hub.Register(client)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workshop not found"})
	case errors.Is(err, layout.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
	case errors.Is(err, fs.ErrNotExist):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, layout.ErrInactive):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "image is not active"})
	case errors.Is(err, workshop.ErrInvalidCommand), errors.Is(err, asset.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, contour.ErrNoOpaquePixels):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": contour.ErrNoOpaquePixels.Error()})
	case errors.Is(err, silhouette.ErrDecodeFailure), errors.Is(err, catalog.ErrInvalidCatalog):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// originPatterns converts allowed origins to the host patterns the
// websocket library matches against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
