package export

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/collagist/collagist/backend-go/internal/catalog"
	"github.com/collagist/collagist/backend-go/internal/workshop"
)

// Boards opens workshop sessions by key.
type Boards interface {
	Open(ctx context.Context, key string) (*workshop.Session, error)
}

type Handler struct {
	boards      Boards
	silhouettes Silhouettes
}

func NewHandler(boards Boards, silhouettes Silhouettes) *Handler {
	return &Handler{boards: boards, silhouettes: silhouettes}
}

// ExportSVG handles GET /api/workshops/{key}/export.svg.
func (h *Handler) ExportSVG(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	session, err := h.boards.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			http.Error(w, "workshop not found", http.StatusNotFound)
			return
		}
		slog.Error("open workshop for export", "workshop", key, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	board := Board{Background: session.Background(), Placements: session.Placements()}

	var buf bytes.Buffer
	if err := Render(r.Context(), &buf, board, h.silhouettes); err != nil {
		slog.Error("render export", "workshop", key, "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Content-Disposition", `inline; filename="`+key+`.svg"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
