package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/rakshak/internal/model"
)

// PublicDataSource is the Public Data Loader. *service.DataLoader satisfies it.
type PublicDataSource interface {
	LoadAll(ctx context.Context) *model.PublicData
	Collection(ctx context.Context, name string) ([]model.Resource, error)
}

// PublicHandler serves the read-only resource collections (safety tips,
// helplines). No sign-in needed.
type PublicHandler struct {
	data   PublicDataSource
	logger *slog.Logger
}

func NewPublicHandler(data PublicDataSource, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{data: data, logger: logger}
}

// HandleAll returns every public collection.
//
// HTTP: GET /api/public
//
// Never fails: when the store cannot be read the body carries the fallback
// set with "fallback": true.
func (h *PublicHandler) HandleAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.LoadAll(r.Context()))
}

// HandleCollection returns one collection.
//
// HTTP: GET /api/public/{collection}
// Example: GET /api/public/safety_tips
func (h *PublicHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")

	items, err := h.data.Collection(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}
