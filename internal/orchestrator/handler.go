package orchestrator

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"epg-encoder/internal/epgstation"
	"epg-encoder/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the run state over HTTP using go-chi.
type Handler struct {
	repo    Repository
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that reads from repo.
// Metrics may be nil to disable the /metrics route (e.g. in tests).
func NewHandler(repo Repository, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{repo: repo, log: log, metrics: m}
}

// Routes mounts the status endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/items", h.ListItems)
	r.Get("/items/{recorded_id}", h.GetItem)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler(func() {
			h.metrics.SetPendingItems(h.repo.PendingCount())
		}))
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ListItems handles GET /items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.repo.Snapshot())
}

// GetItem handles GET /items/{recorded_id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "recorded_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.log.Debug("invalid recorded id", slog.String("recorded_id", raw))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	st, ok := h.repo.Get(epgstation.RecordedID(id))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, st)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode status response", slog.String("error", err.Error()))
	}
}
