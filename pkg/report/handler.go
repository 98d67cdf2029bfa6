package report

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tumaini/pesaflow/pkg/config"
	"github.com/tumaini/pesaflow/pkg/httpx"
	"github.com/tumaini/pesaflow/pkg/model"
	"github.com/tumaini/pesaflow/pkg/store"
)

// Handler exposes the four persisted aggregate shapes read-only to the
// reporting surface. It never writes.
type Handler struct {
	store store.Store
	log   zerolog.Logger
}

// NewHandler creates a report handler over the given store.
func NewHandler(st store.Store, log zerolog.Logger) *Handler {
	return &Handler{store: st, log: log.With().Str("component", "report").Logger()}
}

// HeatmapResponse pairs the matrix with its fixed day order so clients
// don't have to hardcode it.
type HeatmapResponse struct {
	Days    [7]string     `json:"days"`
	Heatmap model.Heatmap `json:"heatmap"`
}

// HandleMetrics handles GET /v1/metrics: the cumulative snapshot row.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.timeout(r)
	defer cancel()

	snap, err := h.store.Snapshot(ctx)
	if err != nil {
		h.fail(w, "metrics", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, snap)
}

// HandleCustomers handles GET /v1/customers: all customer aggregates.
func (h *Handler) HandleCustomers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.timeout(r)
	defer cancel()

	rows, err := h.store.AllCustomers(ctx)
	if err != nil {
		h.fail(w, "customers", err)
		return
	}
	if len(rows) > config.ReportCustomerLimit {
		rows = rows[:config.ReportCustomerLimit]
	}
	httpx.RespondJSON(w, http.StatusOK, rows)
}

// HandleHeatmap handles GET /v1/heatmap: the day x hour activity matrix.
func (h *Handler) HandleHeatmap(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.timeout(r)
	defer cancel()

	heat, err := h.store.Heatmap(ctx)
	if err != nil {
		h.fail(w, "heatmap", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, HeatmapResponse{Days: model.DayNames, Heatmap: heat})
}

// HandleTrends handles GET /v1/trends/{resolution} for daily, weekly or
// monthly series.
func (h *Handler) HandleTrends(w http.ResponseWriter, r *http.Request) {
	res := model.Resolution(mux.Vars(r)["resolution"])
	switch res {
	case model.Daily, model.Weekly, model.Monthly:
	default:
		httpx.RespondErrorString(w, http.StatusBadRequest, "unknown resolution: "+string(res))
		return
	}

	ctx, cancel := h.timeout(r)
	defer cancel()

	points, err := h.store.TrendPoints(ctx, res)
	if err != nil {
		h.fail(w, "trends", err)
		return
	}
	if points == nil {
		points = []model.TrendPoint{}
	}
	httpx.RespondJSON(w, http.StatusOK, points)
}

func (h *Handler) timeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), config.ReportTimeout)
}

func (h *Handler) fail(w http.ResponseWriter, shape string, err error) {
	h.log.Error().Err(err).Str("shape", shape).Msg("aggregate read failed")
	httpx.RespondError(w, http.StatusInternalServerError, err)
}
