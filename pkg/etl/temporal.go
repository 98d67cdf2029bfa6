package etl

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tumaini/pesaflow/pkg/model"
	"github.com/tumaini/pesaflow/pkg/store"
)

// temporalResult carries the heatmap delta for this batch, the merged
// matrix, and the resampled trend series.
type temporalResult struct {
	Delta   model.Heatmap
	Merged  model.Heatmap
	Trends  map[model.Resolution][]model.TrendPoint
	Periods int
}

// TemporalWorker buckets the batch into the day x hour activity heatmap and
// resamples it into the daily/weekly/monthly trend series.
type TemporalWorker struct {
	store store.Store
	log   zerolog.Logger
}

// NewTemporalWorker creates a temporal worker over the given store.
func NewTemporalWorker(st store.Store, log zerolog.Logger) *TemporalWorker {
	return &TemporalWorker{store: st, log: log.With().Str("component", "temporal_worker").Logger()}
}

// Name identifies the worker in logs and errors.
func (w *TemporalWorker) Name() string { return "temporal" }

// run fetches the persisted heatmap fresh, adds the batch's cells onto it
// elementwise, and aggregates the batch per period at each resolution.
// Trend points replace any stored point with the same period key at load
// time; heatmap cells only ever accumulate.
func (w *TemporalWorker) run(ctx context.Context, batch Batch) (temporalResult, error) {
	res := temporalResult{
		Trends: make(map[model.Resolution][]model.TrendPoint, len(model.Resolutions)),
	}

	for _, row := range batch {
		res.Delta.Observe(row.Time)
	}

	persisted, err := w.store.Heatmap(ctx)
	if err != nil {
		return res, &SourceError{Err: err}
	}
	res.Merged = persisted
	res.Merged.Add(res.Delta)

	for _, r := range model.Resolutions {
		points := resample(batch, r)
		res.Trends[r] = points
		res.Periods += len(points)
	}

	w.log.Debug().Int("periods", res.Periods).Msg("temporal aggregation complete")
	return res, nil
}

// resample groups the batch by period start at one resolution. Every row
// counts toward the period's transaction count; only parseable amounts
// contribute to its total.
func resample(batch Batch, res model.Resolution) []model.TrendPoint {
	byPeriod := make(map[int64]*model.TrendPoint)
	for _, row := range batch {
		start := res.PeriodStart(row.Time)
		key := start.Unix()
		p, ok := byPeriod[key]
		if !ok {
			p = &model.TrendPoint{PeriodStart: start, TotalAmount: decimal.Zero}
			byPeriod[key] = p
		}
		p.TotalTransactions++
		if row.AmountOK {
			p.TotalAmount = p.TotalAmount.Add(row.Amount)
		}
	}

	points := make([]model.TrendPoint, 0, len(byPeriod))
	for _, p := range byPeriod {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].PeriodStart.Before(points[j].PeriodStart)
	})
	return points
}
