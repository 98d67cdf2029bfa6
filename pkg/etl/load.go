package etl

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tumaini/pesaflow/pkg/model"
	"github.com/tumaini/pesaflow/pkg/store"
)

// Aggregate kind names, as reported in load outcomes and sink errors.
const (
	KindMetrics   = "transaction_metrics"
	KindCustomers = "customers"
	KindHeatmap   = "heatmap"
	KindTrends    = "trends"
)

// Kinds lists every aggregate kind the loader persists.
var Kinds = [4]string{KindMetrics, KindCustomers, KindHeatmap, KindTrends}

// LoadReport maps each aggregate kind to its write outcome (nil = ok).
type LoadReport map[string]error

// Failed reports whether any kind failed to persist.
func (r LoadReport) Failed() bool {
	for _, err := range r {
		if err != nil {
			return true
		}
	}
	return false
}

// Err joins the per-kind failures, or returns nil if all kinds persisted.
func (r LoadReport) Err() error {
	errs := make([]error, 0, len(r))
	for _, kind := range Kinds {
		if err := r[kind]; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Loader commits the gathered worker results through idempotent upserts.
// The four aggregate kinds are written concurrently and independently:
// each write is internally atomic, but a failed kind never rolls back a
// succeeded one. The run reports partial failure instead.
type Loader struct {
	store store.Store
	log   zerolog.Logger
}

// NewLoader creates a loader over the given store.
func NewLoader(st store.Store, log zerolog.Logger) *Loader {
	return &Loader{store: st, log: log.With().Str("component", "loader").Logger()}
}

// Load persists all four aggregate kinds. Upsert rules per kind:
// metrics snapshot is additive, customer rows and trend points are full
// replaces by key, heatmap cells are elementwise adds of nonzero deltas.
func (l *Loader) Load(ctx context.Context, res *transformResult) LoadReport {
	report := make(LoadReport, len(Kinds))
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(kind string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			err = &SinkError{Kind: kind, Err: err}
			l.log.Error().Err(err).Str("kind", kind).Msg("aggregate write failed")
		}
		report[kind] = err
	}

	wg.Add(len(Kinds))
	go func() {
		defer wg.Done()
		record(KindMetrics, l.store.AddToSnapshot(ctx, res.summary.Count, res.summary.Volume))
	}()
	go func() {
		defer wg.Done()
		record(KindCustomers, l.store.UpsertCustomers(ctx, res.customers))
	}()
	go func() {
		defer wg.Done()
		if res.temporal.Delta.IsZero() {
			record(KindHeatmap, nil)
			return
		}
		record(KindHeatmap, l.store.AddHeatmapDelta(ctx, res.temporal.Delta))
	}()
	go func() {
		defer wg.Done()
		record(KindTrends, l.loadTrends(ctx, res.temporal.Trends))
	}()
	wg.Wait()

	return report
}

func (l *Loader) loadTrends(ctx context.Context, trends map[model.Resolution][]model.TrendPoint) error {
	for _, r := range model.Resolutions {
		if len(trends[r]) == 0 {
			continue
		}
		if err := l.store.UpsertTrendPoints(ctx, r, trends[r]); err != nil {
			return err
		}
	}
	return nil
}
