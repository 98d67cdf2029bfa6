package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tumaini/pesaflow/pkg/model"
)

// Store keeps everything in process memory. Data is lost on restart.
// Useful for testing and development.
type Store struct {
	mu sync.RWMutex

	txns      []model.RawTransaction
	customers map[string]model.CustomerAggregate
	snapshot  model.MetricsSnapshot
	heatmap   model.Heatmap
	trends    map[model.Resolution]map[int64]model.TrendPoint

	watermark    time.Time
	hasWatermark bool
}

// New creates an in-memory store.
func New() *Store {
	return &Store{
		customers: make(map[string]model.CustomerAggregate),
		trends:    make(map[model.Resolution]map[int64]model.TrendPoint),
		snapshot:  model.MetricsSnapshot{TransactionVolume: decimal.Zero},
	}
}

// AppendTransactions adds raw rows to the source table.
func (s *Store) AppendTransactions(ctx context.Context, txns []model.RawTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txns = append(s.txns, txns...)
	return nil
}

// TransactionsSince returns rows newer than the watermark, ordered by time.
// Rows whose transaction_time does not parse are returned as well; dropping
// them is an aggregation concern, not a storage one.
func (s *Store) TransactionsSince(ctx context.Context, since *time.Time) ([]model.RawTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []model.RawTransaction
	for _, t := range s.txns {
		if since != nil {
			ts, err := t.Time()
			if err != nil || !ts.After(*since) {
				continue
			}
		}
		results = append(results, t)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TransactionTime < results[j].TransactionTime
	})
	return results, nil
}

// Customers fetches aggregates for exactly the given msisdns.
func (s *Store) Customers(ctx context.Context, msisdns []string) (map[string]model.CustomerAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string]model.CustomerAggregate, len(msisdns))
	for _, m := range msisdns {
		if row, ok := s.customers[m]; ok {
			results[m] = row
		}
	}
	return results, nil
}

// UpsertCustomers replaces aggregate rows in full.
func (s *Store) UpsertCustomers(ctx context.Context, rows []model.CustomerAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		s.customers[row.MSISDN] = row
	}
	return nil
}

// AllCustomers returns every persisted aggregate, ordered by msisdn.
func (s *Store) AllCustomers(ctx context.Context) ([]model.CustomerAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]model.CustomerAggregate, 0, len(s.customers))
	for _, row := range s.customers {
		results = append(results, row)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].MSISDN < results[j].MSISDN
	})
	return results, nil
}

// Snapshot returns the cumulative metrics row.
func (s *Store) Snapshot(ctx context.Context) (model.MetricsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, nil
}

// AddToSnapshot adds batch totals onto the stored row.
func (s *Store) AddToSnapshot(ctx context.Context, count int64, volume decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.TotalTransactions += count
	s.snapshot.TransactionVolume = s.snapshot.TransactionVolume.Add(volume)
	return nil
}

// Heatmap returns the persisted activity matrix.
func (s *Store) Heatmap(ctx context.Context) (model.Heatmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heatmap, nil
}

// AddHeatmapDelta adds nonzero cells onto the persisted matrix.
func (s *Store) AddHeatmapDelta(ctx context.Context, delta model.Heatmap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.heatmap.Add(delta)
	return nil
}

// TrendPoints returns one series ordered by period start.
func (s *Store) TrendPoints(ctx context.Context, res model.Resolution) ([]model.TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.trends[res]
	results := make([]model.TrendPoint, 0, len(series))
	for _, p := range series {
		results = append(results, p)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].PeriodStart.Before(results[j].PeriodStart)
	})
	return results, nil
}

// UpsertTrendPoints replaces points keyed by period start.
func (s *Store) UpsertTrendPoints(ctx context.Context, res model.Resolution, points []model.TrendPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.trends[res]
	if series == nil {
		series = make(map[int64]model.TrendPoint)
		s.trends[res] = series
	}
	for _, p := range points {
		series[p.PeriodStart.Unix()] = p
	}
	return nil
}

// Watermark returns the committed extraction boundary.
func (s *Store) Watermark(ctx context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark, s.hasWatermark, nil
}

// SetWatermark advances the extraction boundary.
func (s *Store) SetWatermark(ctx context.Context, wm time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watermark = wm
	s.hasWatermark = true
	return nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}
