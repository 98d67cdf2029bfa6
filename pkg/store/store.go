package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tumaini/pesaflow/pkg/model"
)

// Store is the persistence seam between the pipeline and its source and
// aggregate tables.
// Implementations: memory (testing), badgerdb (production)
//
// The ETL workers only read from the store; the Loader is the sole writer
// of aggregates. Raw transactions are written by the webhook collaborator
// and never mutated afterwards.
type Store interface {
	// AppendTransactions adds raw rows to the source table. Rows with the
	// same transaction id and time overwrite rather than duplicate.
	AppendTransactions(ctx context.Context, txns []model.RawTransaction) error

	// TransactionsSince returns rows with transaction_time strictly after
	// since, ordered by time. A nil since returns the full table.
	TransactionsSince(ctx context.Context, since *time.Time) ([]model.RawTransaction, error)

	// Customers fetches existing aggregates for exactly the given msisdns.
	// Unknown msisdns are simply absent from the result.
	Customers(ctx context.Context, msisdns []string) (map[string]model.CustomerAggregate, error)

	// UpsertCustomers replaces aggregate rows in full, keyed by msisdn.
	UpsertCustomers(ctx context.Context, rows []model.CustomerAggregate) error

	// AllCustomers returns every persisted aggregate, for the reporting
	// surface only.
	AllCustomers(ctx context.Context) ([]model.CustomerAggregate, error)

	// Snapshot returns the cumulative metrics row (zero-valued if never
	// written).
	Snapshot(ctx context.Context) (model.MetricsSnapshot, error)

	// AddToSnapshot adds a batch's totals onto the stored row.
	AddToSnapshot(ctx context.Context, count int64, volume decimal.Decimal) error

	// Heatmap returns the persisted activity matrix.
	Heatmap(ctx context.Context) (model.Heatmap, error)

	// AddHeatmapDelta adds nonzero cells of the delta onto the persisted
	// matrix. Days with an all-zero delta row are left untouched.
	AddHeatmapDelta(ctx context.Context, delta model.Heatmap) error

	// TrendPoints returns one trend series ordered by period start.
	TrendPoints(ctx context.Context, res model.Resolution) ([]model.TrendPoint, error)

	// UpsertTrendPoints replaces points keyed by period start.
	UpsertTrendPoints(ctx context.Context, res model.Resolution, points []model.TrendPoint) error

	// Watermark returns the timestamp boundary of already-aggregated rows.
	// ok is false if no run has ever committed one.
	Watermark(ctx context.Context) (wm time.Time, ok bool, err error)

	// SetWatermark advances the boundary. Called by the hosting process
	// after a fully successful run, never by the pipeline itself.
	SetWatermark(ctx context.Context, wm time.Time) error

	// Close cleanly shuts down the backend.
	Close() error
}
