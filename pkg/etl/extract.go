package etl

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tumaini/pesaflow/pkg/model"
	"github.com/tumaini/pesaflow/pkg/store"
)

// Extractor pulls raw transaction rows newer than a watermark from the
// source table. It does no transformation.
type Extractor struct {
	store store.Store
	log   zerolog.Logger
}

// NewExtractor creates an extractor over the given store.
func NewExtractor(st store.Store, log zerolog.Logger) *Extractor {
	return &Extractor{store: st, log: log.With().Str("component", "extractor").Logger()}
}

// Extract returns all rows with transaction_time after since. A nil since
// returns the full table (first run or recovery). A store failure is fatal
// for the run: there is no partial batch.
func (e *Extractor) Extract(ctx context.Context, since *time.Time) ([]model.RawTransaction, error) {
	raws, err := e.store.TransactionsSince(ctx, since)
	if err != nil {
		return nil, &SourceError{Err: err}
	}

	evt := e.log.Debug().Int("rows", len(raws))
	if since != nil {
		evt = evt.Time("since", *since)
	}
	evt.Msg("extracted source rows")
	return raws, nil
}
