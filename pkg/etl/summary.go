package etl

import (
	"context"

	"github.com/shopspring/decimal"
)

// summaryResult is the batch-level headline pair.
type summaryResult struct {
	Count          int64
	Volume         decimal.Decimal
	SkippedAmounts int
}

// SummaryWorker computes the batch transaction count and monetary volume.
// Pure and side-effect-free; cheap enough to run anywhere.
type SummaryWorker struct{}

// NewSummaryWorker creates a summary worker.
func NewSummaryWorker() *SummaryWorker {
	return &SummaryWorker{}
}

// Name identifies the worker in logs and errors.
func (w *SummaryWorker) Name() string { return "summary" }

// run counts every row in the batch and sums the parseable amounts. A row
// with a bad amount still counts as a transaction; it just carries no
// volume.
func (w *SummaryWorker) run(_ context.Context, batch Batch) (summaryResult, error) {
	res := summaryResult{
		Count:  int64(len(batch)),
		Volume: decimal.Zero,
	}
	for _, row := range batch {
		if !row.AmountOK {
			res.SkippedAmounts++
			continue
		}
		res.Volume = res.Volume.Add(row.Amount)
	}
	return res, nil
}
