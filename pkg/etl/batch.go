package etl

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tumaini/pesaflow/pkg/model"
)

// Row is a raw transaction with its time and amount parsed once, up front.
// Rows whose transaction_time does not parse never make it into a batch;
// rows with a bad amount stay in (they still count as transactions) but are
// excluded from all monetary aggregation.
type Row struct {
	Raw      model.RawTransaction
	Time     time.Time
	Amount   decimal.Decimal
	AmountOK bool
}

// Batch is one extracted run's worth of parsed rows, in source order.
type Batch []Row

// parseBatch validates raw rows into a batch. The skipped count covers rows
// dropped for an unparseable transaction_time.
func parseBatch(raws []model.RawTransaction) (Batch, int) {
	batch := make(Batch, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		ts, err := raw.Time()
		if err != nil {
			skipped++
			continue
		}
		row := Row{Raw: raw, Time: ts}
		if amt, err := raw.Amount(); err == nil {
			row.Amount = amt
			row.AmountOK = true
		}
		batch = append(batch, row)
	}
	return batch, skipped
}

// maxTime returns the newest transaction time in the batch, the candidate
// next watermark for the hosting process.
func (b Batch) maxTime() time.Time {
	var max time.Time
	for _, row := range b {
		if row.Time.After(max) {
			max = row.Time
		}
	}
	return max
}
