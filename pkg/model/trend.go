package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Resolution selects one of the three trend series.
type Resolution string

const (
	Daily   Resolution = "daily"
	Weekly  Resolution = "weekly"
	Monthly Resolution = "monthly"
)

// Resolutions lists the trend resolutions in coarsening order.
var Resolutions = [3]Resolution{Daily, Weekly, Monthly}

// TrendPoint is one period of a trend series. Reprocessing the same period
// replaces the stored point rather than adding to it.
type TrendPoint struct {
	PeriodStart       time.Time       `json:"period_start"`
	TotalTransactions int64           `json:"total_transactions"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}

// PeriodStart truncates a timestamp to the start of its period at this
// resolution. Weeks start on Monday, matching the heatmap's day order.
func (r Resolution) PeriodStart(t time.Time) time.Time {
	year, month, day := t.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	switch r {
	case Weekly:
		return start.AddDate(0, 0, -DayIndex(start))
	case Monthly:
		return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
	default:
		return start
	}
}
