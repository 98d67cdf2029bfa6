package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerAggregate is the cumulative per-customer row, keyed by msisdn.
// Totals only ever grow between runs; everything else is recomputed in full
// from the merged totals on every run.
type CustomerAggregate struct {
	MSISDN            string          `json:"msisdn"`
	TotalTransactions int64           `json:"total_transactions"`
	TotalSpend        decimal.Decimal `json:"total_spend"`
	AvgSpend          decimal.Decimal `json:"avg_spend"`
	FirstSeen         time.Time       `json:"first_seen"`
	LastSeen          time.Time       `json:"last_seen"`
	DaysSinceLast     int             `json:"days_since_last"`
	IsChurned         bool            `json:"is_churned"`
	ChurnScore        float64         `json:"churn_score"`
	LoyaltyScore      float64         `json:"loyalty_score"`
	CLV               decimal.Decimal `json:"clv"`
	RScore            int             `json:"r_score"`
	FScore            int             `json:"f_score"`
	MScore            int             `json:"m_score"`
	Segment           string          `json:"segment"`
}

// MetricsSnapshot is the single cumulative row behind the headline
// dashboard numbers. Loads are additive: each run's batch totals are added
// to the stored values, never substituted.
type MetricsSnapshot struct {
	TotalTransactions int64           `json:"total_transactions"`
	TransactionVolume decimal.Decimal `json:"transaction_volume"`
}
