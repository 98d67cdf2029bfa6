package etl

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tumaini/pesaflow/pkg/config"
	"github.com/tumaini/pesaflow/pkg/model"
	"github.com/tumaini/pesaflow/pkg/store"
)

// CustomerWorker merges a batch into the persisted per-customer aggregates
// and recomputes every derived field: recency/frequency/monetary quintiles,
// churn and loyalty scores, lifetime value, and the segment label.
//
// Totals are merged additively; everything derived is recomputed in full
// from the merged totals, never patched incrementally. Quintile ranks are
// relative to the customers touched by this batch, not the whole base, so
// they are batch-dependent on purpose.
type CustomerWorker struct {
	store store.Store
	log   zerolog.Logger

	// now and rng are injection points for deterministic tests.
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCustomerWorker creates a customer worker over the given store.
func NewCustomerWorker(st store.Store, log zerolog.Logger) *CustomerWorker {
	return &CustomerWorker{
		store: st,
		log:   log.With().Str("component", "customer_worker").Logger(),
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name identifies the worker in logs and errors.
func (w *CustomerWorker) Name() string { return "customer" }

// customerBatch is the batch-local slice of one customer's activity.
type customerBatch struct {
	count    int64
	spend    decimal.Decimal
	lastSeen time.Time
}

// run produces fully-recomputed aggregate rows for every msisdn present in
// the batch. Rows with a missing msisdn or unparseable amount are dropped
// from customer aggregation.
func (w *CustomerWorker) run(ctx context.Context, batch Batch) ([]model.CustomerAggregate, error) {
	// Group by msisdn, preserving first-appearance order. The order is the
	// tiebreak for quintile ranking, so identical inputs rank identically.
	groups := make(map[string]*customerBatch)
	var order []string
	dropped := 0
	for _, row := range batch {
		if row.Raw.MSISDN == "" || !row.AmountOK {
			dropped++
			continue
		}
		cb, ok := groups[row.Raw.MSISDN]
		if !ok {
			cb = &customerBatch{spend: decimal.Zero}
			groups[row.Raw.MSISDN] = cb
			order = append(order, row.Raw.MSISDN)
		}
		cb.count++
		cb.spend = cb.spend.Add(row.Amount)
		if row.Time.After(cb.lastSeen) {
			cb.lastSeen = row.Time
		}
	}
	if dropped > 0 {
		w.log.Debug().Int("rows", dropped).Msg("dropped rows from customer aggregation")
	}
	if len(order) == 0 {
		return nil, nil
	}

	// Read-then-merge: fetch existing rows for exactly the touched keys.
	existing, err := w.store.Customers(ctx, order)
	if err != nil {
		return nil, &SourceError{Err: err}
	}
	for m := range existing {
		if _, ok := groups[m]; !ok {
			return nil, &MergeError{MSISDN: m, Reason: "fetched row has no batch counterpart"}
		}
	}

	now := w.now()
	aggs := make([]model.CustomerAggregate, 0, len(order))
	for _, m := range order {
		cb := groups[m]
		agg := model.CustomerAggregate{MSISDN: m}

		if old, ok := existing[m]; ok {
			agg.TotalTransactions = old.TotalTransactions + cb.count
			agg.TotalSpend = old.TotalSpend.Add(cb.spend)
			agg.FirstSeen = old.FirstSeen
			agg.LastSeen = old.LastSeen
			if cb.lastSeen.After(agg.LastSeen) {
				agg.LastSeen = cb.lastSeen
			}
		} else {
			agg.TotalTransactions = cb.count
			agg.TotalSpend = cb.spend
			agg.LastSeen = cb.lastSeen
			// No history for this customer: seed first_seen a bounded
			// random distance back from last_seen as a placeholder.
			agg.FirstSeen = cb.lastSeen.AddDate(0, 0, -w.syntheticFirstSeenDays())
		}

		agg.AvgSpend = agg.TotalSpend.Div(decimal.NewFromInt(agg.TotalTransactions))

		days := int(now.Sub(agg.LastSeen).Hours() / 24)
		agg.DaysSinceLast = days
		agg.IsChurned = days > config.ChurnAfterDays
		agg.ChurnScore = clamp(float64(days)/config.ChurnDecayDays, 0, 1)
		agg.LoyaltyScore = math.Log1p(float64(agg.TotalTransactions)) * (1 - agg.ChurnScore)
		agg.CLV = lifetimeValue(agg)

		aggs = append(aggs, agg)
	}

	assignQuintiles(aggs)
	for i := range aggs {
		aggs[i].Segment = segmentLabel(aggs[i].RScore, aggs[i].FScore, aggs[i].MScore)
	}

	return aggs, nil
}

func (w *CustomerWorker) syntheticFirstSeenDays() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	span := config.SyntheticFirstSeenMaxDays - config.SyntheticFirstSeenMinDays + 1
	return config.SyntheticFirstSeenMinDays + w.rng.Intn(span)
}

// lifetimeValue estimates CLV as avg_spend x frequency x months_active.
// With months_active > 0 this collapses algebraically to total_spend; the
// factored form is kept because the business formula is stated that way.
func lifetimeValue(agg model.CustomerAggregate) decimal.Decimal {
	if agg.FirstSeen.After(agg.LastSeen) {
		return decimal.Zero
	}
	months := monthsActive(agg.FirstSeen, agg.LastSeen)
	if months == 0 {
		return decimal.Zero
	}
	frequency := float64(agg.TotalTransactions) / months
	return agg.AvgSpend.
		Mul(decimal.NewFromFloat(frequency)).
		Mul(decimal.NewFromFloat(months)).
		Round(2)
}

// monthsActive is the fractional number of months between two timestamps:
// whole calendar months plus leftover days / 30.44, rounded to 2 decimals.
func monthsActive(first, last time.Time) float64 {
	whole := 0
	for !first.AddDate(0, whole+1, 0).After(last) {
		whole++
	}
	anchor := first.AddDate(0, whole, 0)
	days := last.Sub(anchor).Hours() / 24
	months := float64(whole) + days/config.DaysPerMonth
	return math.Round(months*100) / 100
}

// assignQuintiles ranks the touched customers into 1-5 quintiles along the
// three RFM axes. With fewer than five customers in scope the boundaries
// degenerate, so every score falls back to neutral instead of failing.
func assignQuintiles(aggs []model.CustomerAggregate) {
	n := len(aggs)
	if n < config.QuintileMinCustomers {
		for i := range aggs {
			aggs[i].RScore = config.NeutralScore
			aggs[i].FScore = config.NeutralScore
			aggs[i].MScore = config.NeutralScore
		}
		return
	}

	// Recency: fewest days since last transaction ranks highest.
	r := quintileScores(n, func(i, j int) bool {
		return aggs[i].DaysSinceLast > aggs[j].DaysSinceLast
	})
	// Frequency and monetary: highest value ranks highest.
	f := quintileScores(n, func(i, j int) bool {
		return aggs[i].TotalTransactions < aggs[j].TotalTransactions
	})
	m := quintileScores(n, func(i, j int) bool {
		return aggs[i].AvgSpend.Cmp(aggs[j].AvgSpend) < 0
	})

	for i := range aggs {
		aggs[i].RScore = r[i]
		aggs[i].FScore = f[i]
		aggs[i].MScore = m[i]
	}
}

// quintileScores maps each element to a 1-5 score by its position in a
// stable sort: later positions score higher. Ties keep original order, so
// ranking is deterministic for identical inputs.
func quintileScores(n int, less func(i, j int) bool) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })

	scores := make([]int, n)
	for pos, i := range idx {
		scores[i] = pos*5/n + 1
	}
	return scores
}

// segmentLabel derives the customer segment from the RFM scores. First
// matching rule wins.
func segmentLabel(r, f, m int) string {
	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return "Best Customers"
	case r >= 4 && f >= 4:
		return "Loyal Customers"
	case r >= 4 && f <= 2:
		return "Potential Loyalists"
	case r <= 2 && f <= 2 && m <= 2:
		return "Lost Customers"
	case r <= 2 && f <= 3:
		return "Churn Risk"
	default:
		return "Other"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
