package etl

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tumaini/pesaflow/pkg/model"
	"github.com/tumaini/pesaflow/pkg/store/memory"
)

func TestTemporalWorker_HeatmapBuckets(t *testing.T) {
	st := memory.New()
	defer st.Close()
	w := NewTemporalWorker(st, zerolog.Nop())

	// Monday 09:00, Monday 14:00, Tuesday 09:00 (2024-01-01 was a Monday).
	batch := mustBatch(t,
		makeTxn("T1", "254700000001", "100", "20240101090000"),
		makeTxn("T2", "254700000001", "200", "20240101140000"),
		makeTxn("T3", "254700000001", "150", "20240102090000"),
	)

	res, err := w.run(context.Background(), batch)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Hour+1 convention: 09:00 -> bucket 10, 14:00 -> bucket 15.
	if res.Delta[0][9] != 1 {
		t.Errorf("Expected cell (Monday,10) = 1, got %d", res.Delta[0][9])
	}
	if res.Delta[0][14] != 1 {
		t.Errorf("Expected cell (Monday,15) = 1, got %d", res.Delta[0][14])
	}
	if res.Delta[1][9] != 1 {
		t.Errorf("Expected cell (Tuesday,10) = 1, got %d", res.Delta[1][9])
	}
}

func TestTemporalWorker_MergesOntoPersistedHeatmap(t *testing.T) {
	st := memory.New()
	defer st.Close()
	ctx := context.Background()

	var prior model.Heatmap
	prior[0][9] = 5
	if err := st.AddHeatmapDelta(ctx, prior); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	w := NewTemporalWorker(st, zerolog.Nop())
	batch := mustBatch(t, makeTxn("T1", "254700000001", "100", "20240101090000"))

	res, err := w.run(ctx, batch)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if res.Merged[0][9] != 6 {
		t.Errorf("Expected merged cell (Monday,10) = 6, got %d", res.Merged[0][9])
	}
	// The delta only reflects the batch.
	if res.Delta[0][9] != 1 {
		t.Errorf("Expected delta cell (Monday,10) = 1, got %d", res.Delta[0][9])
	}
}

func TestTemporalWorker_TrendResample(t *testing.T) {
	st := memory.New()
	defer st.Close()
	w := NewTemporalWorker(st, zerolog.Nop())

	// Two days in the same week and month, plus a malformed amount that
	// still counts toward the period's transaction count.
	batch := mustBatch(t,
		makeTxn("T1", "254700000001", "100", "20240101090000"),
		makeTxn("T2", "254700000001", "200", "20240101140000"),
		makeTxn("T3", "254700000001", "bogus", "20240102090000"),
	)

	res, err := w.run(context.Background(), batch)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	daily := res.Trends[model.Daily]
	if len(daily) != 2 {
		t.Fatalf("Expected 2 daily periods, got %d", len(daily))
	}
	if daily[0].TotalTransactions != 2 || daily[0].TotalAmount.String() != "300" {
		t.Errorf("Unexpected first daily period: %+v", daily[0])
	}
	if daily[1].TotalTransactions != 1 || !daily[1].TotalAmount.IsZero() {
		t.Errorf("Unexpected second daily period: %+v", daily[1])
	}
	if !daily[0].PeriodStart.Before(daily[1].PeriodStart) {
		t.Error("Expected daily periods ordered by start")
	}

	weekly := res.Trends[model.Weekly]
	if len(weekly) != 1 {
		t.Fatalf("Expected 1 weekly period, got %d", len(weekly))
	}
	if weekly[0].TotalTransactions != 3 || weekly[0].TotalAmount.String() != "300" {
		t.Errorf("Unexpected weekly period: %+v", weekly[0])
	}
	wantWeek := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !weekly[0].PeriodStart.Equal(wantWeek) {
		t.Errorf("Expected week start %v, got %v", wantWeek, weekly[0].PeriodStart)
	}

	monthly := res.Trends[model.Monthly]
	if len(monthly) != 1 || monthly[0].TotalTransactions != 3 {
		t.Errorf("Unexpected monthly series: %+v", monthly)
	}

	if res.Periods != 4 {
		t.Errorf("Expected 4 periods across resolutions, got %d", res.Periods)
	}
}
