package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tumaini/pesaflow/pkg/model"
)

func TestMemoryStore_TransactionsSince(t *testing.T) {
	st := New()
	defer st.Close()
	ctx := context.Background()

	err := st.AppendTransactions(ctx, []model.RawTransaction{
		{TransactionID: "T1", TransactionTime: "20240101090000"},
		{TransactionID: "T2", TransactionTime: "20240102090000"},
		{TransactionID: "T3", TransactionTime: "20240103090000"},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	all, err := st.TransactionsSince(ctx, nil)
	if err != nil {
		t.Fatalf("TransactionsSince failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 rows, got %d", len(all))
	}

	since := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	newer, err := st.TransactionsSince(ctx, &since)
	if err != nil {
		t.Fatalf("TransactionsSince failed: %v", err)
	}
	if len(newer) != 1 || newer[0].TransactionID != "T3" {
		t.Errorf("Expected only T3 past the watermark, got %+v", newer)
	}
}

func TestMemoryStore_CustomerUpsertReplaces(t *testing.T) {
	st := New()
	defer st.Close()
	ctx := context.Background()

	row := model.CustomerAggregate{MSISDN: "254700000001", TotalTransactions: 1, TotalSpend: decimal.NewFromInt(100)}
	if err := st.UpsertCustomers(ctx, []model.CustomerAggregate{row}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	row.TotalTransactions = 5
	row.TotalSpend = decimal.NewFromInt(900)
	if err := st.UpsertCustomers(ctx, []model.CustomerAggregate{row}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := st.Customers(ctx, []string{"254700000001", "254700000099"})
	if err != nil {
		t.Fatalf("Customers failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected only known msisdns, got %d rows", len(got))
	}
	if got["254700000001"].TotalTransactions != 5 {
		t.Errorf("Expected replaced row, got %+v", got["254700000001"])
	}
}

func TestMemoryStore_SnapshotIsAdditive(t *testing.T) {
	st := New()
	defer st.Close()
	ctx := context.Background()

	if err := st.AddToSnapshot(ctx, 3, decimal.NewFromInt(450)); err != nil {
		t.Fatalf("AddToSnapshot failed: %v", err)
	}
	if err := st.AddToSnapshot(ctx, 2, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("AddToSnapshot failed: %v", err)
	}

	snap, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.TotalTransactions != 5 || snap.TransactionVolume.String() != "500" {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestMemoryStore_TrendUpsertReplaces(t *testing.T) {
	st := New()
	defer st.Close()
	ctx := context.Background()

	period := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := model.TrendPoint{PeriodStart: period, TotalTransactions: 2, TotalAmount: decimal.NewFromInt(300)}
	if err := st.UpsertTrendPoints(ctx, model.Daily, []model.TrendPoint{p}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	p.TotalTransactions = 7
	if err := st.UpsertTrendPoints(ctx, model.Daily, []model.TrendPoint{p}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	points, err := st.TrendPoints(ctx, model.Daily)
	if err != nil {
		t.Fatalf("TrendPoints failed: %v", err)
	}
	if len(points) != 1 || points[0].TotalTransactions != 7 {
		t.Errorf("Expected replaced point, got %+v", points)
	}
}

func TestMemoryStore_Watermark(t *testing.T) {
	st := New()
	defer st.Close()
	ctx := context.Background()

	_, ok, err := st.Watermark(ctx)
	if err != nil {
		t.Fatalf("Watermark failed: %v", err)
	}
	if ok {
		t.Error("Expected no watermark on a fresh store")
	}

	wm := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if err := st.SetWatermark(ctx, wm); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}

	got, ok, err := st.Watermark(ctx)
	if err != nil || !ok {
		t.Fatalf("Watermark failed: %v ok=%v", err, ok)
	}
	if !got.Equal(wm) {
		t.Errorf("Expected %v, got %v", wm, got)
	}
}
