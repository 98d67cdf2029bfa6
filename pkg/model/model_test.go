package model

import (
	"testing"
	"time"
)

func TestTransactionTime_StrictLayout(t *testing.T) {
	txn := RawTransaction{TransactionTime: "20240101093000"}
	ts, err := txn.Time()
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	want := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("Expected %v, got %v", want, ts)
	}

	for _, bad := range []string{"", "2024-01-01 09:30:00", "20240101", "2024010109300", "not a time"} {
		txn := RawTransaction{TransactionTime: bad}
		if _, err := txn.Time(); err == nil {
			t.Errorf("Expected parse failure for %q", bad)
		}
	}
}

func TestTransactionAmount(t *testing.T) {
	txn := RawTransaction{TransactionAmount: "150.75"}
	amt, err := txn.Amount()
	if err != nil {
		t.Fatalf("Amount failed: %v", err)
	}
	if amt.String() != "150.75" {
		t.Errorf("Expected 150.75, got %s", amt)
	}

	txn = RawTransaction{TransactionAmount: "abc"}
	if _, err := txn.Amount(); err == nil {
		t.Error("Expected parse failure for non-numeric amount")
	}
}

func TestHeatmap_DayAndHourConventions(t *testing.T) {
	// 2024-01-01 was a Monday.
	monday := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if got := DayIndex(monday); got != 0 {
		t.Errorf("Expected Monday at index 0, got %d", got)
	}
	sunday := time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC)
	if got := DayIndex(sunday); got != 6 {
		t.Errorf("Expected Sunday at index 6, got %d", got)
	}

	// Hours are 1-indexed: 09:00 lands in bucket 10.
	if got := HourBucket(monday); got != 10 {
		t.Errorf("Expected hour bucket 10, got %d", got)
	}
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := HourBucket(midnight); got != 1 {
		t.Errorf("Expected hour bucket 1, got %d", got)
	}
}

func TestHeatmap_ObserveAndAdd(t *testing.T) {
	var a, b Heatmap
	monday := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	a.Observe(monday)
	a.Observe(monday)
	b.Observe(monday)

	a.Add(b)
	if a[0][9] != 3 {
		t.Errorf("Expected cell (Monday,10) = 3, got %d", a[0][9])
	}
	if a.IsZero() {
		t.Error("Expected non-zero heatmap")
	}
	if !a.RowIsZero(1) {
		t.Error("Expected Tuesday row untouched")
	}
}

func TestResolution_PeriodStart(t *testing.T) {
	// Thursday mid-month.
	ts := time.Date(2024, 3, 14, 15, 30, 45, 0, time.UTC)

	daily := Daily.PeriodStart(ts)
	if !daily.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected daily period start: %v", daily)
	}

	// The week containing 2024-03-14 starts Monday 2024-03-11.
	weekly := Weekly.PeriodStart(ts)
	if !weekly.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected weekly period start: %v", weekly)
	}

	monthly := Monthly.PeriodStart(ts)
	if !monthly.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected monthly period start: %v", monthly)
	}

	// A Monday is its own week start.
	monday := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	if !Weekly.PeriodStart(monday).Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Error("Expected Monday to start its own week")
	}
}
