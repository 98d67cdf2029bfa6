package model

import "time"

// HoursPerDay is the number of hour buckets per heatmap row. Buckets are
// 1-indexed (hour 1 = midnight), so column c holds hour bucket c+1.
const HoursPerDay = 24

// DayNames lists heatmap rows in fixed Monday-first order.
var DayNames = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// Heatmap is the day-of-week x hour-of-day activity matrix. Cell values are
// cumulative counts; merging is elementwise addition.
type Heatmap [7][HoursPerDay]int64

// DayIndex maps a timestamp's weekday onto the Monday-first row order.
func DayIndex(t time.Time) int {
	// time.Weekday is Sunday-first.
	return (int(t.Weekday()) + 6) % 7
}

// HourBucket maps a timestamp onto the 1-indexed hour convention.
func HourBucket(t time.Time) int {
	return t.Hour() + 1
}

// Observe increments the cell for the given timestamp.
func (h *Heatmap) Observe(t time.Time) {
	h[DayIndex(t)][HourBucket(t)-1]++
}

// Add merges another heatmap into this one, cell by cell.
func (h *Heatmap) Add(other Heatmap) {
	for d := 0; d < len(h); d++ {
		for c := 0; c < HoursPerDay; c++ {
			h[d][c] += other[d][c]
		}
	}
}

// IsZero reports whether every cell is zero.
func (h Heatmap) IsZero() bool {
	for d := 0; d < len(h); d++ {
		for c := 0; c < HoursPerDay; c++ {
			if h[d][c] != 0 {
				return false
			}
		}
	}
	return true
}

// RowIsZero reports whether every cell of one day row is zero. The loader
// uses this to skip days untouched by a batch.
func (h Heatmap) RowIsZero(day int) bool {
	for c := 0; c < HoursPerDay; c++ {
		if h[day][c] != 0 {
			return false
		}
	}
	return true
}
