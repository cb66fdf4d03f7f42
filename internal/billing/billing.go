// Package billing holds the pure arithmetic behind metered session
// pricing: elapsed-minute accounting for time-based services and the
// floor-based cost rule shared by every lifecycle transition. Nothing
// in this package touches storage or the wall clock; callers pass the
// evaluation instant explicitly so live display and frozen persistence
// use the same code path.
package billing

import "time"

// Meter is a read-only view of one time-based service's bookkeeping.
type Meter struct {
	StartTime       time.Time
	PausedAt        *time.Time
	PausedMinutes   int64
	Paused          bool
	Ended           bool
	DurationMinutes int64
}

// ElapsedMinutes returns the billable minutes for a metered service at
// the given instant. Ended and paused services report their frozen
// duration; a running service derives minutes from the clock minus the
// cumulative pause allowance. The result is never negative.
func ElapsedMinutes(m Meter, now time.Time) int64 {
	if m.Ended || m.Paused {
		return clampMinutes(m.DurationMinutes)
	}
	raw := WholeMinutes(m.StartTime, now) - m.PausedMinutes
	return clampMinutes(raw)
}

// WholeMinutes returns floor((to - from) / 1 minute), never negative.
// Truncation to whole minutes is deliberate: partial minutes are free.
func WholeMinutes(from, to time.Time) int64 {
	if to.Before(from) {
		return 0
	}
	return int64(to.Sub(from) / time.Minute)
}

// TimeCost prices a time-based service. Anything under one whole minute
// costs nothing; from the first whole minute on the charge is
// minutes * unitPrice, floored by integer arithmetic.
func TimeCost(minutes, unitPrice int64) int64 {
	if minutes < 1 {
		return 0
	}
	return clampCost(minutes * clampCost(unitPrice))
}

// UnitCost prices a unit-based service as quantity * unitPrice.
func UnitCost(quantity, unitPrice int64) int64 {
	if quantity < 0 {
		quantity = 0
	}
	return clampCost(quantity * clampCost(unitPrice))
}

// clampMinutes coerces corrupt or negative durations to zero rather
// than letting them reach a persisted cost.
func clampMinutes(minutes int64) int64 {
	if minutes < 0 {
		return 0
	}
	return minutes
}

func clampCost(amount int64) int64 {
	if amount < 0 {
		return 0
	}
	return amount
}
