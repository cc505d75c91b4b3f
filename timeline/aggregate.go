package timeline

import "github.com/shopspring/decimal"

// DeriveAggregateStatus folds occurrence statuses into one schedule status.
//
// Precedence, over the whole collection:
//  1. any delayed             -> delayed
//  2. any ongoing             -> ongoing
//  3. non-empty, all complete -> completed
//  4. otherwise               -> pending (including the empty collection)
func DeriveAggregateStatus(set StatusSet) Status {
	if len(set) == 0 {
		return StatusPending
	}

	var ongoing bool
	completed := 0
	for _, st := range set {
		switch st.Status {
		case StatusDelayed:
			return StatusDelayed
		case StatusOngoing:
			ongoing = true
		case StatusCompleted:
			completed++
		}
	}

	switch {
	case ongoing:
		return StatusOngoing
	case completed == len(set):
		return StatusCompleted
	default:
		return StatusPending
	}
}

var hundred = decimal.NewFromInt(100)

// Progress returns the completed share of set as a percentage rounded to two
// decimal places. An empty collection has zero progress.
func Progress(set StatusSet) decimal.Decimal {
	if len(set) == 0 {
		return decimal.Zero
	}
	done := 0
	for _, st := range set {
		if st.Status == StatusCompleted {
			done++
		}
	}
	return decimal.NewFromInt(int64(done)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(len(set)))).
		Round(2)
}

// CountByStatus tallies occurrences per status.
func CountByStatus(set StatusSet) map[Status]int {
	out := make(map[Status]int, 4)
	for _, st := range set {
		out[st.Status]++
	}
	return out
}
