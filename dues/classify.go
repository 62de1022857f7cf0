package dues

import (
	"github.com/warp/dues-engine/period"
)

// =============================================================================
// STATUS CLASSIFIER
// =============================================================================

// Classify assigns one status to a period:
//
//	paid                           -> PAID
//	firstDue <= key < current      -> OVERDUE
//	key == current                 -> CURRENT
//	anything else                  -> FUTURE
//
// The current period is never overdue; it becomes overdue once the next
// period starts.
func Classify(key, current, firstDue period.Key, paid bool) (PeriodStatus, error) {
	if paid {
		return StatusPaid, nil
	}
	vsCurrent, err := key.Compare(current)
	if err != nil {
		return "", err
	}
	vsFirst, err := key.Compare(firstDue)
	if err != nil {
		return "", err
	}

	switch {
	case vsCurrent < 0 && vsFirst >= 0:
		return StatusOverdue, nil
	case vsCurrent == 0:
		return StatusCurrent, nil
	default:
		return StatusFuture, nil
	}
}

// ClassifyItems sets Status on every due item, in place.
func ClassifyItems(p Profile, items []DueItem, asOf period.Date) error {
	if !p.HasObligation() {
		return nil
	}
	current := period.KeyOf(asOf, p.Interval)
	first := p.FirstDueKey()
	for i := range items {
		st, err := Classify(items[i].Period, current, first, items[i].Paid)
		if err != nil {
			return err
		}
		items[i].Status = st
	}
	return nil
}

// Summarize derives the member-level status from classified due items and
// the most recent payment (nil when none).
func Summarize(p Profile, items []DueItem, lastPaid *PaymentRecord) MemberDuesStatus {
	status := MemberDuesStatus{State: StateUnknown}
	if lastPaid != nil {
		key, date := lastPaid.Period, lastPaid.DatePaid
		status.LastPaidPeriod = &key
		status.LastPaidDate = &date
	}
	if !p.HasObligation() {
		return status
	}

	status.FirstDueDate = p.Anchor().Ptr()
	for _, item := range items {
		if item.Status == StatusOverdue {
			status.OverdueCount++
		}
	}
	if status.OverdueCount > 0 {
		status.State = StateOverdue
	} else {
		status.State = StateOK
	}
	return status
}
