package dues

import (
	"github.com/warp/dues-engine/period"
)

// =============================================================================
// DUE ENUMERATOR
// =============================================================================

// Enumerate lists the periods that have become due up to asOf, plus
// forward further periods past the current one.
//
// Rules:
//   - no obligation configured: nothing is due
//   - the first key is the period of the anchor (first-due date, else join)
//   - a first key after the last key yields nothing
//   - a period starting after the leave date ends the list
func Enumerate(p Profile, asOf period.Date, forward int) ([]period.Key, error) {
	if !p.HasObligation() {
		return []period.Key{}, nil
	}

	first := p.FirstDueKey()
	last := period.KeyOf(asOf, p.Interval).Add(max(forward, 0))

	n, err := period.Steps(first, last)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return []period.Key{}, nil
	}

	keys := make([]period.Key, 0, n+1)
	for k, i := first, 0; i <= n; k, i = k.Next(), i+1 {
		if p.leftBefore(k) {
			break
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// leftBefore reports whether the member left before the period started.
func (p Profile) leftBefore(k period.Key) bool {
	if p.LeaveDate == nil || p.LeaveDate.IsZero() {
		return false
	}
	return k.Range().Start.After(*p.LeaveDate)
}

// BuildDueItems attaches amounts and settlement state to enumerated keys.
// paid is indexed by period key.
func BuildDueItems(p Profile, keys []period.Key, paid map[period.Key]PaymentRecord) []DueItem {
	items := make([]DueItem, 0, len(keys))
	amount := p.Amount()
	for _, k := range keys {
		item := DueItem{Period: k, Interval: p.Interval, Amount: amount}
		if rec, ok := paid[k]; ok {
			item.Paid = true
			item.VoucherID = rec.VoucherID
			item.Verified = rec.Verified
		}
		items = append(items, item)
	}
	return items
}

// IndexPayments keys records by period. Records of another interval are
// left out; they cannot settle a period of the current interval.
func IndexPayments(records []PaymentRecord, interval period.Interval) map[period.Key]PaymentRecord {
	idx := make(map[period.Key]PaymentRecord, len(records))
	for _, rec := range records {
		if rec.Period.Interval() == interval {
			idx[rec.Period] = rec
		}
	}
	return idx
}
