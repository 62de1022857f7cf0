/*
view.go - Settlement ledger view

PURPOSE:
  Read-only projection over the payment ledger and the voucher store:
  which periods are settled, the settlement history, and which ledger
  entries could serve as evidence for an unsettled period.

MATCHING:
  SuggestMatches searches [period start - lookback, today]. A voucher
  qualifies when its absolute amount is within tolerance of the expected
  amount, or when the free-text query occurs in its description or
  counterparty (Unicode case-folded). With neither criterion every voucher
  in the window qualifies.

  Ranking, fixed and deterministic:
    1. exact amount first
    2. closest to the period's end date
    3. most recent
    4. voucher id

  Vouchers already linked to other periods are NOT excluded. LinkedTo lists
  those periods; the caller decides.
*/
package dues

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/warp/dues-engine/period"
)

// IsPaid returns the payment record settling the period, or nil.
func (e *Engine) IsPaid(ctx context.Context, id MemberID, key period.Key) (*PaymentRecord, error) {
	rec, err := e.Payments.Payment(ctx, id, key)
	if err != nil {
		return nil, fmt.Errorf("load payment %s/%s: %w", id, key, err)
	}
	return rec, nil
}

// History returns the member's payment records, most recent first.
// limit <= 0 returns all.
func (e *Engine) History(ctx context.Context, id MemberID, limit int) ([]PaymentRecord, error) {
	if _, err := e.profile(ctx, id); err != nil {
		return nil, err
	}
	return e.history(ctx, id, limit)
}

func (e *Engine) history(ctx context.Context, id MemberID, limit int) ([]PaymentRecord, error) {
	records, err := e.Payments.Payments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load payments of %s: %w", id, err)
	}
	SortHistory(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// SortHistory orders records most recent first: by period start, then by
// date paid. Period starts compare across intervals, keys do not.
func SortHistory(records []PaymentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		si, sj := records[i].Period.Range().Start, records[j].Period.Range().Start
		if !si.Equal(sj) {
			return si.After(sj)
		}
		if !records[i].DatePaid.Equal(records[j].DatePaid) {
			return records[i].DatePaid.After(records[j].DatePaid)
		}
		return records[i].Period.String() > records[j].Period.String()
	})
}

// AuditTrail returns settlement audit entries, newest first.
func (e *Engine) AuditTrail(ctx context.Context, id MemberID, limit int) ([]AuditEntry, error) {
	if e.Audit == nil {
		return []AuditEntry{}, nil
	}
	entries, err := e.Audit.AuditTrail(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("load audit trail of %s: %w", id, err)
	}
	return entries, nil
}

// =============================================================================
// VOUCHER MATCHING
// =============================================================================

// SuggestMatches ranks ledger entries that could settle the period.
// amount <= 0 disables the amount criterion, empty query the text one.
func (e *Engine) SuggestMatches(ctx context.Context, id MemberID, key period.Key, amount decimal.Decimal, query string) ([]Candidate, error) {
	if _, err := e.profile(ctx, id); err != nil {
		return nil, err
	}
	if key.IsZero() {
		return nil, fmt.Errorf("%w: empty period", ErrInvalidKey)
	}

	span := key.Range()
	from := span.Start.AddDays(-e.Options.MatchLookbackDays)
	to := e.today()
	if to.Before(from) {
		return []Candidate{}, nil
	}

	vouchers, err := e.Vouchers.Vouchers(ctx, VoucherQuery{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("search vouchers %s..%s: %w", from, to, err)
	}

	m := newMatcher(amount, query, e.Options.MatchTolerance)
	candidates := make([]Candidate, 0, len(vouchers))
	for _, v := range vouchers {
		c, ok := m.match(v, span.End)
		if ok {
			candidates = append(candidates, c)
		}
	}
	rankCandidates(candidates)

	if e.Options.MatchLimit > 0 && len(candidates) > e.Options.MatchLimit {
		candidates = candidates[:e.Options.MatchLimit]
	}
	for i := range candidates {
		linked, err := e.Payments.PaymentsByVoucher(ctx, candidates[i].Voucher.ID)
		if err != nil {
			return nil, fmt.Errorf("load links of voucher %s: %w", candidates[i].Voucher.ID, err)
		}
		candidates[i].LinkedTo = linked
	}
	return candidates, nil
}

type matcher struct {
	expected  decimal.Decimal
	tolerance decimal.Decimal
	needle    string
	fold      cases.Caser
}

func newMatcher(amount decimal.Decimal, query string, tolerance decimal.Decimal) *matcher {
	m := &matcher{
		expected: RoundMoney(amount.Abs()),
		fold:     cases.Fold(),
	}
	m.tolerance = m.expected.Mul(tolerance.Abs())
	m.needle = m.fold.String(strings.TrimSpace(query))
	return m
}

func (m *matcher) match(v Voucher, periodEnd period.Date) (Candidate, bool) {
	hasAmount := m.expected.IsPositive()
	hasText := m.needle != ""

	delta := RoundMoney(v.Amount.Abs()).Sub(m.expected)
	amountOK := hasAmount && delta.Abs().LessThanOrEqual(m.tolerance)
	textOK := hasText && m.contains(v)

	if (hasAmount || hasText) && !amountOK && !textOK {
		return Candidate{}, false
	}
	return Candidate{
		Voucher:           v,
		ExactAmount:       hasAmount && delta.IsZero(),
		AmountDelta:       delta,
		DaysFromPeriodEnd: period.DaysBetween(periodEnd, v.Date),
	}, true
}

func (m *matcher) contains(v Voucher) bool {
	return strings.Contains(m.fold.String(v.Description), m.needle) ||
		strings.Contains(m.fold.String(v.Counterparty), m.needle)
}

func rankCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.ExactAmount != b.ExactAmount {
			return a.ExactAmount
		}
		da, db := abs(a.DaysFromPeriodEnd), abs(b.DaysFromPeriodEnd)
		if da != db {
			return da < db
		}
		if !a.Voucher.Date.Equal(b.Voucher.Date) {
			return a.Voucher.Date.After(b.Voucher.Date)
		}
		return a.Voucher.ID < b.Voucher.ID
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
