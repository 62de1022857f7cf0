/*
Package dues tracks recurring membership contributions per billing period.

PURPOSE:
  For any member and point in time, answer "which periods are paid, which
  are currently due, which are overdue?" and record which ledger entry
  (voucher) settles which period.

KEY CONCEPTS IN THIS FILE (types.go):
  - Profile: a member's obligation (join date, interval, contribution)
  - PaymentRecord: the one persisted fact - "period P of member M is settled"
  - DueItem / ClassifiedPeriod / MemberDuesStatus: derived, never stored
  - Voucher / Candidate: ledger entries and match suggestions

DESIGN PRINCIPLES:
  1. Pure computation: enumeration and classification take values, not stores
  2. Precision: money is decimal.Decimal rounded to two places
  3. One record per (member, period): re-marking replaces, never duplicates

SEE ALSO:
  - period/: period keys, intervals, ranges
  - enumerate.go, classify.go, timeline.go: the algorithms
  - engine.go: query and command API over the stores
*/
package dues

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/dues-engine/period"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type VoucherID string

// =============================================================================
// MONEY
// =============================================================================

// RoundMoney rounds to cents. The engine does no other currency rounding.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// MustMoney parses a decimal literal; invalid input yields zero.
func MustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return RoundMoney(d)
}

// =============================================================================
// MEMBER OBLIGATION PROFILE - owned by the member store, read-only here
// =============================================================================

type Profile struct {
	MemberID     MemberID
	Name         string
	JoinDate     period.Date
	LeaveDate    *period.Date
	Contribution *decimal.Decimal
	Interval     period.Interval // empty = no recurring obligation
	FirstDueDate *period.Date    // defaults to JoinDate
}

// HasObligation is false when contribution or interval is missing.
func (p Profile) HasObligation() bool {
	return p.Contribution != nil && p.Interval.Valid()
}

// Anchor returns the first-due date.
func (p Profile) Anchor() period.Date {
	if p.FirstDueDate != nil && !p.FirstDueDate.IsZero() {
		return *p.FirstDueDate
	}
	return p.JoinDate
}

// FirstDueKey is the period of the anchor date.
func (p Profile) FirstDueKey() period.Key {
	return period.KeyOf(p.Anchor(), p.Interval)
}

// Amount returns the configured contribution, or zero.
func (p Profile) Amount() decimal.Decimal {
	if p.Contribution == nil {
		return decimal.Zero
	}
	return RoundMoney(*p.Contribution)
}

// =============================================================================
// PAYMENT RECORD - the only persisted entity of the engine
// =============================================================================

type PaymentRecord struct {
	ID         string
	MemberID   MemberID
	Period     period.Key
	DatePaid   period.Date
	Amount     decimal.Decimal
	VoucherID  VoucherID // empty when not linked to a ledger entry
	Verified   bool
	RecordedAt time.Time
}

// Linked reports whether the record references a ledger entry.
func (r PaymentRecord) Linked() bool { return r.VoucherID != "" }

// =============================================================================
// DERIVED VIEWS - produced fresh on every query
// =============================================================================

type DueItem struct {
	Period    period.Key      `json:"period"`
	Interval  period.Interval `json:"interval"`
	Amount    decimal.Decimal `json:"amount"`
	Paid      bool            `json:"paid"`
	VoucherID VoucherID       `json:"voucher_id,omitempty"`
	Verified  bool            `json:"verified"`
	Status    PeriodStatus    `json:"status"`
}

type PeriodStatus string

const (
	StatusPaid    PeriodStatus = "PAID"
	StatusOverdue PeriodStatus = "OVERDUE"
	StatusCurrent PeriodStatus = "CURRENT"
	StatusFuture  PeriodStatus = "FUTURE"
)

type ClassifiedPeriod struct {
	Period period.Key   `json:"period"`
	Status PeriodStatus `json:"status"`
}

type DuesState string

const (
	StateOK      DuesState = "OK"
	StateOverdue DuesState = "OVERDUE"
	StateUnknown DuesState = "UNKNOWN" // no obligation configured
)

type MemberDuesStatus struct {
	State          DuesState    `json:"state"`
	OverdueCount   int          `json:"overdue_count"`
	LastPaidPeriod *period.Key  `json:"last_paid_period,omitempty"`
	LastPaidDate   *period.Date `json:"last_paid_date,omitempty"`
	FirstDueDate   *period.Date `json:"first_due_date,omitempty"`
}

// =============================================================================
// LEDGER ENTRIES - owned by the external voucher store
// =============================================================================

type Voucher struct {
	ID           VoucherID
	Date         period.Date
	Amount       decimal.Decimal
	Description  string
	Counterparty string
	Account      string
}

// VoucherQuery selects ledger entries by date range and free text.
type VoucherQuery struct {
	From period.Date
	To   period.Date
	Text string
}

// Candidate is a ledger entry suggested as evidence for a period.
type Candidate struct {
	Voucher           Voucher
	ExactAmount       bool
	AmountDelta       decimal.Decimal // abs(voucher) - expected
	DaysFromPeriodEnd int             // signed, negative = before period end
	LinkedTo          []PaymentRecord // periods already referencing this voucher
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditAction string

const (
	AuditMarkedPaid AuditAction = "marked_paid"
	AuditUnmarked   AuditAction = "unmarked"
	AuditVerified   AuditAction = "verified"
	AuditUnverified AuditAction = "unverified"
)

// AuditEntry records who changed which settlement when.
type AuditEntry struct {
	ID        string
	At        time.Time
	Actor     string
	Action    AuditAction
	MemberID  MemberID
	Period    period.Key
	Amount    decimal.Decimal
	VoucherID VoucherID
}
