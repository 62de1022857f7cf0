/*
engine.go - Query API over members, payments and vouchers

PURPOSE:
  Engine ties the pure algorithms (Enumerate, Classify, TimelineWindow) to
  the stores. Every query re-reads the stores and recomputes; the engine
  holds no cache and no mutable state. Callers that cache results register
  a SettlementListener to learn when a member's settlements change.

QUERIES:
  DueItems / DueItemsAt     periods due up to now, classified
  Status / StatusAt         member-level OK / OVERDUE / UNKNOWN
  Timeline / TimelineAt     bounded display window
  History, IsPaid           settlement ledger view (view.go)
  SuggestMatches            voucher candidates for a period (view.go)

COMMANDS (settlement.go):
  MarkPaid, Unmark, SetVerified

ERRORS:
  Store errors propagate wrapped. A failing read aborts the whole query;
  no partial lists are returned.
*/
package dues

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/dues-engine/period"
)

// Options tune the voucher matcher.
type Options struct {
	// MatchLookbackDays widens the search window before the period start
	// to catch late postings.
	MatchLookbackDays int

	// MatchTolerance is the accepted relative amount deviation (0.10 = 10%).
	MatchTolerance decimal.Decimal

	// MatchLimit caps the number of candidates. <= 0 means no cap.
	MatchLimit int
}

func DefaultOptions() Options {
	return Options{
		MatchLookbackDays: 90,
		MatchTolerance:    decimal.NewFromFloat(0.10),
		MatchLimit:        50,
	}
}

// Engine is the caller-facing API of the dues engine.
type Engine struct {
	Members  MemberStore
	Payments PaymentStore
	Vouchers VoucherStore
	Audit    AuditLog

	Options Options
	Clock   func() time.Time
	Logger  *zap.Logger

	listeners []SettlementListener
}

// NewEngine wires the stores. When payments also implements AuditLog it is
// used as the audit trail.
func NewEngine(members MemberStore, payments PaymentStore, vouchers VoucherStore) *Engine {
	e := &Engine{
		Members:  members,
		Payments: payments,
		Vouchers: vouchers,
		Options:  DefaultOptions(),
		Clock:    time.Now,
		Logger:   zap.NewNop(),
	}
	if audit, ok := payments.(AuditLog); ok {
		e.Audit = audit
	}
	return e
}

// Subscribe registers a listener for settlement changes.
func (e *Engine) Subscribe(l SettlementListener) {
	e.listeners = append(e.listeners, l)
}

func (e *Engine) now() time.Time     { return e.Clock().UTC() }
func (e *Engine) today() period.Date { return period.DateOf(e.now()) }

// Today returns the engine's notion of the current date.
func (e *Engine) Today() period.Date { return e.today() }

func (e *Engine) profile(ctx context.Context, id MemberID) (*Profile, error) {
	p, err := e.Members.Profile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load member %s: %w", id, err)
	}
	if p == nil {
		return nil, &MemberNotFoundError{MemberID: id}
	}
	return p, nil
}

func (e *Engine) paidIndex(ctx context.Context, p *Profile) (map[period.Key]PaymentRecord, error) {
	records, err := e.Payments.Payments(ctx, p.MemberID)
	if err != nil {
		return nil, fmt.Errorf("load payments of %s: %w", p.MemberID, err)
	}
	return IndexPayments(records, p.Interval), nil
}

// =============================================================================
// DUE ITEMS
// =============================================================================

// DueItems lists the member's periods due up to today.
func (e *Engine) DueItems(ctx context.Context, id MemberID) ([]DueItem, error) {
	return e.DueItemsAt(ctx, id, e.today())
}

// DueItemsAt lists the member's periods due up to asOf.
func (e *Engine) DueItemsAt(ctx context.Context, id MemberID, asOf period.Date) ([]DueItem, error) {
	p, err := e.profile(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.dueItems(ctx, p, asOf)
}

func (e *Engine) dueItems(ctx context.Context, p *Profile, asOf period.Date) ([]DueItem, error) {
	keys, err := Enumerate(*p, asOf, 0)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []DueItem{}, nil
	}
	paid, err := e.paidIndex(ctx, p)
	if err != nil {
		return nil, err
	}
	items := BuildDueItems(*p, keys, paid)
	if err := ClassifyItems(*p, items, asOf); err != nil {
		return nil, err
	}
	return items, nil
}

// =============================================================================
// STATUS
// =============================================================================

// Status derives the member-level dues status as of today.
func (e *Engine) Status(ctx context.Context, id MemberID) (MemberDuesStatus, error) {
	return e.StatusAt(ctx, id, e.today())
}

// StatusAt derives the member-level dues status as of asOf.
func (e *Engine) StatusAt(ctx context.Context, id MemberID, asOf period.Date) (MemberDuesStatus, error) {
	p, err := e.profile(ctx, id)
	if err != nil {
		return MemberDuesStatus{}, err
	}
	return e.status(ctx, p, asOf)
}

func (e *Engine) status(ctx context.Context, p *Profile, asOf period.Date) (MemberDuesStatus, error) {
	items, err := e.dueItems(ctx, p, asOf)
	if err != nil {
		return MemberDuesStatus{}, err
	}
	recent, err := e.history(ctx, p.MemberID, 1)
	if err != nil {
		return MemberDuesStatus{}, err
	}
	var last *PaymentRecord
	if len(recent) > 0 {
		last = &recent[0]
	}
	return Summarize(*p, items, last), nil
}

// StatusOf computes status for an already loaded profile. Used by sweeps
// that list all members once.
func (e *Engine) StatusOf(ctx context.Context, p Profile, asOf period.Date) (MemberDuesStatus, error) {
	return e.status(ctx, &p, asOf)
}

// =============================================================================
// TIMELINE
// =============================================================================

// Timeline returns the default display window around today.
func (e *Engine) Timeline(ctx context.Context, id MemberID) ([]ClassifiedPeriod, error) {
	p, err := e.profile(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.timeline(ctx, p, e.today(), DefaultTimelineOptions(p.Interval))
}

// TimelineAt returns the display window around asOf.
func (e *Engine) TimelineAt(ctx context.Context, id MemberID, asOf period.Date, opts TimelineOptions) ([]ClassifiedPeriod, error) {
	p, err := e.profile(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.timeline(ctx, p, asOf, opts)
}

func (e *Engine) timeline(ctx context.Context, p *Profile, asOf period.Date, opts TimelineOptions) ([]ClassifiedPeriod, error) {
	keys, err := TimelineWindow(*p, asOf, opts)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []ClassifiedPeriod{}, nil
	}
	paid, err := e.paidIndex(ctx, p)
	if err != nil {
		return nil, err
	}
	return ClassifyTimeline(*p, keys, asOf, paid)
}
