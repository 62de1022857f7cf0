/*
settlement.go - Settlement operations (the only writers)

STATE MACHINE per (member, period):
  UNPAID --MarkPaid--> PAID
  PAID   --Unmark----> UNPAID
  PAID   --MarkPaid--> PAID (record replaced, id kept)

  There is no partially-paid state. The stored amount does not affect
  classification.

ATOMICITY:
  Each command runs in one PaymentStore transaction together with its
  audit entry. Concurrent MarkPaid calls for the same period resolve to
  last-write-wins through the store's upsert.

AFTER COMMIT:
  Registered SettlementListeners are told the member changed so cached
  due lists can be dropped. Listeners run only when something changed.
*/
package dues

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/dues-engine/period"
)

// MarkPaidCommand records a payment for one period.
type MarkPaidCommand struct {
	MemberID  MemberID
	Period    period.Key
	Amount    decimal.Decimal
	DatePaid  period.Date // zero = today
	VoucherID VoucherID   // optional ledger link
	Verified  bool
	Actor     string
}

// MarkPaid upserts the payment record for (MemberID, Period). The amount is
// stored as given; matching it against the contribution is the caller's job.
func (e *Engine) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (*PaymentRecord, error) {
	if cmd.Period.IsZero() {
		return nil, fmt.Errorf("%w: empty period", ErrInvalidKey)
	}
	if cmd.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, cmd.Amount)
	}
	p, err := e.profile(ctx, cmd.MemberID)
	if err != nil {
		return nil, err
	}
	// a record of another interval would never show up as settled
	if p.Interval.Valid() && cmd.Period.Interval() != p.Interval {
		return nil, fmt.Errorf("mark %s/%s paid: %w", cmd.MemberID, cmd.Period,
			&period.IntervalMismatchError{Left: cmd.Period.Interval(), Right: p.Interval})
	}

	datePaid := cmd.DatePaid
	if datePaid.IsZero() {
		datePaid = e.today()
	}
	now := e.now()

	rec := PaymentRecord{
		MemberID:   cmd.MemberID,
		Period:     cmd.Period,
		DatePaid:   datePaid,
		Amount:     RoundMoney(cmd.Amount),
		VoucherID:  cmd.VoucherID,
		Verified:   cmd.Verified,
		RecordedAt: now,
	}

	err = e.Payments.WithTx(ctx, func(tx PaymentTx) error {
		existing, err := tx.Payment(ctx, cmd.MemberID, cmd.Period)
		if err != nil {
			return err
		}
		if existing != nil {
			rec.ID = existing.ID
		} else {
			rec.ID = uuid.NewString()
		}
		if err := tx.Upsert(ctx, rec); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, e.auditEntry(AuditMarkedPaid, cmd.Actor, rec))
	})
	if err != nil {
		return nil, fmt.Errorf("mark %s/%s paid: %w", cmd.MemberID, cmd.Period, err)
	}

	e.Logger.Info("period marked paid",
		zap.String("member_id", string(rec.MemberID)),
		zap.Stringer("period", rec.Period),
		zap.String("amount", rec.Amount.StringFixed(2)),
		zap.String("voucher_id", string(rec.VoucherID)),
		zap.String("actor", cmd.Actor),
	)
	e.notify(ctx, rec.MemberID)
	return &rec, nil
}

// Unmark deletes the payment record. Unmarking an unsettled period is a
// no-op, not an error.
func (e *Engine) Unmark(ctx context.Context, id MemberID, key period.Key, actor string) error {
	if key.IsZero() {
		return fmt.Errorf("%w: empty period", ErrInvalidKey)
	}

	removed := false
	err := e.Payments.WithTx(ctx, func(tx PaymentTx) error {
		existing, err := tx.Payment(ctx, id, key)
		if err != nil || existing == nil {
			return err
		}
		if removed, err = tx.Delete(ctx, id, key); err != nil || !removed {
			return err
		}
		return tx.AppendAudit(ctx, e.auditEntry(AuditUnmarked, actor, *existing))
	})
	if err != nil {
		return fmt.Errorf("unmark %s/%s: %w", id, key, err)
	}

	if removed {
		e.Logger.Info("period unmarked",
			zap.String("member_id", string(id)),
			zap.Stringer("period", key),
			zap.String("actor", actor),
		)
		e.notify(ctx, id)
	}
	return nil
}

// SetVerified flags the evidence of a settled period as checked (or not).
func (e *Engine) SetVerified(ctx context.Context, id MemberID, key period.Key, verified bool, actor string) (*PaymentRecord, error) {
	var rec PaymentRecord
	err := e.Payments.WithTx(ctx, func(tx PaymentTx) error {
		existing, err := tx.Payment(ctx, id, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return &PaymentNotFoundError{MemberID: id, Period: key}
		}
		rec = *existing
		rec.Verified = verified
		if err := tx.Upsert(ctx, rec); err != nil {
			return err
		}
		action := AuditVerified
		if !verified {
			action = AuditUnverified
		}
		return tx.AppendAudit(ctx, e.auditEntry(action, actor, rec))
	})
	if err != nil {
		return nil, fmt.Errorf("verify %s/%s: %w", id, key, err)
	}

	e.Logger.Info("payment verification changed",
		zap.String("member_id", string(id)),
		zap.Stringer("period", key),
		zap.Bool("verified", verified),
		zap.String("actor", actor),
	)
	e.notify(ctx, id)
	return &rec, nil
}

func (e *Engine) auditEntry(action AuditAction, actor string, rec PaymentRecord) AuditEntry {
	if actor == "" {
		actor = "system"
	}
	return AuditEntry{
		ID:        uuid.NewString(),
		At:        e.now(),
		Actor:     actor,
		Action:    action,
		MemberID:  rec.MemberID,
		Period:    rec.Period,
		Amount:    rec.Amount,
		VoucherID: rec.VoucherID,
	}
}

func (e *Engine) notify(ctx context.Context, id MemberID) {
	for _, l := range e.listeners {
		l.SettlementChanged(ctx, id)
	}
}
