/*
store.go - Boundary contracts to the member store and the ledger

PURPOSE:
  The engine owns no persistence. It reads member profiles, reads and writes
  payment records, and searches ledger entries through these interfaces.

KEY INTERFACES:
  MemberStore:  profiles by member id (read-only here)
  PaymentStore: payment records keyed by (member, period) + transactions
  PaymentTx:    the write side, only reachable inside WithTx
  VoucherStore: ledger entries by date range and free text
  AuditLog:     settlement audit trail

UNIQUENESS CONTRACT:
  At most one PaymentRecord per (member, period). Upsert replaces; two
  concurrent upserts resolve to last-write-wins, never to two rows.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - dues/store/memory.go: In-memory for testing

SEE ALSO:
  - settlement.go: the only writer
*/
package dues

import (
	"context"

	"github.com/warp/dues-engine/period"
)

// MemberStore supplies obligation profiles.
type MemberStore interface {
	// Profile returns ErrMemberNotFound when the member does not exist.
	Profile(ctx context.Context, id MemberID) (*Profile, error)

	// Profiles lists every member.
	Profiles(ctx context.Context) ([]Profile, error)
}

// PaymentReader is the read side of the payment ledger.
type PaymentReader interface {
	// Payment returns (nil, nil) when the period is not settled.
	Payment(ctx context.Context, memberID MemberID, key period.Key) (*PaymentRecord, error)

	// Payments returns all records of a member in no particular order.
	Payments(ctx context.Context, memberID MemberID) ([]PaymentRecord, error)

	// PaymentsByVoucher returns every record linked to the voucher.
	PaymentsByVoucher(ctx context.Context, voucherID VoucherID) ([]PaymentRecord, error)
}

// PaymentTx is the write side of the payment ledger.
type PaymentTx interface {
	PaymentReader

	// Upsert inserts or replaces the record for (MemberID, Period).
	Upsert(ctx context.Context, rec PaymentRecord) error

	// Delete removes the record. Returns false when nothing was there.
	Delete(ctx context.Context, memberID MemberID, key period.Key) (bool, error)

	// AppendAudit records an audit entry within the same transaction.
	AppendAudit(ctx context.Context, entry AuditEntry) error
}

// PaymentStore is the system of record for PaymentRecord.
type PaymentStore interface {
	PaymentReader

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(PaymentTx) error) error
}

// VoucherStore lists ledger entries.
type VoucherStore interface {
	// Vouchers returns entries with From <= Date <= To, oldest first. A
	// non-empty Text keeps entries whose description or counterparty
	// contains it, ignoring case. Zero From/To leave that side open.
	Vouchers(ctx context.Context, q VoucherQuery) ([]Voucher, error)
}

// AuditLog reads the settlement audit trail.
type AuditLog interface {
	// AuditTrail returns entries for a member, newest first.
	AuditTrail(ctx context.Context, memberID MemberID, limit int) ([]AuditEntry, error)
}

// SettlementListener is notified after a settlement change commits.
// Caches of due lists hook in here.
type SettlementListener interface {
	SettlementChanged(ctx context.Context, memberID MemberID)
}
