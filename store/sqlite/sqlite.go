/*
Package sqlite provides a SQLite-backed implementation of the dues stores.

PURPOSE:
  Persists member profiles, payment records, ledger entries (vouchers) and
  the settlement audit trail. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  dues.MemberStore:  Member obligation profiles
  dues.PaymentStore: Payment records with transactional writes
  dues.VoucherStore: Ledger entries searchable by date and text
  dues.AuditLog:     Settlement audit trail

KEY TABLES:
  members:          Obligation profiles
  payments:         One row per (member, period) - UNIQUE enforced
  vouchers:         Ledger entries
  settlement_audit: Who changed which settlement when

ENCODING:
  Dates are stored as YYYY-MM-DD, timestamps as RFC3339 (UTC), money as
  decimal TEXT. Period keys are stored in canonical form next to their
  interval so they parse back without guessing.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction; the tx view reads through the *sql.Tx and never touches
  the mutex again.

USAGE:
  store, err := sqlite.New("./data/dues.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := dues.NewEngine(store, store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - dues/store.go: Interface definitions
  - dues/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/period"
)

// Store implements all dues storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Member obligation profiles
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		join_date TEXT NOT NULL,
		leave_date TEXT,
		contribution TEXT,
		billing_interval TEXT NOT NULL DEFAULT '',
		first_due_date TEXT,
		created_at TEXT NOT NULL
	);

	-- Payment records: at most one per member and period
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		period_key TEXT NOT NULL,
		billing_interval TEXT NOT NULL,
		period_start TEXT NOT NULL,
		date_paid TEXT NOT NULL,
		amount TEXT NOT NULL,
		voucher_id TEXT,
		verified INTEGER NOT NULL DEFAULT 0,
		recorded_at TEXT NOT NULL,
		UNIQUE (member_id, period_key)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_member_start
		ON payments(member_id, period_start DESC);
	CREATE INDEX IF NOT EXISTS idx_payments_voucher
		ON payments(voucher_id) WHERE voucher_id IS NOT NULL;

	-- Ledger entries
	CREATE TABLE IF NOT EXISTS vouchers (
		id TEXT PRIMARY KEY,
		entry_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		counterparty TEXT NOT NULL DEFAULT '',
		account TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_vouchers_date
		ON vouchers(entry_date);

	-- Settlement audit trail (append-only)
	CREATE TABLE IF NOT EXISTS settlement_audit (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		at TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		member_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		billing_interval TEXT NOT NULL,
		amount TEXT NOT NULL,
		voucher_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_member_seq
		ON settlement_audit(member_id, seq DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MEMBER STORE (dues.MemberStore interface)
// =============================================================================

const memberColumns = `id, name, join_date, leave_date, contribution, billing_interval, first_due_date`

// SaveProfile inserts or replaces a member profile.
func (s *Store) SaveProfile(ctx context.Context, p dues.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO members (` + memberColumns + `, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			join_date = excluded.join_date,
			leave_date = excluded.leave_date,
			contribution = excluded.contribution,
			billing_interval = excluded.billing_interval,
			first_due_date = excluded.first_due_date
	`

	var contribution sql.NullString
	if p.Contribution != nil {
		contribution = sql.NullString{String: dues.RoundMoney(*p.Contribution).String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		string(p.MemberID),
		p.Name,
		p.JoinDate.String(),
		nullDate(p.LeaveDate),
		contribution,
		string(p.Interval),
		nullDate(p.FirstDueDate),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save member %s: %w", p.MemberID, err)
	}
	return nil
}

// Profile returns the member's profile or a MemberNotFoundError.
func (s *Store) Profile(ctx context.Context, id dues.MemberID) (*dues.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE id = ?", string(id))
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &dues.MemberNotFoundError{MemberID: id}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Profiles returns all members ordered by id.
func (s *Store) Profiles(ctx context.Context) ([]dues.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+memberColumns+" FROM members ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	profiles := []dues.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (dues.Profile, error) {
	var (
		p            dues.Profile
		id           string
		joinDate     string
		leaveDate    sql.NullString
		contribution sql.NullString
		interval     string
		firstDue     sql.NullString
	)
	if err := row.Scan(&id, &p.Name, &joinDate, &leaveDate, &contribution, &interval, &firstDue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan member: %w", err)
	}

	p.MemberID = dues.MemberID(id)
	p.Interval = period.Interval(interval)
	var err error
	if p.JoinDate, err = period.ParseDate(joinDate); err != nil {
		return p, fmt.Errorf("member %s: join date: %w", id, err)
	}
	if p.LeaveDate, err = parseNullDate(leaveDate); err != nil {
		return p, fmt.Errorf("member %s: leave date: %w", id, err)
	}
	if p.FirstDueDate, err = parseNullDate(firstDue); err != nil {
		return p, fmt.Errorf("member %s: first due date: %w", id, err)
	}
	if contribution.Valid {
		amount, err := decimal.NewFromString(contribution.String)
		if err != nil {
			return p, fmt.Errorf("member %s: contribution: %w", id, err)
		}
		p.Contribution = &amount
	}
	return p, nil
}

// =============================================================================
// VOUCHER STORE (dues.VoucherStore interface)
// =============================================================================

// AddVoucher inserts or replaces a ledger entry.
func (s *Store) AddVoucher(ctx context.Context, v dues.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO vouchers (id, entry_date, amount, description, counterparty, account)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entry_date = excluded.entry_date,
			amount = excluded.amount,
			description = excluded.description,
			counterparty = excluded.counterparty,
			account = excluded.account
	`
	_, err := s.db.ExecContext(ctx, query,
		string(v.ID), v.Date.String(), dues.RoundMoney(v.Amount).String(),
		v.Description, v.Counterparty, v.Account,
	)
	if err != nil {
		return fmt.Errorf("failed to save voucher %s: %w", v.ID, err)
	}
	return nil
}

// Vouchers returns ledger entries in [From, To], oldest first. The text
// filter uses SQLite's lower(), which folds ASCII only.
func (s *Store) Vouchers(ctx context.Context, q dues.VoucherQuery) ([]dues.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if !q.From.IsZero() {
		where = append(where, "entry_date >= ?")
		args = append(args, q.From.String())
	}
	if !q.To.IsZero() {
		where = append(where, "entry_date <= ?")
		args = append(args, q.To.String())
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		where = append(where, "(lower(description) LIKE ? ESCAPE '\\' OR lower(counterparty) LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
		args = append(args, pattern, pattern)
	}

	query := "SELECT id, entry_date, amount, description, counterparty, account FROM vouchers"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY entry_date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer rows.Close()

	vouchers := []dues.Voucher{}
	for rows.Next() {
		var (
			v      dues.Voucher
			id     string
			date   string
			amount string
		)
		if err := rows.Scan(&id, &date, &amount, &v.Description, &v.Counterparty, &v.Account); err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		v.ID = dues.VoucherID(id)
		if v.Date, err = period.ParseDate(date); err != nil {
			return nil, fmt.Errorf("voucher %s: %w", id, err)
		}
		if v.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("voucher %s: amount: %w", id, err)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

// =============================================================================
// PAYMENT STORE (dues.PaymentReader interface)
// =============================================================================

const paymentColumns = `id, member_id, period_key, billing_interval, date_paid, amount, voucher_id, verified, recorded_at`

// Payment returns the record for (member, period), or nil.
func (s *Store) Payment(ctx context.Context, memberID dues.MemberID, k period.Key) (*dues.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return payment(ctx, s.db, memberID, k)
}

// Payments returns all records of a member.
func (s *Store) Payments(ctx context.Context, memberID dues.MemberID) ([]dues.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPayments(ctx, s.db,
		"SELECT "+paymentColumns+" FROM payments WHERE member_id = ? ORDER BY period_start DESC, id",
		string(memberID))
}

// PaymentsByVoucher returns the records referencing a ledger entry.
func (s *Store) PaymentsByVoucher(ctx context.Context, voucherID dues.VoucherID) ([]dues.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPayments(ctx, s.db,
		"SELECT "+paymentColumns+" FROM payments WHERE voucher_id = ? ORDER BY id",
		string(voucherID))
}

func payment(ctx context.Context, db queryer, memberID dues.MemberID, k period.Key) (*dues.PaymentRecord, error) {
	records, err := queryPayments(ctx, db,
		"SELECT "+paymentColumns+" FROM payments WHERE member_id = ? AND period_key = ?",
		string(memberID), k.String())
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func queryPayments(ctx context.Context, db queryer, query string, args ...any) ([]dues.PaymentRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	records := []dues.PaymentRecord{}
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanPayment(rows *sql.Rows) (dues.PaymentRecord, error) {
	var (
		rec        dues.PaymentRecord
		memberID   string
		periodKey  string
		interval   string
		datePaid   string
		amount     string
		voucherID  sql.NullString
		recordedAt string
	)
	err := rows.Scan(&rec.ID, &memberID, &periodKey, &interval, &datePaid,
		&amount, &voucherID, &rec.Verified, &recordedAt)
	if err != nil {
		return rec, fmt.Errorf("failed to scan payment: %w", err)
	}

	rec.MemberID = dues.MemberID(memberID)
	rec.VoucherID = dues.VoucherID(voucherID.String)
	if rec.Period, err = period.Parse(periodKey, period.Interval(interval)); err != nil {
		return rec, fmt.Errorf("payment %s: %w", rec.ID, err)
	}
	if rec.DatePaid, err = period.ParseDate(datePaid); err != nil {
		return rec, fmt.Errorf("payment %s: date paid: %w", rec.ID, err)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return rec, fmt.Errorf("payment %s: amount: %w", rec.ID, err)
	}
	if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return rec, fmt.Errorf("payment %s: recorded at: %w", rec.ID, err)
	}
	return rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE (dues.PaymentStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(dues.PaymentTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Payment(ctx context.Context, memberID dues.MemberID, k period.Key) (*dues.PaymentRecord, error) {
	return payment(ctx, ts.tx, memberID, k)
}

func (ts *txStore) Payments(ctx context.Context, memberID dues.MemberID) ([]dues.PaymentRecord, error) {
	return queryPayments(ctx, ts.tx,
		"SELECT "+paymentColumns+" FROM payments WHERE member_id = ? ORDER BY period_start DESC, id",
		string(memberID))
}

func (ts *txStore) PaymentsByVoucher(ctx context.Context, voucherID dues.VoucherID) ([]dues.PaymentRecord, error) {
	return queryPayments(ctx, ts.tx,
		"SELECT "+paymentColumns+" FROM payments WHERE voucher_id = ? ORDER BY id",
		string(voucherID))
}

// Upsert writes the record, replacing any existing row for the same
// (member, period).
func (ts *txStore) Upsert(ctx context.Context, rec dues.PaymentRecord) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `, period_start)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, period_key) DO UPDATE SET
			id = excluded.id,
			date_paid = excluded.date_paid,
			amount = excluded.amount,
			voucher_id = excluded.voucher_id,
			verified = excluded.verified,
			recorded_at = excluded.recorded_at
	`
	_, err := ts.tx.ExecContext(ctx, query,
		rec.ID,
		string(rec.MemberID),
		rec.Period.String(),
		string(rec.Period.Interval()),
		rec.DatePaid.String(),
		dues.RoundMoney(rec.Amount).String(),
		nullString(string(rec.VoucherID)),
		rec.Verified,
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		rec.Period.Range().Start.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment %s/%s: %w", rec.MemberID, rec.Period, err)
	}
	return nil
}

func (ts *txStore) Delete(ctx context.Context, memberID dues.MemberID, k period.Key) (bool, error) {
	res, err := ts.tx.ExecContext(ctx,
		"DELETE FROM payments WHERE member_id = ? AND period_key = ?",
		string(memberID), k.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete payment %s/%s: %w", memberID, k, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (ts *txStore) AppendAudit(ctx context.Context, e dues.AuditEntry) error {
	query := `
		INSERT INTO settlement_audit
		(id, seq, at, actor, action, member_id, period_key, billing_interval, amount, voucher_id)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM settlement_audit), ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ts.tx.ExecContext(ctx, query,
		e.ID,
		e.At.UTC().Format(time.RFC3339Nano),
		e.Actor,
		string(e.Action),
		string(e.MemberID),
		e.Period.String(),
		string(e.Period.Interval()),
		dues.RoundMoney(e.Amount).String(),
		nullString(string(e.VoucherID)),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG (dues.AuditLog interface)
// =============================================================================

// AuditTrail returns a member's audit entries, newest first.
func (s *Store) AuditTrail(ctx context.Context, memberID dues.MemberID, limit int) ([]dues.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, at, actor, action, member_id, period_key, billing_interval, amount, voucher_id
		FROM settlement_audit
		WHERE member_id = ?
		ORDER BY seq DESC
	`
	args := []any{string(memberID)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	entries := []dues.AuditEntry{}
	for rows.Next() {
		var (
			e         dues.AuditEntry
			at        string
			action    string
			member    string
			periodKey string
			interval  string
			amount    string
			voucherID sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Actor, &action, &member, &periodKey, &interval, &amount, &voucherID); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("audit entry %s: at: %w", e.ID, err)
		}
		e.Action = dues.AuditAction(action)
		e.MemberID = dues.MemberID(member)
		e.VoucherID = dues.VoucherID(voucherID.String)
		if e.Period, err = period.Parse(periodKey, period.Interval(interval)); err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("audit entry %s: amount: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"settlement_audit", "payments", "vouchers", "members"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *period.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*period.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := period.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
