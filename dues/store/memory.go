// Package store provides in-memory implementations of the dues store interfaces.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/period"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements MemberStore, PaymentStore, VoucherStore and AuditLog.
type Memory struct {
	mu       sync.RWMutex
	members  map[dues.MemberID]dues.Profile
	payments map[key]dues.PaymentRecord
	vouchers map[dues.VoucherID]dues.Voucher
	audit    []dues.AuditEntry
}

type key struct {
	MemberID dues.MemberID
	Period   period.Key
}

func NewMemory() *Memory {
	return &Memory{
		members:  make(map[dues.MemberID]dues.Profile),
		payments: make(map[key]dues.PaymentRecord),
		vouchers: make(map[dues.VoucherID]dues.Voucher),
	}
}

// =============================================================================
// MEMBERS
// =============================================================================

// SaveProfile inserts or replaces a member profile.
func (m *Memory) SaveProfile(_ context.Context, p dues.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[p.MemberID] = p
	return nil
}

func (m *Memory) Profile(_ context.Context, id dues.MemberID) (*dues.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.members[id]
	if !ok {
		return nil, &dues.MemberNotFoundError{MemberID: id}
	}
	return &p, nil
}

func (m *Memory) Profiles(_ context.Context) ([]dues.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dues.Profile, 0, len(m.members))
	for _, p := range m.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

// =============================================================================
// VOUCHERS
// =============================================================================

// AddVoucher inserts or replaces a ledger entry.
func (m *Memory) AddVoucher(_ context.Context, v dues.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vouchers[v.ID] = v
	return nil
}

func (m *Memory) Vouchers(_ context.Context, q dues.VoucherQuery) ([]dues.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Text))
	var out []dues.Voucher
	for _, v := range m.vouchers {
		if !q.From.IsZero() && v.Date.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && v.Date.After(q.To) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(v.Description), needle) &&
			!strings.Contains(strings.ToLower(v.Counterparty), needle) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// PAYMENTS (read side)
// =============================================================================

func (m *Memory) Payment(_ context.Context, memberID dues.MemberID, k period.Key) (*dues.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentLocked(memberID, k), nil
}

func (m *Memory) Payments(_ context.Context, memberID dues.MemberID) ([]dues.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentsLocked(func(r dues.PaymentRecord) bool { return r.MemberID == memberID }), nil
}

func (m *Memory) PaymentsByVoucher(_ context.Context, voucherID dues.VoucherID) ([]dues.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentsLocked(func(r dues.PaymentRecord) bool { return r.VoucherID == voucherID }), nil
}

func (m *Memory) paymentLocked(memberID dues.MemberID, k period.Key) *dues.PaymentRecord {
	rec, ok := m.payments[key{MemberID: memberID, Period: k}]
	if !ok {
		return nil
	}
	return &rec
}

func (m *Memory) paymentsLocked(keep func(dues.PaymentRecord) bool) []dues.PaymentRecord {
	out := []dues.PaymentRecord{}
	for _, rec := range m.payments {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AuditTrail(_ context.Context, memberID dues.MemberID, limit int) ([]dues.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []dues.AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		if m.audit[i].MemberID != memberID {
			continue
		}
		out = append(out, m.audit[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(dues.PaymentTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	payments map[key]dues.PaymentRecord
	audit    []dues.AuditEntry
}

func (m *Memory) snapshot() memorySnapshot {
	payments := make(map[key]dues.PaymentRecord, len(m.payments))
	for k, v := range m.payments {
		payments[k] = v
	}
	return memorySnapshot{payments: payments, audit: append([]dues.AuditEntry{}, m.audit...)}
}

func (m *Memory) restore(s memorySnapshot) {
	m.payments = s.payments
	m.audit = s.audit
}

// txView runs with the parent's write lock held.
type txView struct {
	parent *Memory
}

func (tv *txView) Payment(_ context.Context, memberID dues.MemberID, k period.Key) (*dues.PaymentRecord, error) {
	return tv.parent.paymentLocked(memberID, k), nil
}

func (tv *txView) Payments(_ context.Context, memberID dues.MemberID) ([]dues.PaymentRecord, error) {
	return tv.parent.paymentsLocked(func(r dues.PaymentRecord) bool { return r.MemberID == memberID }), nil
}

func (tv *txView) PaymentsByVoucher(_ context.Context, voucherID dues.VoucherID) ([]dues.PaymentRecord, error) {
	return tv.parent.paymentsLocked(func(r dues.PaymentRecord) bool { return r.VoucherID == voucherID }), nil
}

func (tv *txView) Upsert(_ context.Context, rec dues.PaymentRecord) error {
	tv.parent.payments[key{MemberID: rec.MemberID, Period: rec.Period}] = rec
	return nil
}

func (tv *txView) Delete(_ context.Context, memberID dues.MemberID, k period.Key) (bool, error) {
	pk := key{MemberID: memberID, Period: k}
	if _, ok := tv.parent.payments[pk]; !ok {
		return false, nil
	}
	delete(tv.parent.payments, pk)
	return true, nil
}

func (tv *txView) AppendAudit(_ context.Context, entry dues.AuditEntry) error {
	tv.parent.audit = append(tv.parent.audit, entry)
	return nil
}
