package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/period"
)

func TestMemory_WithTxRollsBack(t *testing.T) {
	// GIVEN: one settled period
	ctx := context.Background()
	m := NewMemory()
	jan := period.NewKey(period.Monthly, 2025, 1)
	require.NoError(t, m.WithTx(ctx, func(tx dues.PaymentTx) error {
		return tx.Upsert(ctx, dues.PaymentRecord{ID: "p-1", MemberID: "anna", Period: jan})
	}))

	// WHEN: a transaction deletes it, audits, then fails
	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx dues.PaymentTx) error {
		removed, err := tx.Delete(ctx, "anna", jan)
		require.NoError(t, err)
		require.True(t, removed)
		require.NoError(t, tx.AppendAudit(ctx, dues.AuditEntry{ID: "a-1", MemberID: "anna"}))
		return boom
	})

	// THEN: the record and the audit trail are as before
	assert.ErrorIs(t, err, boom)
	rec, err := m.Payment(ctx, "anna", jan)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "p-1", rec.ID)

	trail, err := m.AuditTrail(ctx, "anna", 0)
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestMemory_DeleteMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.WithTx(ctx, func(tx dues.PaymentTx) error {
		removed, err := tx.Delete(ctx, "anna", period.NewKey(period.Monthly, 2025, 1))
		assert.False(t, removed)
		return err
	}))
}

func TestMemory_VouchersFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, v := range []dues.Voucher{
		{ID: "v2", Date: period.NewDate(2025, time.March, 5), Description: "Beitrag März", Counterparty: "ANNA A"},
		{ID: "v1", Date: period.NewDate(2025, time.March, 5), Description: "Spende", Counterparty: "BEN B"},
		{ID: "v3", Date: period.NewDate(2025, time.May, 1), Description: "Beitrag Mai", Counterparty: "ANNA A"},
	} {
		require.NoError(t, m.AddVoucher(ctx, v))
	}

	tests := []struct {
		name  string
		query dues.VoucherQuery
		want  []dues.VoucherID
	}{
		{"open range", dues.VoucherQuery{}, []dues.VoucherID{"v1", "v2", "v3"}},
		{"upper bound", dues.VoucherQuery{To: period.NewDate(2025, time.March, 31)}, []dues.VoucherID{"v1", "v2"}},
		{"lower bound", dues.VoucherQuery{From: period.NewDate(2025, time.April, 1)}, []dues.VoucherID{"v3"}},
		{"text", dues.VoucherQuery{Text: "anna"}, []dues.VoucherID{"v2", "v3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Vouchers(ctx, tt.query)
			require.NoError(t, err)
			ids := make([]dues.VoucherID, len(got))
			for i, v := range got {
				ids[i] = v.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemory_ProfileNotFound(t *testing.T) {
	_, err := NewMemory().Profile(context.Background(), "nobody")
	assert.True(t, dues.IsNotFound(err))
}
