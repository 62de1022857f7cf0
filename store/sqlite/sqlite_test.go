package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/period"
	"github.com/warp/dues-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func key(t *testing.T, text string) period.Key {
	t.Helper()
	k, err := period.ParseAny(text)
	require.NoError(t, err)
	return k
}

func TestProfiles_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	amount := dues.MustMoney("12.5")
	leave := period.NewDate(2025, time.December, 31)
	require.NoError(t, s.SaveProfile(ctx, dues.Profile{
		MemberID:     "m-2",
		Name:         "Anna",
		JoinDate:     period.NewDate(2024, time.March, 15),
		LeaveDate:    &leave,
		Contribution: &amount,
		Interval:     period.Quarterly,
	}))
	require.NoError(t, s.SaveProfile(ctx, dues.Profile{
		MemberID: "m-1",
		Name:     "Honorary",
		JoinDate: period.NewDate(2020, time.January, 1),
	}))

	p, err := s.Profile(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "Anna", p.Name)
	assert.Equal(t, "2024-03-15", p.JoinDate.String())
	require.NotNil(t, p.LeaveDate)
	assert.Equal(t, "2025-12-31", p.LeaveDate.String())
	require.NotNil(t, p.Contribution)
	assert.Equal(t, "12.50", p.Contribution.StringFixed(2))
	assert.Equal(t, period.Quarterly, p.Interval)
	assert.Nil(t, p.FirstDueDate)

	honorary, err := s.Profile(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, honorary.HasObligation())

	all, err := s.Profiles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, dues.MemberID("m-1"), all[0].MemberID)

	_, err = s.Profile(ctx, "ghost")
	assert.ErrorIs(t, err, dues.ErrMemberNotFound)
}

func TestPayments_UpsertKeepsOneRowPerPeriod(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveProfile(ctx, dues.Profile{MemberID: "m-1", JoinDate: period.NewDate(2025, time.January, 1)}))

	write := func(id, amount string) {
		err := s.WithTx(ctx, func(tx dues.PaymentTx) error {
			return tx.Upsert(ctx, dues.PaymentRecord{
				ID:         id,
				MemberID:   "m-1",
				Period:     key(t, "2025-03"),
				DatePaid:   period.NewDate(2025, time.March, 2),
				Amount:     dues.MustMoney(amount),
				VoucherID:  "v-1",
				RecordedAt: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
			})
		})
		require.NoError(t, err)
	}
	write("p-1", "10")
	write("p-1", "11")

	records, err := s.Payments(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "11.00", records[0].Amount.StringFixed(2))
	assert.Equal(t, "2025-03", records[0].Period.String())
	assert.Equal(t, period.Monthly, records[0].Period.Interval())

	rec, err := s.Payment(ctx, "m-1", key(t, "2025-03"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "p-1", rec.ID)

	linked, err := s.PaymentsByVoucher(ctx, "v-1")
	require.NoError(t, err)
	assert.Len(t, linked, 1)

	missing, err := s.Payment(ctx, "m-1", key(t, "2025-04"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveProfile(ctx, dues.Profile{MemberID: "m-1", JoinDate: period.NewDate(2025, time.January, 1)}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx dues.PaymentTx) error {
		require.NoError(t, tx.Upsert(ctx, dues.PaymentRecord{
			ID: "p-1", MemberID: "m-1", Period: key(t, "2025-Q1"),
			DatePaid: period.NewDate(2025, time.January, 5), Amount: dues.MustMoney("30"),
		}))
		// visible inside the transaction
		rec, err := tx.Payment(ctx, "m-1", key(t, "2025-Q1"))
		require.NoError(t, err)
		require.NotNil(t, rec)
		return boom
	})
	require.ErrorIs(t, err, boom)

	records, err := s.Payments(ctx, "m-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDelete_ReportsWhetherRowExisted(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveProfile(ctx, dues.Profile{MemberID: "m-1", JoinDate: period.NewDate(2025, time.January, 1)}))

	var first, second bool
	require.NoError(t, s.WithTx(ctx, func(tx dues.PaymentTx) error {
		if err := tx.Upsert(ctx, dues.PaymentRecord{
			ID: "p-1", MemberID: "m-1", Period: key(t, "2025"),
			DatePaid: period.NewDate(2025, time.February, 1), Amount: dues.MustMoney("120"),
		}); err != nil {
			return err
		}
		var err error
		if first, err = tx.Delete(ctx, "m-1", key(t, "2025")); err != nil {
			return err
		}
		second, err = tx.Delete(ctx, "m-1", key(t, "2025"))
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
}

func TestVouchers_RangeAndText(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, v := range []dues.Voucher{
		{ID: "v1", Date: period.NewDate(2025, time.March, 5), Amount: dues.MustMoney("10"), Description: "Membership fee March"},
		{ID: "v2", Date: period.NewDate(2025, time.February, 1), Amount: dues.MustMoney("-10"), Counterparty: "SMITH, JOHN"},
		{ID: "v3", Date: period.NewDate(2025, time.April, 20), Amount: dues.MustMoney("10"), Description: "100% donation"},
	} {
		require.NoError(t, s.AddVoucher(ctx, v))
	}

	got, err := s.Vouchers(ctx, dues.VoucherQuery{
		From: period.NewDate(2025, time.February, 1),
		To:   period.NewDate(2025, time.March, 31),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, dues.VoucherID("v2"), got[0].ID, "oldest first")
	assert.Equal(t, "-10.00", got[0].Amount.StringFixed(2))

	got, err = s.Vouchers(ctx, dues.VoucherQuery{Text: "smith"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, dues.VoucherID("v2"), got[0].ID)

	got, err = s.Vouchers(ctx, dues.VoucherQuery{Text: "100%"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, dues.VoucherID("v3"), got[0].ID)
}

func TestEngineOverSQLite(t *testing.T) {
	// GIVEN: the engine wired to the sqlite store
	ctx := context.Background()
	s := newStore(t)
	amount := dues.MustMoney("10")
	require.NoError(t, s.SaveProfile(ctx, dues.Profile{
		MemberID: "m-1", JoinDate: period.NewDate(2025, time.January, 15),
		Contribution: &amount, Interval: period.Monthly,
	}))
	e := dues.NewEngine(s, s, s)
	e.Clock = func() time.Time { return time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC) }

	// WHEN: settling January and February, then unmarking February
	for _, k := range []string{"2025-01", "2025-02"} {
		_, err := e.MarkPaid(ctx, dues.MarkPaidCommand{MemberID: "m-1", Period: key(t, k), Amount: amount, Actor: "treasurer"})
		require.NoError(t, err)
	}
	require.NoError(t, e.Unmark(ctx, "m-1", key(t, "2025-02"), "treasurer"))

	// THEN: two overdue periods remain and the audit trail has three entries
	st, err := e.Status(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, dues.StateOverdue, st.State)
	assert.Equal(t, 2, st.OverdueCount)
	require.NotNil(t, st.LastPaidPeriod)
	assert.Equal(t, "2025-01", st.LastPaidPeriod.String())

	trail, err := e.AuditTrail(ctx, "m-1", 0)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, dues.AuditUnmarked, trail[0].Action)
	assert.Equal(t, "2025-02", trail[0].Period.String())

	limited, err := e.AuditTrail(ctx, "m-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveProfile(ctx, dues.Profile{MemberID: "m-1", JoinDate: period.NewDate(2025, time.January, 1)}))
	require.NoError(t, s.AddVoucher(ctx, dues.Voucher{ID: "v1", Date: period.NewDate(2025, time.January, 1), Amount: dues.MustMoney("1")}))

	require.NoError(t, s.Reset(ctx))

	all, err := s.Profiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	vs, err := s.Vouchers(ctx, dues.VoucherQuery{})
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestCorruptRowsSurfaceErrors(t *testing.T) {
	// GIVEN: a file database with one payment and its audit entry
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dues.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveProfile(ctx, dues.Profile{MemberID: "m-1", JoinDate: period.NewDate(2025, time.January, 1)}))
	require.NoError(t, s.WithTx(ctx, func(tx dues.PaymentTx) error {
		rec := dues.PaymentRecord{
			ID: "p-1", MemberID: "m-1", Period: key(t, "2025-03"),
			DatePaid: period.NewDate(2025, time.March, 2), Amount: dues.MustMoney("10"),
			RecordedAt: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
		}
		if err := tx.Upsert(ctx, rec); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, dues.AuditEntry{
			ID: "a-1", At: rec.RecordedAt, Actor: "test", Action: dues.AuditMarkedPaid,
			MemberID: "m-1", Period: rec.Period, Amount: rec.Amount,
		})
	}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	corrupt := func(stmt string) {
		t.Helper()
		_, err := raw.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		stmt  string
		check func() error
	}{
		{
			name: "payment recorded_at",
			stmt: "UPDATE payments SET recorded_at = 'yesterday'",
			check: func() error {
				_, err := s.Payment(ctx, "m-1", key(t, "2025-03"))
				return err
			},
		},
		{
			name: "audit at",
			stmt: "UPDATE settlement_audit SET at = 'noon'",
			check: func() error {
				_, err := s.AuditTrail(ctx, "m-1", 0)
				return err
			},
		},
		{
			name: "audit amount",
			stmt: "UPDATE settlement_audit SET at = '2025-03-02T10:00:00Z', amount = 'ten'",
			check: func() error {
				_, err := s.AuditTrail(ctx, "m-1", 0)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// WHEN: the stored text no longer parses
			corrupt(tt.stmt)

			// THEN: the read fails instead of returning a zero value
			assert.Error(t, tt.check())
		})
	}
}
