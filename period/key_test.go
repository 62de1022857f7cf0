package period_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/dues-engine/period"
)

func mustParse(t *testing.T, text string, iv period.Interval) period.Key {
	t.Helper()
	k, err := period.Parse(text, iv)
	require.NoError(t, err)
	return k
}

// =============================================================================
// KEY CONSTRUCTION
// =============================================================================

func TestKeyOf_CanonicalForms(t *testing.T) {
	tests := []struct {
		date     period.Date
		interval period.Interval
		want     string
	}{
		{period.NewDate(2025, time.March, 5), period.Monthly, "2025-03"},
		{period.NewDate(2025, time.December, 31), period.Monthly, "2025-12"},
		{period.NewDate(2025, time.January, 1), period.Quarterly, "2025-Q1"},
		{period.NewDate(2025, time.March, 31), period.Quarterly, "2025-Q1"},
		{period.NewDate(2025, time.April, 1), period.Quarterly, "2025-Q2"},
		{period.NewDate(2025, time.September, 30), period.Quarterly, "2025-Q3"},
		{period.NewDate(2025, time.October, 1), period.Quarterly, "2025-Q4"},
		{period.NewDate(2025, time.July, 14), period.Yearly, "2025"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, period.KeyOf(tt.date, tt.interval).String())
		})
	}
}

func TestKeyOf_SameMonthSameKey(t *testing.T) {
	// Every day of a month maps to the same monthly key.
	first := period.NewDate(2024, time.February, 1)
	want := period.KeyOf(first, period.Monthly)
	for d := first; d.Month() == time.February; d = d.AddDays(1) {
		assert.Equal(t, want, period.KeyOf(d, period.Monthly), d.String())
	}
}

// =============================================================================
// ORDERING
// =============================================================================

func TestCompare_UsesOrdinalNotText(t *testing.T) {
	sep := mustParse(t, "2025-9", period.Monthly)
	dec := mustParse(t, "2025-12", period.Monthly)

	c, err := sep.Compare(dec)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = dec.Compare(sep)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = sep.Compare(mustParse(t, "2025-09", period.Monthly))
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestCompare_IntervalMismatch(t *testing.T) {
	m := mustParse(t, "2025-01", period.Monthly)
	q := mustParse(t, "2025-Q1", period.Quarterly)

	_, err := m.Compare(q)
	require.ErrorIs(t, err, period.ErrIntervalMismatch)

	var mismatch *period.IntervalMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, period.Monthly, mismatch.Left)
	assert.Equal(t, period.Quarterly, mismatch.Right)

	_, err = period.Steps(m, q)
	assert.ErrorIs(t, err, period.ErrIntervalMismatch)
}

func TestSuccessorPredecessor_AllIntervals(t *testing.T) {
	keys := []period.Key{
		mustParse(t, "2025-01", period.Monthly),
		mustParse(t, "2025-06", period.Monthly),
		mustParse(t, "2025-12", period.Monthly),
		mustParse(t, "2025-Q1", period.Quarterly),
		mustParse(t, "2025-Q4", period.Quarterly),
		mustParse(t, "1999", period.Yearly),
		mustParse(t, "2025", period.Yearly),
	}
	for _, k := range keys {
		t.Run(k.String(), func(t *testing.T) {
			c, err := k.Compare(k.Next())
			require.NoError(t, err)
			assert.Less(t, c, 0)

			c, err = k.Compare(k.Prev())
			require.NoError(t, err)
			assert.Greater(t, c, 0)

			assert.Equal(t, k, k.Prev().Next())
			assert.Equal(t, k, k.Next().Prev())
		})
	}
}

func TestSuccessor_YearRollover(t *testing.T) {
	assert.Equal(t, "2026-01", mustParse(t, "2025-12", period.Monthly).Next().String())
	assert.Equal(t, "2026-Q1", mustParse(t, "2025-Q4", period.Quarterly).Next().String())
	assert.Equal(t, "2024-12", mustParse(t, "2025-01", period.Monthly).Prev().String())
	assert.Equal(t, "2024-Q4", mustParse(t, "2025-Q1", period.Quarterly).Prev().String())
	assert.Equal(t, "2026", mustParse(t, "2025", period.Yearly).Next().String())
}

func TestAddAndSteps(t *testing.T) {
	k := mustParse(t, "2025-03", period.Monthly)
	assert.Equal(t, "2026-05", k.Add(14).String())
	assert.Equal(t, "2024-10", k.Add(-5).String())

	n, err := period.Steps(k, k.Add(14))
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	q := mustParse(t, "2025-Q2", period.Quarterly)
	assert.Equal(t, "2024-Q3", q.Add(-3).String())
}

// =============================================================================
// PARSING
// =============================================================================

func TestParse_Accepted(t *testing.T) {
	tests := []struct {
		text     string
		interval period.Interval
		want     string
	}{
		{"2025-03", period.Monthly, "2025-03"},
		{"2025-3", period.Monthly, "2025-03"},
		{" 2025-11 ", period.Monthly, "2025-11"},
		{"2025-Q2", period.Quarterly, "2025-Q2"},
		{"2025-q2", period.Quarterly, "2025-Q2"},
		{"2025", period.Yearly, "2025"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			k, err := period.Parse(tt.text, tt.interval)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k.String())
			assert.Equal(t, tt.interval, k.Interval())
		})
	}
}

func TestParse_ClampsOutOfRange(t *testing.T) {
	assert.Equal(t, "2025-01", mustParse(t, "2025-00", period.Monthly).String())
	assert.Equal(t, "2025-12", mustParse(t, "2025-13", period.Monthly).String())
	assert.Equal(t, "2025-12", mustParse(t, "2025-99", period.Monthly).String())
	assert.Equal(t, "2025-Q1", mustParse(t, "2025-Q0", period.Quarterly).String())
	assert.Equal(t, "2025-Q4", mustParse(t, "2025-Q7", period.Quarterly).String())
}

func TestParse_Rejected(t *testing.T) {
	tests := []struct {
		text     string
		interval period.Interval
	}{
		{"", period.Monthly},
		{"abcd-01", period.Monthly},
		{"2025", period.Monthly},
		{"2025-123", period.Monthly},
		{"2025-Q1", period.Monthly},
		{"25-01", period.Monthly},
		{"2025-1", period.Quarterly},
		{"2025-Q", period.Quarterly},
		{"2025-Q12", period.Quarterly},
		{"2025-01", period.Yearly},
		{"2025", period.Interval("weekly")},
	}
	for _, tt := range tests {
		t.Run(string(tt.interval)+"/"+tt.text, func(t *testing.T) {
			_, err := period.Parse(tt.text, tt.interval)
			require.ErrorIs(t, err, period.ErrInvalidKey)

			var invalid *period.InvalidKeyError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.text, invalid.Text)
		})
	}
}

func TestParseAny_InfersInterval(t *testing.T) {
	k, err := period.ParseAny("2025-Q3")
	require.NoError(t, err)
	assert.Equal(t, period.Quarterly, k.Interval())

	k, err = period.ParseAny("2025-07")
	require.NoError(t, err)
	assert.Equal(t, period.Monthly, k.Interval())

	k, err = period.ParseAny("2025")
	require.NoError(t, err)
	assert.Equal(t, period.Yearly, k.Interval())
}

func TestKey_TextRoundTrip(t *testing.T) {
	for _, text := range []string{"2025-07", "2025-Q3", "2025"} {
		k, err := period.ParseAny(text)
		require.NoError(t, err)

		b, err := k.MarshalText()
		require.NoError(t, err)

		var back period.Key
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := period.ParseInterval("Quarterly")
	require.NoError(t, err)
	assert.Equal(t, period.Quarterly, iv)

	_, err = period.ParseInterval("weekly")
	assert.ErrorIs(t, err, period.ErrInvalidInterval)
}

// =============================================================================
// RANGES
// =============================================================================

func TestRange(t *testing.T) {
	tests := []struct {
		key        period.Key
		start, end period.Date
	}{
		{mustParse(t, "2024-02", period.Monthly), period.NewDate(2024, time.February, 1), period.NewDate(2024, time.February, 29)},
		{mustParse(t, "2025-02", period.Monthly), period.NewDate(2025, time.February, 1), period.NewDate(2025, time.February, 28)},
		{mustParse(t, "2025-Q2", period.Quarterly), period.NewDate(2025, time.April, 1), period.NewDate(2025, time.June, 30)},
		{mustParse(t, "2025-Q4", period.Quarterly), period.NewDate(2025, time.October, 1), period.NewDate(2025, time.December, 31)},
		{mustParse(t, "2025", period.Yearly), period.NewDate(2025, time.January, 1), period.NewDate(2025, time.December, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			r := tt.key.Range()
			assert.True(t, tt.start.Equal(r.Start), "start %s", r.Start)
			assert.True(t, tt.end.Equal(r.End), "end %s", r.End)
			assert.True(t, tt.key.Contains(r.Start))
			assert.True(t, tt.key.Contains(r.End))
			assert.False(t, tt.key.Contains(r.End.AddDays(1)))
		})
	}
}

func TestRange_Days(t *testing.T) {
	assert.Equal(t, 366, mustParse(t, "2024", period.Yearly).Range().Days())
	assert.Equal(t, 92, mustParse(t, "2025-Q4", period.Quarterly).Range().Days())
}

func TestLatestEarliest(t *testing.T) {
	a := mustParse(t, "2025-02", period.Monthly)
	b := mustParse(t, "2025-07", period.Monthly)
	c := mustParse(t, "2024-11", period.Monthly)

	latest, err := period.Latest(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, b, latest)

	earliest, err := period.Earliest(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, c, earliest)

	_, err = period.Latest(a, mustParse(t, "2025", period.Yearly))
	assert.ErrorIs(t, err, period.ErrIntervalMismatch)
}
