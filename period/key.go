/*
key.go - Period keys and their algebra

PURPOSE:
  A Key identifies one billing period of a given Interval: a month, a
  quarter or a year. Keys are the unit the whole dues engine counts in.

CANONICAL FORMS:
  monthly    2025-03
  quarterly  2025-Q1
  yearly     2025

ORDERING:
  Every key reduces to an integer ordinal (months, quarters or years since
  year 0). Compare, Next, Prev and Add all operate on that ordinal, never on
  the text, so "2025-9" and "2025-12" order correctly.

  Keys of different intervals are NOT comparable: Compare returns
  ErrIntervalMismatch.

PARSING:
  Parse accepts the canonical form, the Q marker in either case, and
  single-digit months. An out-of-range month (0, 13) or quarter (0, 5) is
  clamped into range instead of rejected. Anything else is ErrInvalidKey.

SEE ALSO:
  - interval.go: Interval enum
  - range.go: calendar bounds of a key
*/
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key identifies one period. The zero Key has no interval and means "none".
type Key struct {
	interval Interval
	year     int
	sub      int // month 1-12 or quarter 1-4; 0 for yearly
}

// KeyOf returns the key of the period containing date.
func KeyOf(date Date, interval Interval) Key {
	switch interval {
	case Monthly:
		return Key{interval: Monthly, year: date.Year(), sub: int(date.Month())}
	case Quarterly:
		return Key{interval: Quarterly, year: date.Year(), sub: (int(date.Month())-1)/3 + 1}
	case Yearly:
		return Key{interval: Yearly, year: date.Year()}
	default:
		return Key{}
	}
}

// NewKey builds a key from its parts. sub is ignored for yearly keys and
// clamped into range otherwise.
func NewKey(interval Interval, year, sub int) Key {
	switch interval {
	case Monthly:
		return Key{interval: Monthly, year: year, sub: clamp(sub, 1, 12)}
	case Quarterly:
		return Key{interval: Quarterly, year: year, sub: clamp(sub, 1, 4)}
	case Yearly:
		return Key{interval: Yearly, year: year}
	default:
		return Key{}
	}
}

// Accessors
func (k Key) Interval() Interval { return k.interval }
func (k Key) Year() int          { return k.year }
func (k Key) IsZero() bool       { return k.interval == "" }

// Month returns the month for monthly keys, or the first month of the
// quarter / year otherwise.
func (k Key) Month() time.Month {
	switch k.interval {
	case Monthly:
		return time.Month(k.sub)
	case Quarterly:
		return time.Month((k.sub-1)*3 + 1)
	default:
		return time.January
	}
}

// Quarter returns 1-4 for quarterly keys and 0 otherwise.
func (k Key) Quarter() int {
	if k.interval == Quarterly {
		return k.sub
	}
	return 0
}

// =============================================================================
// ORDINAL ARITHMETIC
// =============================================================================

func (k Key) ordinal() int {
	switch k.interval {
	case Monthly:
		return k.year*12 + (k.sub - 1)
	case Quarterly:
		return k.year*4 + (k.sub - 1)
	default:
		return k.year
	}
}

func fromOrdinal(interval Interval, n int) Key {
	switch interval {
	case Monthly:
		return Key{interval: Monthly, year: floorDiv(n, 12), sub: floorMod(n, 12) + 1}
	case Quarterly:
		return Key{interval: Quarterly, year: floorDiv(n, 4), sub: floorMod(n, 4) + 1}
	case Yearly:
		return Key{interval: Yearly, year: n}
	default:
		return Key{}
	}
}

// Compare returns -1, 0 or 1. Keys of different intervals fail with
// ErrIntervalMismatch.
func (k Key) Compare(other Key) (int, error) {
	if k.interval != other.interval {
		return 0, &IntervalMismatchError{Left: k.interval, Right: other.interval}
	}
	a, b := k.ordinal(), other.ordinal()
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	default:
		return 0, nil
	}
}

// Steps returns the signed number of periods from k to other.
func Steps(from, to Key) (int, error) {
	if from.interval != to.interval {
		return 0, &IntervalMismatchError{Left: from.interval, Right: to.interval}
	}
	return to.ordinal() - from.ordinal(), nil
}

// Add moves n periods forward (negative n moves back).
func (k Key) Add(n int) Key {
	if k.IsZero() {
		return k
	}
	return fromOrdinal(k.interval, k.ordinal()+n)
}

func (k Key) Next() Key { return k.Add(1) }
func (k Key) Prev() Key { return k.Add(-1) }

// Contains reports whether date falls inside the period.
func (k Key) Contains(date Date) bool {
	return !k.IsZero() && KeyOf(date, k.interval) == k
}

// =============================================================================
// TEXT FORMS
// =============================================================================

func (k Key) String() string {
	switch k.interval {
	case Monthly:
		return fmt.Sprintf("%04d-%02d", k.year, k.sub)
	case Quarterly:
		return fmt.Sprintf("%04d-Q%d", k.year, k.sub)
	case Yearly:
		return fmt.Sprintf("%04d", k.year)
	default:
		return ""
	}
}

// Parse reads a key of the given interval.
func Parse(text string, interval Interval) (Key, error) {
	s := strings.TrimSpace(text)
	fail := func(reason string) (Key, error) {
		return Key{}, &InvalidKeyError{Text: text, Interval: interval, Reason: reason}
	}
	if !interval.Valid() {
		return fail("unknown interval")
	}

	yearPart, rest, hasSep := strings.Cut(s, "-")
	year, ok := parseDigits(yearPart, 4, 4)
	if !ok {
		return fail("year must be four digits")
	}

	switch interval {
	case Yearly:
		if hasSep {
			return fail("yearly keys have the form YYYY")
		}
		return Key{interval: Yearly, year: year}, nil

	case Monthly:
		if !hasSep {
			return fail("monthly keys have the form YYYY-MM")
		}
		month, ok := parseDigits(rest, 1, 2)
		if !ok {
			return fail("month must be one or two digits")
		}
		return Key{interval: Monthly, year: year, sub: clamp(month, 1, 12)}, nil

	default: // Quarterly
		if !hasSep || len(rest) < 2 || (rest[0] != 'Q' && rest[0] != 'q') {
			return fail("quarterly keys have the form YYYY-Qn")
		}
		quarter, ok := parseDigits(rest[1:], 1, 1)
		if !ok {
			return fail("quarter must be a single digit")
		}
		return Key{interval: Quarterly, year: year, sub: clamp(quarter, 1, 4)}, nil
	}
}

// ParseAny infers the interval from the textual form.
func ParseAny(text string) (Key, error) {
	s := strings.TrimSpace(text)
	switch {
	case strings.ContainsAny(s, "Qq"):
		return Parse(s, Quarterly)
	case strings.Contains(s, "-"):
		return Parse(s, Monthly)
	default:
		return Parse(s, Yearly)
	}
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = Key{}
		return nil
	}
	parsed, err := ParseAny(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDigits(s string, minLen, maxLen int) (int, bool) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}

// Latest returns the latest of the keys. All keys must share an interval.
func Latest(first Key, rest ...Key) (Key, error) {
	out := first
	for _, k := range rest {
		c, err := out.Compare(k)
		if err != nil {
			return Key{}, err
		}
		if c < 0 {
			out = k
		}
	}
	return out, nil
}

// Earliest returns the earliest of the keys. All keys must share an interval.
func Earliest(first Key, rest ...Key) (Key, error) {
	out := first
	for _, k := range rest {
		c, err := out.Compare(k)
		if err != nil {
			return Key{}, err
		}
		if c > 0 {
			out = k
		}
	}
	return out, nil
}
