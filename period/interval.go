package period

import (
	"fmt"
	"strings"
)

// Interval is the billing granularity of a recurring obligation.
type Interval string

const (
	Monthly   Interval = "monthly"
	Quarterly Interval = "quarterly"
	Yearly    Interval = "yearly"
)

// Intervals lists every supported interval.
var Intervals = []Interval{Monthly, Quarterly, Yearly}

func (i Interval) Valid() bool {
	switch i {
	case Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

func (i Interval) String() string { return string(i) }

// ParseInterval accepts the interval names in any case.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if !iv.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return iv, nil
}
