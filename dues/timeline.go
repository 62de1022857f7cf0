package dues

import (
	"github.com/warp/dues-engine/period"
)

// =============================================================================
// TIMELINE BUILDER - display window around "now"
// =============================================================================

// TimelineOptions bounds the window. Past and Future count periods.
type TimelineOptions struct {
	Past   int
	Future int
}

// MaxTimelineSpan caps Past and Future.
const MaxTimelineSpan = 120

// DefaultTimelineOptions keeps the visual width comparable across intervals.
func DefaultTimelineOptions(interval period.Interval) TimelineOptions {
	if interval == period.Quarterly {
		return TimelineOptions{Past: 2, Future: 3}
	}
	return TimelineOptions{Past: 5, Future: 3}
}

// TimelineWindow returns the contiguous keys
//
//	max(joinKey, current-Past, firstDueKey) .. current+Future
//
// cut at the leave period. Periods before the first obligation never show.
// Past and Future are clamped to [0, MaxTimelineSpan].
func TimelineWindow(p Profile, asOf period.Date, opts TimelineOptions) ([]period.Key, error) {
	if !p.HasObligation() {
		return []period.Key{}, nil
	}

	current := period.KeyOf(asOf, p.Interval)
	start, err := period.Latest(
		current.Add(-clampSpan(opts.Past)),
		period.KeyOf(p.JoinDate, p.Interval),
		p.FirstDueKey(),
	)
	if err != nil {
		return nil, err
	}

	end := current.Add(clampSpan(opts.Future))
	if p.LeaveDate != nil && !p.LeaveDate.IsZero() {
		if end, err = period.Earliest(end, period.KeyOf(*p.LeaveDate, p.Interval)); err != nil {
			return nil, err
		}
	}

	n, err := period.Steps(start, end)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return []period.Key{}, nil
	}

	keys := make([]period.Key, 0, n+1)
	for k := start; len(keys) <= n; k = k.Next() {
		keys = append(keys, k)
	}
	return keys, nil
}

func clampSpan(n int) int {
	return min(max(n, 0), MaxTimelineSpan)
}

// ClassifyTimeline classifies each key of a window.
func ClassifyTimeline(p Profile, keys []period.Key, asOf period.Date, paid map[period.Key]PaymentRecord) ([]ClassifiedPeriod, error) {
	out := make([]ClassifiedPeriod, 0, len(keys))
	if !p.HasObligation() {
		return out, nil
	}
	current := period.KeyOf(asOf, p.Interval)
	first := p.FirstDueKey()
	for _, k := range keys {
		_, ok := paid[k]
		st, err := Classify(k, current, first, ok)
		if err != nil {
			return nil, err
		}
		out = append(out, ClassifiedPeriod{Period: k, Status: st})
	}
	return out, nil
}
