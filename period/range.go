package period

// Range is an inclusive calendar span [Start, End].
type Range struct {
	Start Date
	End   Date
}

// Contains returns true if the date is within [Start, End].
func (r Range) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Days returns the number of days in the range, both ends included.
func (r Range) Days() int {
	return DaysBetween(r.Start, r.End) + 1
}

func (r Range) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// Range returns the calendar bounds of the period.
func (k Key) Range() Range {
	switch k.interval {
	case Monthly:
		m := k.Month()
		return Range{Start: StartOfMonth(k.year, m), End: EndOfMonth(k.year, m)}
	case Quarterly:
		first := k.Month()
		return Range{Start: StartOfMonth(k.year, first), End: EndOfMonth(k.year, first+2)}
	case Yearly:
		return Range{Start: StartOfYear(k.year), End: EndOfYear(k.year)}
	default:
		return Range{}
	}
}
