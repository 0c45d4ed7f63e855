package models

import "sort"

// Period is an academic reporting window. Periods form a fixed containment
// tree: quartiles roll up into semesters, semesters into the year, and the
// summer semester plus the year into the full year.
type Period string

const (
	PeriodQ1       Period = "Q1"
	PeriodQ2       Period = "Q2"
	PeriodQ3       Period = "Q3"
	PeriodQ4       Period = "Q4"
	PeriodQ5       Period = "Q5"
	PeriodS1       Period = "S1"
	PeriodS2       Period = "S2"
	PeriodS3       Period = "S3"
	PeriodYear     Period = "YEAR"
	PeriodFullYear Period = "FULL_YEAR"
)

// AllPeriods lists every period in ascending sort order.
var AllPeriods = []Period{
	PeriodQ1, PeriodQ2, PeriodQ3, PeriodQ4, PeriodQ5,
	PeriodS1, PeriodS2, PeriodS3,
	PeriodYear, PeriodFullYear,
}

// Quartiles sort below semesters, semesters below the year aggregates. The
// gaps leave room within each tier without renumbering.
var periodSortIndex = map[Period]int{
	PeriodQ1:       0x01,
	PeriodQ2:       0x02,
	PeriodQ3:       0x03,
	PeriodQ4:       0x04,
	PeriodQ5:       0x05,
	PeriodS1:       0x10,
	PeriodS2:       0x11,
	PeriodS3:       0x12,
	PeriodYear:     0x20,
	PeriodFullYear: 0x30,
}

// periodParent fixes the containment tree. FULL_YEAR is the root and has no
// entry.
var periodParent = map[Period]Period{
	PeriodQ1:   PeriodS1,
	PeriodQ2:   PeriodS1,
	PeriodQ3:   PeriodS2,
	PeriodQ4:   PeriodS2,
	PeriodQ5:   PeriodS3,
	PeriodS1:   PeriodYear,
	PeriodS2:   PeriodYear,
	PeriodS3:   PeriodFullYear,
	PeriodYear: PeriodFullYear,
}

var periodChildren = map[Period][]Period{
	PeriodS1:       {PeriodQ1, PeriodQ2},
	PeriodS2:       {PeriodQ3, PeriodQ4},
	PeriodS3:       {PeriodQ5},
	PeriodYear:     {PeriodS1, PeriodS2},
	PeriodFullYear: {PeriodYear, PeriodS3},
}

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	_, ok := periodSortIndex[p]
	return ok
}

// SortIndex returns the fixed ordering key for the period. Unknown periods
// sort after everything.
func (p Period) SortIndex() int {
	if idx, ok := periodSortIndex[p]; ok {
		return idx
	}
	return 1 << 30
}

// Less reports whether p sorts strictly before other.
func (p Period) Less(other Period) bool {
	return p.SortIndex() < other.SortIndex()
}

// Compare returns -1, 0 or 1 per the fixed total order.
func (p Period) Compare(other Period) int {
	a, b := p.SortIndex(), other.SortIndex()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsQuartile reports whether the period is one of the five quartiles.
func (p Period) IsQuartile() bool {
	switch p {
	case PeriodQ1, PeriodQ2, PeriodQ3, PeriodQ4, PeriodQ5:
		return true
	}
	return false
}

// Parent returns the immediate enclosing period. The second return value is
// false for the root (FULL_YEAR) and for unknown periods.
func (p Period) Parent() (Period, bool) {
	parent, ok := periodParent[p]
	return parent, ok
}

// Children returns the immediate sub-periods, in ascending sort order.
// Quartiles are leaves and return an empty slice.
func (p Period) Children() []Period {
	children := periodChildren[p]
	out := make([]Period, len(children))
	copy(out, children)
	return out
}

// AllChildren expands the containment tree below p: every transitive
// descendant, deduplicated and sorted ascending. Leaves return an empty
// slice.
func (p Period) AllChildren() []Period {
	var result []Period
	for _, child := range p.Children() {
		result = append(result, child.AllChildren()...)
		result = append(result, child)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Less(result[j]) })
	if result == nil {
		return []Period{}
	}
	return result
}

// AllParents walks the containment tree upwards and returns the ancestor
// chain from the immediate parent up to FULL_YEAR.
func (p Period) AllParents() []Period {
	result := []Period{}
	current := p
	for {
		parent, ok := current.Parent()
		if !ok {
			return result
		}
		result = append(result, parent)
		current = parent
	}
}

// FallsIn reports whether a course scheduled in p belongs to a report for
// target: true when target equals p or is an ancestor or descendant of it.
// A full-year course shows up in every quartile report and a quartile course
// shows up in its semester's report.
func (p Period) FallsIn(target Period) bool {
	if p == target {
		return true
	}
	for _, parent := range p.AllParents() {
		if parent == target {
			return true
		}
	}
	for _, child := range p.AllChildren() {
		if child == target {
			return true
		}
	}
	return false
}

// ReportingWindow pins a report to a calendar year and period. Callers pass
// it explicitly; defaults come from configuration, never from shared state.
type ReportingWindow struct {
	Year   int    `json:"year"`
	Period Period `json:"period"`
}

// Contains applies the window to a course's calendar year and period.
func (w ReportingWindow) Contains(year int, period Period) bool {
	return year == w.Year && period.FallsIn(w.Period)
}

// PeriodClosure returns the period itself plus all its ancestors and
// descendants. A course whose period is in the closure of the window's
// period falls inside the window; the list feeds SQL IN filters.
func PeriodClosure(p Period) []Period {
	closure := append([]Period{}, p.AllChildren()...)
	closure = append(closure, p)
	closure = append(closure, p.AllParents()...)
	sort.Slice(closure, func(i, j int) bool { return closure[i].Less(closure[j]) })
	return closure
}
