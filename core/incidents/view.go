package incidents

import "sort"

// FilterBySeverity keeps incidents matching f in their original order. The
// result never aliases the input.
func FilterBySeverity(items []Incident, f SeverityFilter) []Incident {
	out := make([]Incident, 0, len(items))
	for _, item := range items {
		if f.Matches(item.Severity) {
			out = append(out, item)
		}
	}
	return out
}

// SortByReported returns a copy of items ordered by reported_at. Equal
// instants keep their relative order.
func SortByReported(items []Incident, order SortOrder) []Incident {
	out := make([]Incident, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ReportedTime(), out[j].ReportedTime()
		if order == OldestFirst {
			return a.Before(b)
		}
		return a.After(b)
	})
	return out
}

// Derive applies the filter first and then the sort.
func Derive(items []Incident, f SeverityFilter, order SortOrder) []Incident {
	return SortByReported(FilterBySeverity(items, f), order)
}
