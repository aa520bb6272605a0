package schedule

import "sort"

// Window is a half-open time-of-day interval [Start, End).
type Window struct {
	Start Clock
	End   Clock
}

func (w Window) Empty() bool {
	return w.End <= w.Start
}

func (w Window) Minutes() int {
	if w.Empty() {
		return 0
	}
	return int(w.End - w.Start)
}

// BusinessDay is the opening record of a business for one weekday.
type BusinessDay struct {
	Window
	Closed bool
}

// Resolve returns the intervals in which an employee can be booked on one day:
// the union of the employee's availability clipped to the business opening
// hours. A nil day means the business has no record for that weekday and is
// treated as closed.
func Resolve(day *BusinessDay, availability []Window) []Window {
	if day == nil || day.Closed || day.Empty() {
		return nil
	}

	var out []Window
	for _, w := range Union(availability) {
		clipped := Window{Start: max(w.Start, day.Start), End: min(w.End, day.End)}
		if clipped.Empty() {
			continue
		}
		out = append(out, clipped)
	}
	return out
}

// Union sorts windows and merges the ones that overlap or touch.
// Empty and inverted windows are dropped.
func Union(windows []Window) []Window {
	valid := make([]Window, 0, len(windows))
	for _, w := range windows {
		if !w.Empty() {
			valid = append(valid, w)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start == valid[j].Start {
			return valid[i].End < valid[j].End
		}
		return valid[i].Start < valid[j].Start
	})

	merged := []Window{valid[0]}
	for _, w := range valid[1:] {
		last := &merged[len(merged)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}
