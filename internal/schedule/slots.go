package schedule

import "time"

// Slot is a candidate start time on one day.
type Slot struct {
	Time      Clock
	Start     time.Time
	End       time.Time
	Available bool
}

type GenerateParams struct {
	// Date is any instant on the requested day, already in the business location.
	Date            time.Time
	Windows         []Window
	DurationMinutes int
	// StepMinutes <= 0 means back-to-back slots (step = duration).
	StepMinutes int
	// Slots starting before Now+LeadTime are never offered.
	Now      time.Time
	LeadTime time.Duration
}

// Generate discretizes windows into fixed-length slots. For each window it
// walks t = start, start+step, ... while t+duration <= end. The result is
// ascending and every slot is marked available pending conflict filtering.
// Wall-clock times skipped by a DST transition are not offered.
func Generate(p GenerateParams) []Slot {
	if p.DurationMinutes <= 0 {
		return nil
	}
	step := p.StepMinutes
	if step <= 0 {
		step = p.DurationMinutes
	}

	earliest := p.Now.Add(p.LeadTime)
	duration := time.Duration(p.DurationMinutes) * time.Minute

	var out []Slot
	for _, w := range Union(p.Windows) {
		for t := w.Start; t.Add(p.DurationMinutes) <= w.End; t = t.Add(step) {
			start := t.On(p.Date)
			if ClockOf(start) != t {
				// t falls in a DST gap and does not exist on this day.
				continue
			}
			if start.Before(earliest) {
				continue
			}
			out = append(out, Slot{
				Time:      t,
				Start:     start,
				End:       start.Add(duration),
				Available: true,
			})
		}
	}
	return out
}

// OnGrid reports whether a slot of the given length starting at t is one that
// Generate would produce for windows (ignoring "now").
func OnGrid(windows []Window, t Clock, durationMinutes, stepMinutes int) bool {
	if durationMinutes <= 0 {
		return false
	}
	if stepMinutes <= 0 {
		stepMinutes = durationMinutes
	}
	for _, w := range Union(windows) {
		if t < w.Start || t.Add(durationMinutes) > w.End {
			continue
		}
		if int(t-w.Start)%stepMinutes == 0 {
			return true
		}
	}
	return false
}
