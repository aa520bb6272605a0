package schedule

import "time"

// Busy is time already consumed by a booking, half-open [Start, End).
type Busy struct {
	Start time.Time
	End   time.Time
}

// Overlaps is the half-open interval test: [aStart,aEnd) and [bStart,bEnd)
// overlap iff aStart < bEnd && bStart < aEnd.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// MarkConflicts flips Available to false for every slot that overlaps a busy
// interval. The slice is modified in place and returned.
func MarkConflicts(slots []Slot, busy []Busy) []Slot {
	for i := range slots {
		for _, b := range busy {
			if Overlaps(slots[i].Start, slots[i].End, b.Start, b.End) {
				slots[i].Available = false
				break
			}
		}
	}
	return slots
}
