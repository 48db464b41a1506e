package slots

import (
	"fmt"
	"sort"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

// Range is a parsed half-open time range [From, To).
type Range struct {
	From domain.ClockTime
	To   domain.ClockTime
}

func (r Range) Contains(t domain.ClockTime) bool {
	return r.From <= t && t < r.To
}

func (r Range) Overlaps(o Range) bool {
	return r.From < o.To && o.From < r.To
}

func (r Range) String() string {
	return r.From.String() + "-" + r.To.String()
}

// ParseRange parses a raw time pair without checking its order.
func ParseRange(tr domain.TimeRange) (Range, error) {
	from, err := domain.ParseClock(tr.From)
	if err != nil {
		return Range{}, conflict(KindMalformedTime, fmt.Sprintf("malformed start time %q", tr.From))
	}
	to, err := domain.ParseClock(tr.To)
	if err != nil {
		return Range{}, conflict(KindMalformedTime, fmt.Sprintf("malformed end time %q", tr.To))
	}
	return Range{From: from, To: to}, nil
}

// AvailabilityIndex answers which windows apply to a date.
type AvailabilityIndex struct {
	windows []domain.AvailabilityWindow
}

func NewAvailabilityIndex(windows []domain.AvailabilityWindow) *AvailabilityIndex {
	return &AvailabilityIndex{windows: windows}
}

func (ix *AvailabilityIndex) WindowsActiveOn(date domain.Date) []domain.AvailabilityWindow {
	var out []domain.AvailabilityWindow
	for _, w := range ix.windows {
		if w.ActiveOn(date) {
			out = append(out, w)
		}
	}
	return out
}

// TimeRangesFor returns the ranges of all windows active on date, ordered by start.
// Overlapping windows are not merged; callers test membership against each range.
func (ix *AvailabilityIndex) TimeRangesFor(date domain.Date) ([]Range, error) {
	var out []Range
	for _, w := range ix.WindowsActiveOn(date) {
		for _, tr := range w.TimeRanges {
			r, err := ParseRange(tr)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out, nil
}

// AbsenceIndex answers whether a date is blocked by an absence.
type AbsenceIndex struct {
	absences []domain.Absence
}

func NewAbsenceIndex(absences []domain.Absence) *AbsenceIndex {
	return &AbsenceIndex{absences: absences}
}

func (ix *AbsenceIndex) IsAbsent(date domain.Date) bool {
	_, ok := ix.CoveringAbsence(date)
	return ok
}

func (ix *AbsenceIndex) CoveringAbsence(date domain.Date) (domain.Absence, bool) {
	for _, a := range ix.absences {
		if a.Covers(date) {
			return a, true
		}
	}
	return domain.Absence{}, false
}
