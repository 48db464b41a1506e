package slots

import (
	"fmt"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

func ValidateDateRange(start, end domain.Date) error {
	if start.IsZero() || end.IsZero() {
		return conflict(KindInvalidRange, "start and end dates are required")
	}
	if end.Before(start) {
		return conflict(KindInvalidRange, fmt.Sprintf("end date %s is before start date %s", end, start))
	}
	return nil
}

// ValidateTimePair requires both strings to parse and from to be strictly earlier than to.
func ValidateTimePair(from, to string) error {
	r, err := ParseRange(domain.TimeRange{From: from, To: to})
	if err != nil {
		return err
	}
	if r.From >= r.To {
		return conflict(KindInvalidTimePair, fmt.Sprintf("start time %s must be before end time %s", r.From, r.To))
	}
	return nil
}

// ValidateNoOverlap rejects any two ranges of one window that share a minute.
// Adjacent ranges such as 09:00-10:00 and 10:00-11:00 do not overlap.
func ValidateNoOverlap(ranges []domain.TimeRange) error {
	parsed := make([]Range, 0, len(ranges))
	for _, tr := range ranges {
		r, err := ParseRange(tr)
		if err != nil {
			return err
		}
		parsed = append(parsed, r)
	}
	for i := 0; i < len(parsed); i++ {
		for j := i + 1; j < len(parsed); j++ {
			if parsed[i].Overlaps(parsed[j]) {
				return conflict(KindOverlapInWindow, fmt.Sprintf("time ranges %s and %s overlap", parsed[i], parsed[j]))
			}
		}
	}
	return nil
}

// ValidateWindowShape checks a candidate window in isolation.
func ValidateWindowShape(w domain.AvailabilityWindow) error {
	switch w.Kind {
	case domain.WindowKindRecurring:
		if err := ValidateDateRange(w.StartDate, w.EndDate); err != nil {
			return err
		}
		if len(w.Days) == 0 {
			return conflict(KindInvalidRange, "recurring availability needs at least one weekday")
		}
		for _, d := range w.Days {
			if !d.Valid() {
				return conflict(KindInvalidRange, fmt.Sprintf("invalid weekday %d", int(d)))
			}
		}
	case domain.WindowKindOneOff:
		if w.StartDate.IsZero() {
			return conflict(KindInvalidRange, "start date is required")
		}
	default:
		return conflict(KindInvalidRange, fmt.Sprintf("unknown availability kind %q", w.Kind))
	}

	if len(w.TimeRanges) == 0 {
		return conflict(KindInvalidTimePair, "at least one time range is required")
	}
	for _, tr := range w.TimeRanges {
		if err := ValidateTimePair(tr.From, tr.To); err != nil {
			return err
		}
	}
	return ValidateNoOverlap(w.TimeRanges)
}

// ValidateAvailability rejects a candidate that is active on any date an absence covers.
func ValidateAvailability(candidate domain.AvailabilityWindow, absences []domain.Absence) error {
	for _, a := range absences {
		if a.DoctorID != "" && candidate.DoctorID != "" && a.DoctorID != candidate.DoctorID {
			continue
		}
		if d, ok := firstActiveDate(candidate, a.StartDate, a.EndDate); ok {
			return conflict(KindOverlapsAbsence, fmt.Sprintf("availability on %s overlaps absence %s..%s", d, a.StartDate, a.EndDate))
		}
	}
	return nil
}

// ValidateAgainstWindows rejects a candidate whose ranges overlap those of an existing
// window on a date both are active.
func ValidateAgainstWindows(candidate domain.AvailabilityWindow, existing []domain.AvailabilityWindow) error {
	mine := make([]Range, 0, len(candidate.TimeRanges))
	for _, tr := range candidate.TimeRanges {
		r, err := ParseRange(tr)
		if err != nil {
			return err
		}
		mine = append(mine, r)
	}

	for _, other := range existing {
		if other.ID != "" && other.ID == candidate.ID {
			continue
		}
		if other.DoctorID != candidate.DoctorID {
			continue
		}
		d, ok := firstSharedDate(candidate, other)
		if !ok {
			continue
		}
		for _, tr := range other.TimeRanges {
			theirs, err := ParseRange(tr)
			if err != nil {
				return err
			}
			for _, r := range mine {
				if r.Overlaps(theirs) {
					return conflict(KindOverlapsAvailability, fmt.Sprintf("time range %s on %s overlaps existing availability %s", r, d, theirs))
				}
			}
		}
	}
	return nil
}

// ValidateAppointmentSlot rejects a candidate whose slot is held by a non-cancelled
// appointment in existing. This is a best-effort pre-check; the store enforces
// uniqueness when two bookings race.
func ValidateAppointmentSlot(candidate domain.Appointment, existing []domain.Appointment) error {
	if _, err := domain.ParseClock(candidate.Time); err != nil {
		return conflict(KindMalformedTime, fmt.Sprintf("malformed appointment time %q", candidate.Time))
	}
	for _, e := range existing {
		if e.Cancelled || (candidate.ID != "" && e.ID == candidate.ID) {
			continue
		}
		if candidate.SameSlot(e) {
			return conflict(KindSlotTaken, fmt.Sprintf("slot %s %s is already booked", candidate.Date, candidate.Time))
		}
	}
	return nil
}

// AffectedAppointments returns the non-cancelled appointments an absence covers.
func AffectedAppointments(absence domain.Absence, appts []domain.Appointment) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range appts {
		if a.Cancelled || a.DoctorID != absence.DoctorID {
			continue
		}
		if absence.Covers(a.Date) {
			out = append(out, a)
		}
	}
	return out
}

// firstActiveDate finds the earliest date in [from, to] the window is active on.
// A week of candidates is enough: weekday membership repeats every seven days.
func firstActiveDate(w domain.AvailabilityWindow, from, to domain.Date) (domain.Date, bool) {
	if from.Before(w.StartDate) {
		from = w.StartDate
	}
	if last := w.LastDate(); to.After(last) {
		to = last
	}
	for d, i := from, 0; !d.After(to) && i < 7; d, i = d.AddDays(1), i+1 {
		if w.ActiveOn(d) {
			return d, true
		}
	}
	return domain.Date{}, false
}

func firstSharedDate(a, b domain.AvailabilityWindow) (domain.Date, bool) {
	from := a.StartDate
	if b.StartDate.After(from) {
		from = b.StartDate
	}
	to := a.LastDate()
	if b.LastDate().Before(to) {
		to = b.LastDate()
	}
	for d, i := from, 0; !d.After(to) && i < 7; d, i = d.AddDays(1), i+1 {
		if a.ActiveOn(d) && b.ActiveOn(d) {
			return d, true
		}
	}
	return domain.Date{}, false
}
