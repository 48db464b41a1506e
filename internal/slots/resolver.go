package slots

import (
	"fmt"
	"iter"
	"time"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

// Snapshot is everything known about one doctor's calendar at a point in time.
type Snapshot struct {
	DoctorID     string
	Availability []domain.AvailabilityWindow
	Absences     []domain.Absence
	Appointments []domain.Appointment
}

type SlotStatus struct {
	Time             domain.ClockTime    `json:"time"`
	Past             bool                `json:"past"`
	Current          bool                `json:"current"`
	Available        bool                `json:"available"`
	Booked           bool                `json:"booked"`
	Absent           bool                `json:"absent"`
	ConsultationType string              `json:"consultationType,omitempty"`
	Appointment      *domain.Appointment `json:"appointment,omitempty"`
}

type DayView struct {
	Date    domain.Date     `json:"date"`
	Absent  bool            `json:"absent"`
	Absence *domain.Absence `json:"absence,omitempty"`
	Slots   []SlotStatus    `json:"slots"`
	// Consultations counts the non-cancelled appointments of the day.
	Consultations int `json:"consultations"`
	// Cancellations lists appointments the absence implicitly cancels. They still
	// need to be persisted as cancelled by the caller.
	Cancellations []domain.Appointment `json:"cancellations,omitempty"`
}

// InBucket returns the slots whose start falls into b.
func (v DayView) InBucket(b Bucket) []SlotStatus {
	out := make([]SlotStatus, 0, len(v.Slots))
	for _, s := range v.Slots {
		if b.Contains(s.Time) {
			out = append(out, s)
		}
	}
	return out
}

type WeekView struct {
	Start domain.Date `json:"start"`
	End   domain.Date `json:"end"`
	Days  [7]DayView  `json:"days"`
}

// Resolver computes slot states for a single doctor. It never mutates its snapshot.
type Resolver struct {
	doctorID     string
	loc          *time.Location
	availability *AvailabilityIndex
	absences     *AbsenceIndex
	appointments []domain.Appointment
}

// NewResolver indexes snap. Records that belong to another doctor are ignored.
// Slot instants are interpreted in loc; nil means UTC.
func NewResolver(snap Snapshot, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}

	windows := make([]domain.AvailabilityWindow, 0, len(snap.Availability))
	for _, w := range snap.Availability {
		if ownedBy(snap.DoctorID, w.DoctorID) {
			windows = append(windows, w)
		}
	}
	absences := make([]domain.Absence, 0, len(snap.Absences))
	for _, a := range snap.Absences {
		if ownedBy(snap.DoctorID, a.DoctorID) {
			absences = append(absences, a)
		}
	}
	appts := make([]domain.Appointment, 0, len(snap.Appointments))
	for _, a := range snap.Appointments {
		if ownedBy(snap.DoctorID, a.DoctorID) {
			appts = append(appts, a)
		}
	}

	return &Resolver{
		doctorID:     snap.DoctorID,
		loc:          loc,
		availability: NewAvailabilityIndex(windows),
		absences:     NewAbsenceIndex(absences),
		appointments: appts,
	}
}

func ownedBy(doctorID, recordDoctorID string) bool {
	return doctorID == "" || recordDoctorID == doctorID
}

func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) Availability() *AvailabilityIndex { return r.availability }

func (r *Resolver) Absences() *AbsenceIndex { return r.absences }

// ResolveDay evaluates every tick of the day axis on date against now.
func (r *Resolver) ResolveDay(date domain.Date, now time.Time) (DayView, error) {
	ranges, err := r.availability.TimeRangesFor(date)
	if err != nil {
		return DayView{}, err
	}
	booked, err := r.bookedOn(date)
	if err != nil {
		return DayView{}, err
	}

	now = now.In(r.loc)
	today := domain.DateOf(now)
	absence, absent := r.absences.CoveringAbsence(date)

	view := DayView{Date: date, Absent: absent}
	if absent {
		a := absence
		view.Absence = &a
	}

	axis := DayAxis()
	view.Slots = make([]SlotStatus, 0, len(axis))
	for _, tick := range axis {
		start := date.At(tick, r.loc)
		s := SlotStatus{
			Time:    tick,
			Past:    start.Before(now),
			Current: date == today && !now.Before(start) && now.Before(start.Add(SlotLength)),
			Absent:  absent,
		}
		if appt, ok := booked[tick]; ok {
			a := appt
			s.Booked = true
			s.ConsultationType = a.Type
			s.Appointment = &a
		}
		s.Available = !s.Past && !s.Booked && !s.Absent && inAnyRange(ranges, tick) && start.After(now)
		view.Slots = append(view.Slots, s)
	}

	for _, a := range r.appointments {
		if a.Date != date || a.Cancelled {
			continue
		}
		view.Consultations++
		if absent {
			view.Cancellations = append(view.Cancellations, a)
		}
	}

	return view, nil
}

// ResolveWeek resolves the Monday-first week containing anchor.
func (r *Resolver) ResolveWeek(anchor domain.Date, now time.Time) (WeekView, error) {
	dates := WeekDates(anchor)
	out := WeekView{Start: dates[0], End: dates[6]}
	for i, d := range dates {
		v, err := r.ResolveDay(d, now)
		if err != nil {
			return WeekView{}, fmt.Errorf("resolve %s: %w", d, err)
		}
		out.Days[i] = v
	}
	return out, nil
}

// FreeSlots lists the bookable start times of date in ascending order. A past
// date, an absent date or a date without availability yields an empty sequence.
// Time strings are validated before the sequence is returned; the sequence
// itself is lazy and can be ranged over more than once.
func (r *Resolver) FreeSlots(date domain.Date, now time.Time) (iter.Seq[domain.ClockTime], error) {
	ranges, err := r.availability.TimeRangesFor(date)
	if err != nil {
		return nil, err
	}
	booked, err := r.bookedOn(date)
	if err != nil {
		return nil, err
	}

	now = now.In(r.loc)
	if date.Before(domain.DateOf(now)) || r.absences.IsAbsent(date) || len(ranges) == 0 {
		return func(func(domain.ClockTime) bool) {}, nil
	}

	return func(yield func(domain.ClockTime) bool) {
		for _, tick := range DayAxis() {
			if !inAnyRange(ranges, tick) {
				continue
			}
			if _, taken := booked[tick]; taken {
				continue
			}
			if !date.At(tick, r.loc).After(now) {
				continue
			}
			if !yield(tick) {
				return
			}
		}
	}, nil
}

// IsBookable reports whether a new appointment may start at tick on date.
func (r *Resolver) IsBookable(date domain.Date, tick domain.ClockTime, now time.Time) (bool, error) {
	free, err := r.FreeSlots(date, now)
	if err != nil {
		return false, err
	}
	for t := range free {
		if t == tick {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) bookedOn(date domain.Date) (map[domain.ClockTime]domain.Appointment, error) {
	out := make(map[domain.ClockTime]domain.Appointment)
	for _, a := range r.appointments {
		if a.Date != date || a.Cancelled {
			continue
		}
		t, err := domain.ParseClock(a.Time)
		if err != nil {
			return nil, conflict(KindMalformedTime, fmt.Sprintf("appointment %s has malformed time %q", a.ID, a.Time))
		}
		if _, dup := out[t]; !dup {
			out[t] = a
		}
	}
	return out, nil
}

func inAnyRange(ranges []Range, t domain.ClockTime) bool {
	for _, rg := range ranges {
		if rg.Contains(t) {
			return true
		}
	}
	return false
}
