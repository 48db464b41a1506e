// Package slots resolves a doctor's availability, absences and bookings into
// half-hour slot states and validates changes against them.
//
// Everything here is synchronous and works on a snapshot supplied by the caller.
package slots

import (
	"time"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

const (
	SlotLength = 30 * time.Minute

	dayStart   = domain.ClockTime(7 * 60)
	dayEnd     = domain.ClockTime(22 * 60)
	slotMinute = domain.ClockTime(SlotLength / time.Minute)
)

// DayAxis returns the fixed ticks of a calendar day, 07:00 through 21:30.
func DayAxis() []domain.ClockTime {
	return Ticks(dayStart, dayEnd)
}

// Ticks returns the slot starts t with from <= t < to, stepping by SlotLength.
func Ticks(from, to domain.ClockTime) []domain.ClockTime {
	if to <= from {
		return nil
	}
	out := make([]domain.ClockTime, 0, int(to-from)/int(slotMinute))
	for t := from; t+slotMinute <= to; t += slotMinute {
		out = append(out, t)
	}
	return out
}

// OnAxis reports whether t is one of the DayAxis ticks.
func OnAxis(t domain.ClockTime) bool {
	return t >= dayStart && t < dayEnd && (t-dayStart)%slotMinute == 0
}

func StartOfWeek(d domain.Date) domain.Date {
	return domain.MondayOf(d)
}

func EndOfWeek(d domain.Date) domain.Date {
	return StartOfWeek(d).AddDays(6)
}

// WeekDates returns Monday through Sunday of the week containing anchor.
func WeekDates(anchor domain.Date) [7]domain.Date {
	var out [7]domain.Date
	start := StartOfWeek(anchor)
	for i := range out {
		out[i] = start.AddDays(i)
	}
	return out
}

// Bucket is one of the coarse time-of-day filters of the calendar view.
type Bucket string

const (
	BucketAll       Bucket = ""
	BucketMorning   Bucket = "morning"
	BucketAfternoon Bucket = "afternoon"
	BucketEvening   Bucket = "evening"
)

// Contains reports whether t falls into the bucket: morning 07-12, afternoon 12-17, evening 17-22.
func (b Bucket) Contains(t domain.ClockTime) bool {
	switch b {
	case BucketAll:
		return true
	case BucketMorning:
		return t >= domain.Clock(7, 0) && t < domain.Clock(12, 0)
	case BucketAfternoon:
		return t >= domain.Clock(12, 0) && t < domain.Clock(17, 0)
	case BucketEvening:
		return t >= domain.Clock(17, 0) && t < domain.Clock(22, 0)
	default:
		return false
	}
}

func ParseBucket(s string) (Bucket, bool) {
	switch b := Bucket(s); b {
	case BucketAll, BucketMorning, BucketAfternoon, BucketEvening:
		return b, true
	default:
		return "", false
	}
}
