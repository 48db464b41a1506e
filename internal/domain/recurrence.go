package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type WindowKind string

const (
	WindowKindRecurring WindowKind = "recurring"
	WindowKindOneOff    WindowKind = "one_off"
)

// ParseWindowKind also accepts the localized names found in legacy data files.
func ParseWindowKind(s string) (WindowKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recurring", "cykliczne":
		return WindowKindRecurring, nil
	case "one_off", "one-off", "oneoff", "jednorazowe":
		return WindowKindOneOff, nil
	default:
		return "", fmt.Errorf("invalid availability kind %q", s)
	}
}

// TimeRange keeps the raw "H:MM" strings as entered; they are parsed on use.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type AvailabilityWindow struct {
	bun.BaseModel `bun:"table:availability_windows"`

	ID         string      `bun:"id,pk" json:"id"`
	DoctorID   string      `bun:"doctor_id,notnull" json:"doctorId"`
	Kind       WindowKind  `bun:"kind,notnull" json:"kind"`
	StartDate  Date        `bun:"start_date,type:date,notnull" json:"startDate"`
	EndDate    Date        `bun:"end_date,type:date,notnull" json:"endDate"`
	Days       []Weekday   `bun:"days,array,type:text[]" json:"days"`
	TimeRanges []TimeRange `bun:"time_ranges,type:jsonb,notnull" json:"timeRanges"`
	CreatedAt  time.Time   `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt  time.Time   `bun:"updated_at,notnull" json:"updatedAt"`
}

func (w *AvailabilityWindow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &w.ID, &w.CreatedAt, &w.UpdatedAt)
}

func (w AvailabilityWindow) HasDay(day Weekday) bool {
	for _, d := range w.Days {
		if d == day {
			return true
		}
	}
	return false
}

// ActiveOn reports whether the window applies to date. A one-off window covers its
// start date only; its stored end date is ignored.
func (w AvailabilityWindow) ActiveOn(date Date) bool {
	switch w.Kind {
	case WindowKindOneOff:
		return date == w.StartDate
	case WindowKindRecurring:
		return date.Within(w.StartDate, w.EndDate) && w.HasDay(date.Weekday())
	default:
		return false
	}
}

// LastDate is the last calendar date the window can be active on.
func (w AvailabilityWindow) LastDate() Date {
	if w.Kind == WindowKindOneOff {
		return w.StartDate
	}
	return w.EndDate
}

// ActiveDatesBetween expands the window into the dates in [from, to] it is active on.
func (w AvailabilityWindow) ActiveDatesBetween(from, to Date) []Date {
	if from.Before(w.StartDate) {
		from = w.StartDate
	}
	if last := w.LastDate(); to.After(last) {
		to = last
	}
	if from.After(to) {
		return nil
	}

	if w.Kind == WindowKindOneOff {
		return []Date{w.StartDate}
	}

	out := make([]Date, 0, 8)
	monday := MondayOf(from)
	for weekStart := monday; !weekStart.After(to); weekStart = weekStart.AddDays(7) {
		for day := Monday; day <= Sunday; day++ {
			if !w.HasDay(day) {
				continue
			}
			d := weekStart.AddDays(int(day))
			if d.Before(from) || d.After(to) {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

// MondayOf returns the Monday that starts the week containing d.
func MondayOf(d Date) Date {
	return d.AddDays(-int(d.Weekday()))
}
