package filestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

// flexID accepts both JSON numbers and strings; older data files use numeric ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func firstID(ids ...flexID) string {
	for _, id := range ids {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

var localizedDays = map[string]domain.Weekday{
	"poniedziałek": domain.Monday,
	"wtorek":       domain.Tuesday,
	"środa":        domain.Wednesday,
	"czwartek":     domain.Thursday,
	"piątek":       domain.Friday,
	"sobota":       domain.Saturday,
	"niedziela":    domain.Sunday,
}

func parseDay(s string) (domain.Weekday, error) {
	if d, ok := localizedDays[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return domain.ParseWeekday(s)
}

type availabilityRecord struct {
	ID         flexID             `json:"id"`
	MongoID    flexID             `json:"_id"`
	UID        flexID             `json:"uid"`
	DoctorID   flexID             `json:"doctorId"`
	Kind       string             `json:"kind"`
	Type       string             `json:"type"`
	StartDate  string             `json:"startDate"`
	EndDate    string             `json:"endDate"`
	Days       []string           `json:"days"`
	TimeRanges []domain.TimeRange `json:"timeRanges"`
	TimeSlots  []domain.TimeRange `json:"timeSlots"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

func (r availabilityRecord) toDomain() (domain.AvailabilityWindow, error) {
	kindName := r.Kind
	if kindName == "" {
		kindName = r.Type
	}
	kind, err := domain.ParseWindowKind(kindName)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	start, err := domain.ParseDate(r.StartDate)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	end := start
	if r.EndDate != "" {
		if end, err = domain.ParseDate(r.EndDate); err != nil {
			return domain.AvailabilityWindow{}, err
		}
	}
	days := make([]domain.Weekday, 0, len(r.Days))
	for _, name := range r.Days {
		d, err := parseDay(name)
		if err != nil {
			return domain.AvailabilityWindow{}, err
		}
		days = append(days, d)
	}
	ranges := r.TimeRanges
	if len(ranges) == 0 {
		ranges = r.TimeSlots
	}
	return domain.AvailabilityWindow{
		ID:         firstID(r.ID, r.MongoID, r.UID),
		DoctorID:   string(r.DoctorID),
		Kind:       kind,
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		TimeRanges: ranges,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

type absenceRecord struct {
	ID        flexID    `json:"id"`
	MongoID   flexID    `json:"_id"`
	UID       flexID    `json:"uid"`
	DoctorID  flexID    `json:"doctorId"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r absenceRecord) toDomain() (domain.Absence, error) {
	start, err := domain.ParseDate(r.StartDate)
	if err != nil {
		return domain.Absence{}, err
	}
	end, err := domain.ParseDate(r.EndDate)
	if err != nil {
		return domain.Absence{}, err
	}
	return domain.Absence{
		ID:        firstID(r.ID, r.MongoID, r.UID),
		DoctorID:  string(r.DoctorID),
		StartDate: start,
		EndDate:   end,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

type appointmentRecord struct {
	ID            flexID    `json:"id"`
	AppointmentID flexID    `json:"appointmentId"`
	MongoID       flexID    `json:"_id"`
	DoctorID      flexID    `json:"doctorId"`
	PatientID     flexID    `json:"patientId"`
	Type          string    `json:"type"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Duration      int       `json:"duration"`
	Occurred      bool      `json:"occurred"`
	Cancelled     bool      `json:"cancelled"`
	Details       string    `json:"details"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (r appointmentRecord) toDomain() (domain.Appointment, error) {
	date, err := domain.ParseDate(r.Date)
	if err != nil {
		return domain.Appointment{}, err
	}
	duration := r.Duration
	if duration <= 0 {
		duration = domain.DefaultAppointmentDuration
	}
	return domain.Appointment{
		ID:              firstID(r.ID, r.AppointmentID, r.MongoID),
		DoctorID:        string(r.DoctorID),
		PatientID:       string(r.PatientID),
		Type:            r.Type,
		Date:            date,
		Time:            r.Time,
		DurationMinutes: duration,
		Occurred:        r.Occurred,
		Cancelled:       r.Cancelled,
		Details:         r.Details,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}
