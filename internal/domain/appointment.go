package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

const DefaultAppointmentDuration = 30

// Appointment types offered by the booking form.
const (
	AppointmentTypeFollowUp     = "follow_up"
	AppointmentTypePrescription = "prescription"
	AppointmentTypeConsultation = "consultation"
	AppointmentTypeTests        = "tests"
	AppointmentTypeFirstVisit   = "first_visit"
	AppointmentTypeChronic      = "chronic_illness"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              string    `bun:"id,pk" json:"id"`
	DoctorID        string    `bun:"doctor_id,notnull" json:"doctorId"`
	PatientID       string    `bun:"patient_id,notnull" json:"patientId"`
	Type            string    `bun:"type,notnull" json:"type"`
	Date            Date      `bun:"date,type:date,notnull" json:"date"`
	Time            string    `bun:"time,notnull" json:"time"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration"`
	Occurred        bool      `bun:"occurred,notnull" json:"occurred"`
	Cancelled       bool      `bun:"cancelled,notnull" json:"cancelled"`
	Details         string    `bun:"details" json:"details,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// SameSlot reports whether both appointments claim the same doctor, date and start time.
func (a Appointment) SameSlot(other Appointment) bool {
	if a.DoctorID != other.DoctorID || a.Date != other.Date {
		return false
	}
	at, err := ParseClock(a.Time)
	if err != nil {
		return a.Time == other.Time
	}
	bt, err := ParseClock(other.Time)
	if err != nil {
		return false
	}
	return at == bt
}

type Absence struct {
	bun.BaseModel `bun:"table:absences"`

	ID        string    `bun:"id,pk" json:"id"`
	DoctorID  string    `bun:"doctor_id,notnull" json:"doctorId"`
	StartDate Date      `bun:"start_date,type:date,notnull" json:"startDate"`
	EndDate   Date      `bun:"end_date,type:date,notnull" json:"endDate"`
	Reason    string    `bun:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

func (a *Absence) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// Covers reports whether date falls inside the absence, both ends inclusive.
func (a Absence) Covers(date Date) bool {
	return date.Within(a.StartDate, a.EndDate)
}
