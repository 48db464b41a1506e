package grpc

import (
	"time"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
)

// Dates travel as YYYY-MM-DD strings and times as HH:MM so that malformed input
// reaches the handlers and is reported as InvalidArgument.

type GetDayRequest struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
	// Bucket optionally narrows the slots to "morning", "afternoon" or "evening".
	Bucket string `json:"bucket,omitempty"`
}

type GetDayResponse struct {
	Day slots.DayView `json:"day"`
}

type GetWeekRequest struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
}

type GetWeekResponse struct {
	Week slots.WeekView `json:"week"`
}

type ListFreeSlotsRequest struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
}

type ListFreeSlotsResponse struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

type CreateAvailabilityRequest struct {
	DoctorID   string             `json:"doctorId"`
	Kind       string             `json:"kind"`
	StartDate  string             `json:"startDate"`
	EndDate    string             `json:"endDate,omitempty"`
	Days       []string           `json:"days,omitempty"`
	TimeRanges []domain.TimeRange `json:"timeRanges"`
}

type CreateAvailabilityResponse struct {
	Availability domain.AvailabilityWindow `json:"availability"`
}

type DeleteAvailabilityRequest struct {
	DoctorID       string `json:"doctorId"`
	AvailabilityID string `json:"availabilityId"`
}

type DeleteAvailabilityResponse struct{}

type CreateAbsenceRequest struct {
	DoctorID  string `json:"doctorId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Reason    string `json:"reason,omitempty"`
}

type CreateAbsenceResponse struct {
	Absence   domain.Absence       `json:"absence"`
	Cancelled []domain.Appointment `json:"cancelled,omitempty"`
}

type DeleteAbsenceRequest struct {
	DoctorID  string `json:"doctorId"`
	AbsenceID string `json:"absenceId"`
}

type DeleteAbsenceResponse struct{}

type BookAppointmentRequest struct {
	DoctorID        string `json:"doctorId"`
	PatientID       string `json:"patientId"`
	Type            string `json:"type"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration,omitempty"`
	Details         string `json:"details,omitempty"`
}

type BookAppointmentResponse struct {
	Appointment domain.Appointment `json:"appointment"`
}

type CancelAppointmentRequest struct {
	DoctorID      string `json:"doctorId"`
	AppointmentID string `json:"appointmentId"`
}

type CancelAppointmentResponse struct {
	Appointment domain.Appointment `json:"appointment"`
}

// DeleteAppointmentRequest removes the record outright; CancelAppointment keeps it.
type DeleteAppointmentRequest struct {
	DoctorID      string `json:"doctorId"`
	AppointmentID string `json:"appointmentId"`
}

type DeleteAppointmentResponse struct{}

type ListAppointmentsRequest struct {
	DoctorID string `json:"doctorId"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type ListAppointmentsResponse struct {
	Appointments []domain.Appointment `json:"appointments"`
}

type WatchChangesRequest struct {
	// DoctorID limits the stream to one doctor; empty watches everyone.
	DoctorID string `json:"doctorId,omitempty"`
}

type ChangeEvent struct {
	Kind     string    `json:"kind"`
	DoctorID string    `json:"doctorId"`
	ID       string    `json:"id,omitempty"`
	At       time.Time `json:"at"`
}
