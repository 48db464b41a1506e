package store

import (
	"context"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

// Repository is implemented by every storage backend.
type Repository interface {
	FetchAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error)
	CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)
	DeleteAvailability(ctx context.Context, doctorID, id string) error

	FetchAbsences(ctx context.Context, doctorID string) ([]domain.Absence, error)
	CreateAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error)
	DeleteAbsence(ctx context.Context, doctorID, id string) error

	// FetchAppointments returns the doctor's appointments dated within [from, to],
	// cancelled ones included.
	FetchAppointments(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (domain.Appointment, error)
	// CreateAppointment fails with ErrSlotTaken when the slot is already held. Replaying
	// an identical appointment with the same ID returns the stored one; a different
	// appointment under a used ID fails with ErrIdempotencyConflict.
	CreateAppointment(ctx context.Context, a domain.Appointment) (domain.Appointment, error)
	// CancelAppointments marks the listed appointments cancelled and releases their slots.
	CancelAppointments(ctx context.Context, doctorID string, ids []string) error
	DeleteAppointment(ctx context.Context, doctorID, id string) error

	Ping(ctx context.Context) error
}

// SameAppointment reports whether a replayed create carries the same content as the stored record.
func SameAppointment(stored, incoming domain.Appointment) bool {
	return stored.DoctorID == incoming.DoctorID &&
		stored.PatientID == incoming.PatientID &&
		stored.Type == incoming.Type &&
		stored.Date == incoming.Date &&
		stored.SameSlot(incoming) &&
		stored.DurationMinutes == incoming.DurationMinutes &&
		stored.Details == incoming.Details
}
