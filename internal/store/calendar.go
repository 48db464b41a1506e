package store

import (
	"context"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

// DoctorTx is the set of operations available inside a transaction that holds a
// doctor's calendar lock.
type DoctorTx interface {
	ListAppointmentsOn(ctx context.Context, doctorID string, date domain.Date) ([]domain.Appointment, error)
	InsertAppointment(ctx context.Context, a domain.Appointment) (domain.Appointment, error)
	CancelAppointments(ctx context.Context, doctorID string, ids []string) error
	DeleteAppointment(ctx context.Context, doctorID, id string) error

	ListAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error)
	InsertAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)
	InsertAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error)
}
