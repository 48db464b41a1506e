package postgres

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

type fakeDoctorTx struct {
	listAppointmentsOnFn func(ctx context.Context, doctorID string, date domain.Date) ([]domain.Appointment, error)
	listAvailabilityFn   func(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error)
}

func (f *fakeDoctorTx) ListAppointmentsOn(ctx context.Context, doctorID string, date domain.Date) ([]domain.Appointment, error) {
	if f.listAppointmentsOnFn == nil {
		return nil, nil
	}
	return f.listAppointmentsOnFn(ctx, doctorID, date)
}

func (f *fakeDoctorTx) InsertAppointment(ctx context.Context, a domain.Appointment) (domain.Appointment, error) {
	panic("not used")
}

func (f *fakeDoctorTx) CancelAppointments(ctx context.Context, doctorID string, ids []string) error {
	panic("not used")
}

func (f *fakeDoctorTx) DeleteAppointment(ctx context.Context, doctorID, id string) error {
	panic("not used")
}

func (f *fakeDoctorTx) ListAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
	if f.listAvailabilityFn == nil {
		return nil, nil
	}
	return f.listAvailabilityFn(ctx, doctorID)
}

func (f *fakeDoctorTx) InsertAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	panic("not used")
}

func (f *fakeDoctorTx) InsertAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error) {
	panic("not used")
}

func TestEnsureSlotFree(t *testing.T) {
	date := domain.MustParseDate("2026-01-05")
	existing := []domain.Appointment{
		{ID: "a1", DoctorID: "d1", Date: date, Time: "09:00"},
		{ID: "a2", DoctorID: "d1", Date: date, Time: "10:00", Cancelled: true},
	}
	tx := &fakeDoctorTx{
		listAppointmentsOnFn: func(ctx context.Context, doctorID string, d domain.Date) ([]domain.Appointment, error) {
			if doctorID != "d1" || d != date {
				t.Fatalf("ListAppointmentsOn(%q, %s), want d1 %s", doctorID, d, date)
			}
			return existing, nil
		},
	}

	tests := []struct {
		name string
		appt domain.Appointment
		want error
	}{
		{name: "taken", appt: domain.Appointment{DoctorID: "d1", Date: date, Time: "9:00"}, want: store.ErrSlotTaken},
		{name: "cancelled slot reusable", appt: domain.Appointment{DoctorID: "d1", Date: date, Time: "10:00"}},
		{name: "idempotent replay passes through", appt: domain.Appointment{ID: "a1", DoctorID: "d1", Date: date, Time: "09:00"}},
		{name: "free", appt: domain.Appointment{DoctorID: "d1", Date: date, Time: "11:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ensureSlotFree(context.Background(), tx, tt.appt)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEnsureNoWindowOverlap(t *testing.T) {
	existing := domain.AvailabilityWindow{
		ID:         "w1",
		DoctorID:   "d1",
		Kind:       domain.WindowKindRecurring,
		StartDate:  domain.MustParseDate("2026-01-01"),
		EndDate:    domain.MustParseDate("2026-01-31"),
		Days:       []domain.Weekday{domain.Monday},
		TimeRanges: []domain.TimeRange{{From: "9:00", To: "12:00"}},
	}
	tx := &fakeDoctorTx{
		listAvailabilityFn: func(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
			return []domain.AvailabilityWindow{existing}, nil
		},
	}

	candidate := existing
	candidate.ID = ""
	candidate.TimeRanges = []domain.TimeRange{{From: "11:30", To: "13:00"}}
	if err := ensureNoWindowOverlap(context.Background(), tx, candidate); !errors.Is(err, slots.ErrOverlapsAvailability) {
		t.Fatalf("err = %v, want ErrOverlapsAvailability", err)
	}

	candidate.Days = []domain.Weekday{domain.Tuesday}
	if err := ensureNoWindowOverlap(context.Background(), tx, candidate); err != nil {
		t.Fatalf("different weekday error: %v", err)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("iofs.New error: %v", err)
	}
	defer func() { _ = src.Close() }()

	first, err := src.First()
	if err != nil {
		t.Fatalf("First error: %v", err)
	}
	if first != 1 {
		t.Fatalf("first version = %d, want 1", first)
	}

	r, name, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("ReadUp error: %v", err)
	}
	up, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	if name != "calendar" {
		t.Fatalf("identifier = %q, want calendar", name)
	}
	if strings.Contains(string(up), "DROP TABLE") {
		t.Fatalf("up migration contains down statements")
	}
	if !strings.Contains(string(up), slotConstraint) {
		t.Fatalf("up migration does not create %s", slotConstraint)
	}

	r, _, err = src.ReadDown(first)
	if err != nil {
		t.Fatalf("ReadDown error: %v", err)
	}
	down, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}
	if !strings.Contains(string(down), "DROP TABLE IF EXISTS appointments") {
		t.Fatalf("down migration = %q", down)
	}
}

func TestMapWriteError(t *testing.T) {
	if err := mapWriteError(&pgconn.PgError{Code: "23514"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("check violation = %v, want ErrConflict", err)
	}
	other := errors.New("boom")
	if err := mapWriteError(other); err != other {
		t.Fatalf("unmapped error = %v, want %v", err, other)
	}
}
