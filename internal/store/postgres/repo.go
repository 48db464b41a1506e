package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

const slotConstraint = "appointments_doctor_slot_key"

type Repo struct {
	db *bun.DB
}

func NewRepo(db *bun.DB) *Repo {
	return &Repo{db: db}
}

var _ store.Repository = (*Repo)(nil)

type doctorTx struct {
	tx bun.Tx
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repo) FetchAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := r.db.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		OrderExpr("start_date ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	var out domain.AvailabilityWindow
	err := r.InDoctorTransaction(ctx, w.DoctorID, func(ctx context.Context, tx store.DoctorTx) error {
		if err := ensureNoWindowOverlap(ctx, tx, w); err != nil {
			return err
		}
		created, err := tx.InsertAvailability(ctx, w)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	return out, nil
}

func (r *Repo) DeleteAvailability(ctx context.Context, doctorID, id string) error {
	return deleteOwned(ctx, r.db, (*domain.AvailabilityWindow)(nil), doctorID, id)
}

func (r *Repo) FetchAbsences(ctx context.Context, doctorID string) ([]domain.Absence, error) {
	var rows []domain.Absence
	err := r.db.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		OrderExpr("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) CreateAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error) {
	var out domain.Absence
	err := r.InDoctorTransaction(ctx, a.DoctorID, func(ctx context.Context, tx store.DoctorTx) error {
		created, err := tx.InsertAbsence(ctx, a)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Absence{}, err
	}
	return out, nil
}

func (r *Repo) DeleteAbsence(ctx context.Context, doctorID, id string) error {
	return deleteOwned(ctx, r.db, (*domain.Absence)(nil), doctorID, id)
}

func (r *Repo) FetchAppointments(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		Where("date >= ?", from).
		Where("date <= ?", to).
		OrderExpr("date ASC, time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.NewSelect().Model(&out).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *Repo) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InDoctorTransaction(ctx, appt.DoctorID, func(ctx context.Context, tx store.DoctorTx) error {
		if err := ensureSlotFree(ctx, tx, appt); err != nil {
			return err
		}
		a, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *Repo) CancelAppointments(ctx context.Context, doctorID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.InDoctorTransaction(ctx, doctorID, func(ctx context.Context, tx store.DoctorTx) error {
		return tx.CancelAppointments(ctx, doctorID, ids)
	})
}

func (r *Repo) DeleteAppointment(ctx context.Context, doctorID, id string) error {
	return r.InDoctorTransaction(ctx, doctorID, func(ctx context.Context, tx store.DoctorTx) error {
		return tx.DeleteAppointment(ctx, doctorID, id)
	})
}

// InDoctorTransaction runs fn in a transaction holding the doctor's advisory lock,
// serializing writes to one calendar.
func (r *Repo) InDoctorTransaction(ctx context.Context, doctorID string, fn func(ctx context.Context, tx store.DoctorTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDoctorCalendar(ctx, tx, doctorID); err != nil {
			return err
		}
		return fn(ctx, doctorTx{tx: tx})
	})
}

func lockDoctorCalendar(ctx context.Context, tx bun.Tx, doctorID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", doctorID).Exec(ctx)
	return err
}

func (t doctorTx) ListAppointmentsOn(ctx context.Context, doctorID string, date domain.Date) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := t.tx.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		Where("date = ?", date).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t doctorTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	// A failed INSERT aborts the transaction, so replays are detected before writing.
	if appt.ID != "" {
		var existing domain.Appointment
		err := t.tx.NewSelect().
			Model(&existing).
			Where("id = ?", appt.ID).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			if !store.SameAppointment(existing, appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		case !errors.Is(err, sql.ErrNoRows):
			return domain.Appointment{}, err
		}
	}

	m := appt
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == slotConstraint {
				return domain.Appointment{}, store.ErrSlotTaken
			}
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return domain.Appointment{}, err
	}

	return m, nil
}

func (t doctorTx) CancelAppointments(ctx context.Context, doctorID string, ids []string) error {
	_, err := t.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("cancelled = TRUE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("doctor_id = ?", doctorID).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return err
}

func (t doctorTx) DeleteAppointment(ctx context.Context, doctorID, id string) error {
	return deleteOwned(ctx, t.tx, (*domain.Appointment)(nil), doctorID, id)
}

func (t doctorTx) ListAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := t.tx.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t doctorTx) InsertAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	m := w
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.AvailabilityWindow{}, mapWriteError(err)
	}
	return m, nil
}

func (t doctorTx) InsertAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error) {
	m := a
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Absence{}, mapWriteError(err)
	}
	return m, nil
}

func deleteOwned(ctx context.Context, db bun.IDB, model any, doctorID, id string) error {
	res, err := db.NewDelete().
		Model(model).
		Where("doctor_id = ?", doctorID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23514":
			return store.ErrConflict
		}
	}
	return err
}

// ensureSlotFree re-checks the slot under the doctor lock. The partial unique
// index still guards writers that bypass the lock.
func ensureSlotFree(ctx context.Context, tx store.DoctorTx, appt domain.Appointment) error {
	existing, err := tx.ListAppointmentsOn(ctx, appt.DoctorID, appt.Date)
	if err != nil {
		return err
	}
	if err := slots.ValidateAppointmentSlot(appt, existing); err != nil {
		if errors.Is(err, slots.ErrSlotTaken) {
			return store.ErrSlotTaken
		}
		return err
	}
	return nil
}

func ensureNoWindowOverlap(ctx context.Context, tx store.DoctorTx, w domain.AvailabilityWindow) error {
	existing, err := tx.ListAvailability(ctx, w.DoctorID)
	if err != nil {
		return err
	}
	return slots.ValidateAgainstWindows(w, existing)
}
