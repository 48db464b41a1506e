package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

type AvailabilityInput struct {
	DoctorID string
	// Kind is "recurring" or "one_off"; legacy localized names are accepted.
	Kind       string
	StartDate  domain.Date
	EndDate    domain.Date
	Days       []domain.Weekday
	TimeRanges []domain.TimeRange
}

func (s *Service) CreateAvailability(ctx context.Context, in AvailabilityInput) (w domain.AvailabilityWindow, err error) {
	ctx, span, started := s.start(ctx, "create_availability", in.DoctorID)
	defer func() { s.finish(span, "create_availability", started, err) }()

	if in.DoctorID == "" {
		return domain.AvailabilityWindow{}, validationError("doctor_id is required")
	}
	kind, err := domain.ParseWindowKind(in.Kind)
	if err != nil {
		return domain.AvailabilityWindow{}, validationError("kind must be recurring or one_off")
	}
	if in.StartDate.IsZero() {
		return domain.AvailabilityWindow{}, validationError("start_date is required")
	}
	if len(in.TimeRanges) == 0 {
		return domain.AvailabilityWindow{}, validationError("at least one time range is required")
	}

	w = domain.AvailabilityWindow{
		DoctorID:   in.DoctorID,
		Kind:       kind,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		TimeRanges: normalizeRanges(in.TimeRanges),
	}
	switch kind {
	case domain.WindowKindOneOff:
		w.EndDate = in.StartDate.AddDays(1)
	case domain.WindowKindRecurring:
		if in.EndDate.IsZero() {
			return domain.AvailabilityWindow{}, validationError("end_date is required for recurring availability")
		}
		for _, d := range in.Days {
			if !d.Valid() {
				return domain.AvailabilityWindow{}, validationError("invalid weekday")
			}
		}
		w.Days = slices.Clone(in.Days)
		slices.Sort(w.Days)
		w.Days = slices.Compact(w.Days)
	}

	if err := slots.ValidateWindowShape(w); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	absences, err := s.repo.FetchAbsences(ctx, in.DoctorID)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if err := slots.ValidateAvailability(w, absences); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	existing, err := s.repo.FetchAvailability(ctx, in.DoctorID)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if err := slots.ValidateAgainstWindows(w, existing); err != nil {
		return domain.AvailabilityWindow{}, err
	}

	created, err := s.repo.CreateAvailability(ctx, w)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	s.changed(store.ChangeAvailability, created.DoctorID, created.ID)
	s.log.InfoContext(ctx, "availability created", "doctor_id", created.DoctorID, "availability_id", created.ID, "kind", created.Kind)
	return created, nil
}

func (s *Service) DeleteAvailability(ctx context.Context, doctorID, id string) (err error) {
	ctx, span, started := s.start(ctx, "delete_availability", doctorID)
	defer func() { s.finish(span, "delete_availability", started, err) }()

	if doctorID == "" {
		return validationError("doctor_id is required")
	}
	if id == "" {
		return validationError("availability_id is required")
	}
	if err := s.repo.DeleteAvailability(ctx, doctorID, id); err != nil {
		return err
	}
	s.changed(store.ChangeAvailability, doctorID, id)
	return nil
}

type AbsenceInput struct {
	DoctorID  string
	StartDate domain.Date
	EndDate   domain.Date
	Reason    string
}

// AbsenceResult carries the stored absence and the appointments it cancelled.
type AbsenceResult struct {
	Absence   domain.Absence       `json:"absence"`
	Cancelled []domain.Appointment `json:"cancelled,omitempty"`
}

// CreateAbsence stores the absence and cancels every active appointment it covers.
func (s *Service) CreateAbsence(ctx context.Context, in AbsenceInput) (res AbsenceResult, err error) {
	ctx, span, started := s.start(ctx, "create_absence", in.DoctorID)
	defer func() { s.finish(span, "create_absence", started, err) }()

	if in.DoctorID == "" {
		return AbsenceResult{}, validationError("doctor_id is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return AbsenceResult{}, validationError("start_date and end_date are required")
	}
	if err := slots.ValidateDateRange(in.StartDate, in.EndDate); err != nil {
		return AbsenceResult{}, err
	}
	if in.EndDate.Before(s.today()) {
		return AbsenceResult{}, validationError("end_date must not be in the past")
	}

	created, err := s.repo.CreateAbsence(ctx, domain.Absence{
		DoctorID:  in.DoctorID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Reason:    strings.TrimSpace(in.Reason),
	})
	if err != nil {
		return AbsenceResult{}, err
	}
	s.changed(store.ChangeAbsence, created.DoctorID, created.ID)

	appts, err := s.repo.FetchAppointments(ctx, in.DoctorID, created.StartDate, created.EndDate)
	if err != nil {
		return AbsenceResult{}, err
	}
	affected := slots.AffectedAppointments(created, appts)
	if err := s.persistCancellations(ctx, in.DoctorID, affected); err != nil {
		return AbsenceResult{}, err
	}
	for i := range affected {
		affected[i].Cancelled = true
	}

	s.log.InfoContext(ctx, "absence created", "doctor_id", created.DoctorID, "absence_id", created.ID, "cancelled", len(affected))
	return AbsenceResult{Absence: created, Cancelled: affected}, nil
}

func (s *Service) DeleteAbsence(ctx context.Context, doctorID, id string) (err error) {
	ctx, span, started := s.start(ctx, "delete_absence", doctorID)
	defer func() { s.finish(span, "delete_absence", started, err) }()

	if doctorID == "" {
		return validationError("doctor_id is required")
	}
	if id == "" {
		return validationError("absence_id is required")
	}
	if err := s.repo.DeleteAbsence(ctx, doctorID, id); err != nil {
		return err
	}
	s.changed(store.ChangeAbsence, doctorID, id)
	return nil
}

type BookInput struct {
	DoctorID  string
	PatientID string
	Type      string
	Date      domain.Date
	Time      string
	// DurationMinutes defaults to domain.DefaultAppointmentDuration.
	DurationMinutes int
	Details         string
	// IdempotencyKey makes retries of the same booking return the first result.
	IdempotencyKey string
}

func (s *Service) BookAppointment(ctx context.Context, in BookInput) (appt domain.Appointment, err error) {
	ctx, span, started := s.start(ctx, "book_appointment", in.DoctorID)
	defer func() { s.finish(span, "book_appointment", started, err) }()

	if in.DoctorID == "" {
		return domain.Appointment{}, validationError("doctor_id is required")
	}
	patientID := strings.TrimSpace(in.PatientID)
	if patientID == "" {
		return domain.Appointment{}, validationError("patient_id is required")
	}
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		return domain.Appointment{}, validationError("type is required")
	}
	if in.Date.IsZero() {
		return domain.Appointment{}, validationError("date is required")
	}
	tick, err := domain.ParseClock(in.Time)
	if err != nil {
		return domain.Appointment{}, validationError("time must be HH:MM")
	}
	if !slots.OnAxis(tick) {
		return domain.Appointment{}, validationError("time must be a half-hour slot between 07:00 and 21:30")
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = domain.DefaultAppointmentDuration
	}
	if duration < 0 || duration > 24*60 {
		return domain.Appointment{}, validationError("invalid duration")
	}

	appt = domain.Appointment{
		DoctorID:        in.DoctorID,
		PatientID:       patientID,
		Type:            typ,
		Date:            in.Date,
		Time:            tick.String(),
		DurationMinutes: duration,
		Details:         in.Details,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("doctorcal:book_appointment:"+patientID+":"+key)).String()

		prev, err := s.repo.GetAppointment(ctx, appt.ID)
		switch {
		case err == nil:
			if !store.SameAppointment(prev, appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return prev, nil
		case !errors.Is(err, store.ErrNotFound):
			return domain.Appointment{}, err
		}
	}

	snap, err := s.freshSnapshot(ctx, in.DoctorID, in.Date, in.Date)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := slots.ValidateAppointmentSlot(appt, snap.Appointments); err != nil {
		return domain.Appointment{}, err
	}
	ok, err := slots.NewResolver(snap, s.loc).IsBookable(in.Date, tick, s.now())
	if err != nil {
		return domain.Appointment{}, err
	}
	if !ok {
		return domain.Appointment{}, &slots.Conflict{
			Kind: slots.KindSlotUnavailable,
			Msg:  fmt.Sprintf("slot %s %s is not available", in.Date, appt.Time),
		}
	}

	created, err := s.repo.CreateAppointment(ctx, appt)
	if errors.Is(err, store.ErrSlotTaken) {
		return domain.Appointment{}, &slots.Conflict{
			Kind: slots.KindSlotTaken,
			Msg:  fmt.Sprintf("slot %s %s is already booked", in.Date, appt.Time),
		}
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	s.changed(store.ChangeAppointment, created.DoctorID, created.ID)
	s.log.InfoContext(ctx, "appointment booked", "doctor_id", created.DoctorID, "appointment_id", created.ID, "date", created.Date, "time", created.Time)
	return created, nil
}

// CancelAppointment cancels one appointment. Cancelling twice is not an error.
func (s *Service) CancelAppointment(ctx context.Context, doctorID, id string) (appt domain.Appointment, err error) {
	ctx, span, started := s.start(ctx, "cancel_appointment", doctorID)
	defer func() { s.finish(span, "cancel_appointment", started, err) }()

	if doctorID == "" {
		return domain.Appointment{}, validationError("doctor_id is required")
	}
	if id == "" {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	appt, err = s.repo.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.DoctorID != doctorID {
		return domain.Appointment{}, store.ErrNotFound
	}
	if appt.Cancelled {
		return appt, nil
	}

	if err := s.repo.CancelAppointments(ctx, doctorID, []string{id}); err != nil {
		return domain.Appointment{}, err
	}
	appt.Cancelled = true
	s.metrics.ObserveCancellations("explicit", 1)
	s.changed(store.ChangeAppointment, doctorID, id)
	return appt, nil
}

// DeleteAppointment removes the appointment record entirely, freeing its slot.
// Use CancelAppointment to keep it in the doctor's history.
func (s *Service) DeleteAppointment(ctx context.Context, doctorID, id string) (err error) {
	ctx, span, started := s.start(ctx, "delete_appointment", doctorID)
	defer func() { s.finish(span, "delete_appointment", started, err) }()

	if doctorID == "" {
		return validationError("doctor_id is required")
	}
	if id == "" {
		return validationError("appointment_id is required")
	}
	if err := s.repo.DeleteAppointment(ctx, doctorID, id); err != nil {
		return err
	}
	s.changed(store.ChangeAppointment, doctorID, id)
	s.log.InfoContext(ctx, "appointment deleted", "doctor_id", doctorID, "appointment_id", id)
	return nil
}

// normalizeRanges trims the range strings and zero-pads the ones that parse.
// Malformed values are kept as entered for the validator to report.
func normalizeRanges(in []domain.TimeRange) []domain.TimeRange {
	out := make([]domain.TimeRange, 0, len(in))
	for _, r := range in {
		out = append(out, domain.TimeRange{From: normalizeClock(r.From), To: normalizeClock(r.To)})
	}
	return out
}

func normalizeClock(s string) string {
	s = strings.TrimSpace(s)
	if c, err := domain.ParseClock(s); err == nil {
		return c.String()
	}
	return s
}
