package scheduling

import (
	"context"
	"slices"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

// maxListDays bounds ListAppointments so one call cannot scan a whole history.
const maxListDays = 366

// Day resolves one date. Reading is not side-effect free: appointments that fall
// on an absence are cancelled in storage before the view is returned. They are
// listed in DayView.Cancellations and flagged cancelled in their slots as well.
func (s *Service) Day(ctx context.Context, doctorID string, date domain.Date) (view slots.DayView, err error) {
	ctx, span, started := s.start(ctx, "day", doctorID)
	defer func() { s.finish(span, "day", started, err) }()

	if doctorID == "" {
		return slots.DayView{}, validationError("doctor_id is required")
	}
	if date.IsZero() {
		return slots.DayView{}, validationError("date is required")
	}

	snap, err := s.snapshot(ctx, doctorID, date, date)
	if err != nil {
		return slots.DayView{}, err
	}
	view, err = slots.NewResolver(snap, s.loc).ResolveDay(date, s.now())
	if err != nil {
		return slots.DayView{}, err
	}
	if err := s.persistCancellations(ctx, doctorID, view.Cancellations); err != nil {
		return slots.DayView{}, err
	}
	markDayCancelled(&view)
	return view, nil
}

// Week resolves the Monday-first week containing anchor. Like Day, it persists
// the implicit cancellations it finds.
func (s *Service) Week(ctx context.Context, doctorID string, anchor domain.Date) (view slots.WeekView, err error) {
	ctx, span, started := s.start(ctx, "week", doctorID)
	defer func() { s.finish(span, "week", started, err) }()

	if doctorID == "" {
		return slots.WeekView{}, validationError("doctor_id is required")
	}
	if anchor.IsZero() {
		return slots.WeekView{}, validationError("date is required")
	}

	snap, err := s.snapshot(ctx, doctorID, slots.StartOfWeek(anchor), slots.EndOfWeek(anchor))
	if err != nil {
		return slots.WeekView{}, err
	}
	view, err = slots.NewResolver(snap, s.loc).ResolveWeek(anchor, s.now())
	if err != nil {
		return slots.WeekView{}, err
	}

	var cancelled []domain.Appointment
	for _, d := range view.Days {
		cancelled = append(cancelled, d.Cancellations...)
	}
	if err := s.persistCancellations(ctx, doctorID, cancelled); err != nil {
		return slots.WeekView{}, err
	}
	for i := range view.Days {
		markDayCancelled(&view.Days[i])
	}
	return view, nil
}

// FreeSlots lists the bookable start times of date, earliest first.
func (s *Service) FreeSlots(ctx context.Context, doctorID string, date domain.Date) (free []domain.ClockTime, err error) {
	ctx, span, started := s.start(ctx, "free_slots", doctorID)
	defer func() { s.finish(span, "free_slots", started, err) }()

	if doctorID == "" {
		return nil, validationError("doctor_id is required")
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}

	snap, err := s.snapshot(ctx, doctorID, date, date)
	if err != nil {
		return nil, err
	}
	seq, err := slots.NewResolver(snap, s.loc).FreeSlots(date, s.now())
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

func (s *Service) ListAppointments(ctx context.Context, doctorID string, from, to domain.Date) (appts []domain.Appointment, err error) {
	ctx, span, started := s.start(ctx, "list_appointments", doctorID)
	defer func() { s.finish(span, "list_appointments", started, err) }()

	if doctorID == "" {
		return nil, validationError("doctor_id is required")
	}
	if from.IsZero() || to.IsZero() {
		return nil, validationError("from and to are required")
	}
	if to.Before(from) {
		return nil, validationError("to must not be before from")
	}
	if from.DaysUntil(to) >= maxListDays {
		return nil, validationError("range too long")
	}
	return s.repo.FetchAppointments(ctx, doctorID, from, to)
}

// persistCancellations stores appointments on absent dates as cancelled.
func (s *Service) persistCancellations(ctx context.Context, doctorID string, appts []domain.Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(appts))
	for _, a := range appts {
		ids = append(ids, a.ID)
	}
	if err := s.repo.CancelAppointments(ctx, doctorID, ids); err != nil {
		return err
	}
	s.metrics.ObserveCancellations("absence", len(ids))
	s.log.InfoContext(ctx, "cancelled appointments on absent dates", "doctor_id", doctorID, "count", len(ids))
	for _, id := range ids {
		s.changed(store.ChangeAppointment, doctorID, id)
	}
	return nil
}

// markDayCancelled flags the persisted cancellations in both the cancellation
// list and the slot that shows the appointment.
func markDayCancelled(view *slots.DayView) {
	if len(view.Cancellations) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(view.Cancellations))
	for i := range view.Cancellations {
		view.Cancellations[i].Cancelled = true
		ids[view.Cancellations[i].ID] = struct{}{}
	}
	for i := range view.Slots {
		a := view.Slots[i].Appointment
		if a == nil {
			continue
		}
		if _, ok := ids[a.ID]; ok {
			a.Cancelled = true
		}
	}
}
