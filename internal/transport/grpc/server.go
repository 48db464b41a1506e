package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/service/scheduling"
	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

type SchedulingServer struct {
	svc schedulingService
	log *slog.Logger
}

type schedulingService interface {
	Day(ctx context.Context, doctorID string, date domain.Date) (slots.DayView, error)
	Week(ctx context.Context, doctorID string, anchor domain.Date) (slots.WeekView, error)
	FreeSlots(ctx context.Context, doctorID string, date domain.Date) ([]domain.ClockTime, error)
	CreateAvailability(ctx context.Context, in scheduling.AvailabilityInput) (domain.AvailabilityWindow, error)
	DeleteAvailability(ctx context.Context, doctorID, id string) error
	CreateAbsence(ctx context.Context, in scheduling.AbsenceInput) (scheduling.AbsenceResult, error)
	DeleteAbsence(ctx context.Context, doctorID, id string) error
	BookAppointment(ctx context.Context, in scheduling.BookInput) (domain.Appointment, error)
	CancelAppointment(ctx context.Context, doctorID, id string) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, doctorID, id string) error
	ListAppointments(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error)
	Watch(ctx context.Context, doctorID string) (<-chan store.Change, error)
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

func NewSchedulingServer(svc schedulingService, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) GetDay(ctx context.Context, req *GetDayRequest) (*GetDayResponse, error) {
	log := s.log.With(slog.String("rpc", "GetDay"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}
	bucket, ok := slots.ParseBucket(req.Bucket)
	if !ok {
		log.Warn("invalid request", slog.String("reason", "bad_bucket"), slog.String("bucket", req.Bucket))
		return nil, status.Error(codes.InvalidArgument, "bucket must be morning, afternoon or evening")
	}

	day, err := s.svc.Day(ctx, req.DoctorID, date)
	if err != nil {
		return nil, toStatus(log, "day resolve failed", err, slog.String("doctor_id", req.DoctorID))
	}
	if bucket != slots.BucketAll {
		day.Slots = day.InBucket(bucket)
	}
	if n := len(day.Cancellations); n > 0 {
		log.Info("appointments cancelled by absence", slog.String("doctor_id", req.DoctorID), slog.Int("count", n))
	}
	return &GetDayResponse{Day: day}, nil
}

func (s *SchedulingServer) GetWeek(ctx context.Context, req *GetWeekRequest) (*GetWeekResponse, error) {
	log := s.log.With(slog.String("rpc", "GetWeek"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	anchor, err := parseDate("date", req.Date)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}

	week, err := s.svc.Week(ctx, req.DoctorID, anchor)
	if err != nil {
		return nil, toStatus(log, "week resolve failed", err, slog.String("doctor_id", req.DoctorID))
	}
	return &GetWeekResponse{Week: week}, nil
}

func (s *SchedulingServer) ListFreeSlots(ctx context.Context, req *ListFreeSlotsRequest) (*ListFreeSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListFreeSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}

	free, err := s.svc.FreeSlots(ctx, req.DoctorID, date)
	if err != nil {
		return nil, toStatus(log, "free slots failed", err, slog.String("doctor_id", req.DoctorID))
	}
	times := make([]string, 0, len(free))
	for _, t := range free {
		times = append(times, t.String())
	}
	return &ListFreeSlotsResponse{Date: date.String(), Times: times}, nil
}

func (s *SchedulingServer) CreateAvailability(ctx context.Context, req *CreateAvailabilityRequest) (*CreateAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}
	var end domain.Date
	if strings.TrimSpace(req.EndDate) != "" {
		if end, err = parseDate("end_date", req.EndDate); err != nil {
			log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
			return nil, err
		}
	}
	days := make([]domain.Weekday, 0, len(req.Days))
	for _, d := range req.Days {
		wd, err := domain.ParseWeekday(d)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "bad_weekday"), slog.String("day", d))
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		days = append(days, wd)
	}

	w, err := s.svc.CreateAvailability(ctx, scheduling.AvailabilityInput{
		DoctorID:   req.DoctorID,
		Kind:       req.Kind,
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		TimeRanges: req.TimeRanges,
	})
	if err != nil {
		return nil, toStatus(log, "availability create failed", err, slog.String("doctor_id", req.DoctorID))
	}

	log.Info("availability created", slog.String("availability_id", w.ID), slog.String("doctor_id", w.DoctorID))
	return &CreateAvailabilityResponse{Availability: w}, nil
}

func (s *SchedulingServer) DeleteAvailability(ctx context.Context, req *DeleteAvailabilityRequest) (*DeleteAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.svc.DeleteAvailability(ctx, req.DoctorID, req.AvailabilityID); err != nil {
		return nil, toStatus(log, "availability delete failed", err,
			slog.String("doctor_id", req.DoctorID),
			slog.String("availability_id", req.AvailabilityID),
		)
	}

	log.Info("availability deleted", slog.String("availability_id", req.AvailabilityID), slog.String("doctor_id", req.DoctorID))
	return &DeleteAvailabilityResponse{}, nil
}

func (s *SchedulingServer) CreateAbsence(ctx context.Context, req *CreateAbsenceRequest) (*CreateAbsenceResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateAbsence"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}

	res, err := s.svc.CreateAbsence(ctx, scheduling.AbsenceInput{
		DoctorID:  req.DoctorID,
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
	})
	if err != nil {
		return nil, toStatus(log, "absence create failed", err, slog.String("doctor_id", req.DoctorID))
	}

	log.Info(
		"absence created",
		slog.String("absence_id", res.Absence.ID),
		slog.String("doctor_id", res.Absence.DoctorID),
		slog.Int("cancelled", len(res.Cancelled)),
	)
	return &CreateAbsenceResponse{Absence: res.Absence, Cancelled: res.Cancelled}, nil
}

func (s *SchedulingServer) DeleteAbsence(ctx context.Context, req *DeleteAbsenceRequest) (*DeleteAbsenceResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteAbsence"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.svc.DeleteAbsence(ctx, req.DoctorID, req.AbsenceID); err != nil {
		return nil, toStatus(log, "absence delete failed", err,
			slog.String("doctor_id", req.DoctorID),
			slog.String("absence_id", req.AbsenceID),
		)
	}

	log.Info("absence deleted", slog.String("absence_id", req.AbsenceID), slog.String("doctor_id", req.DoctorID))
	return &DeleteAbsenceResponse{}, nil
}

func (s *SchedulingServer) BookAppointment(ctx context.Context, req *BookAppointmentRequest) (*BookAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}

	appt, err := s.svc.BookAppointment(ctx, scheduling.BookInput{
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		Type:            req.Type,
		Date:            date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
		Details:         req.Details,
		IdempotencyKey:  idempotencyKey(ctx),
	})
	if err != nil {
		return nil, toStatus(log, "appointment book failed", err,
			slog.String("doctor_id", req.DoctorID),
			slog.String("date", req.Date),
			slog.String("time", req.Time),
		)
	}

	log.Info(
		"appointment booked",
		slog.String("appointment_id", appt.ID),
		slog.String("doctor_id", appt.DoctorID),
		slog.String("date", appt.Date.String()),
		slog.String("time", appt.Time),
	)
	return &BookAppointmentResponse{Appointment: appt}, nil
}

func (s *SchedulingServer) CancelAppointment(ctx context.Context, req *CancelAppointmentRequest) (*CancelAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	appt, err := s.svc.CancelAppointment(ctx, req.DoctorID, req.AppointmentID)
	if err != nil {
		return nil, toStatus(log, "appointment cancel failed", err,
			slog.String("doctor_id", req.DoctorID),
			slog.String("appointment_id", req.AppointmentID),
		)
	}

	log.Info("appointment cancelled", slog.String("appointment_id", appt.ID), slog.String("doctor_id", appt.DoctorID))
	return &CancelAppointmentResponse{Appointment: appt}, nil
}

func (s *SchedulingServer) DeleteAppointment(ctx context.Context, req *DeleteAppointmentRequest) (*DeleteAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.svc.DeleteAppointment(ctx, req.DoctorID, req.AppointmentID); err != nil {
		return nil, toStatus(log, "appointment delete failed", err,
			slog.String("doctor_id", req.DoctorID),
			slog.String("appointment_id", req.AppointmentID),
		)
	}

	log.Info("appointment deleted", slog.String("appointment_id", req.AppointmentID), slog.String("doctor_id", req.DoctorID))
	return &DeleteAppointmentResponse{}, nil
}

func (s *SchedulingServer) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	from, err := parseDate("from", req.From)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}
	to, err := parseDate("to", req.To)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("doctor_id", req.DoctorID))
		return nil, err
	}

	appts, err := s.svc.ListAppointments(ctx, req.DoctorID, from, to)
	if err != nil {
		return nil, toStatus(log, "appointments list failed", err, slog.String("doctor_id", req.DoctorID))
	}
	if appts == nil {
		appts = []domain.Appointment{}
	}

	log.Info("appointments listed", slog.String("doctor_id", req.DoctorID), slog.Int("count", len(appts)))
	return &ListAppointmentsResponse{Appointments: appts}, nil
}

func (s *SchedulingServer) WatchChanges(req *WatchChangesRequest, stream grpc.ServerStreamingServer[ChangeEvent]) error {
	log := s.log.With(slog.String("rpc", "WatchChanges"), slog.String("doctor_id", req.DoctorID))
	ctx := stream.Context()

	changes, err := s.svc.Watch(ctx, req.DoctorID)
	if err != nil {
		return toStatus(log, "watch failed", err)
	}
	log.Info("watch started")
	defer log.Info("watch ended")

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			ev := &ChangeEvent{Kind: string(c.Kind), DoctorID: c.DoctorID, ID: c.ID, At: c.At}
			if err := stream.Send(ev); err != nil {
				log.Warn("send failed", slog.Any("err", err))
				return err
			}
		}
	}
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func parseDate(field, raw string) (domain.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Date{}, status.Error(codes.InvalidArgument, field+" is required")
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return domain.Date{}, status.Error(codes.InvalidArgument, field+" must be YYYY-MM-DD")
	}
	return d, nil
}

// toStatus logs err at a level matching its cause and converts it to a gRPC status.
// Conflicts about the shape of the input map to InvalidArgument; the rest are
// FailedPrecondition except a taken slot.
func toStatus(log *slog.Logger, msg string, err error, args ...any) error {
	var vErr *scheduling.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, args...)...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	}

	var c *slots.Conflict
	if errors.As(err, &c) {
		log.Info(msg, append([]any{slog.String("conflict", string(c.Kind)), slog.String("reason", c.Error())}, args...)...)
		switch c.Kind {
		case slots.KindInvalidRange, slots.KindInvalidTimePair, slots.KindMalformedTime, slots.KindOverlapInWindow:
			return status.Error(codes.InvalidArgument, c.Error())
		case slots.KindSlotTaken:
			return status.Error(codes.AlreadyExists, "That slot was just booked by someone else. Pick a different slot.")
		default:
			return status.Error(codes.FailedPrecondition, c.Error())
		}
	}

	switch {
	case errors.Is(err, store.ErrSlotTaken):
		log.Info(msg, append([]any{slog.String("conflict", string(slots.KindSlotTaken))}, args...)...)
		return status.Error(codes.AlreadyExists, "That slot was just booked by someone else. Pick a different slot.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(msg, append([]any{slog.String("reason", "idempotency_conflict")}, args...)...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrConflict):
		log.Info(msg, append([]any{slog.String("reason", "conflict")}, args...)...)
		return status.Error(codes.FailedPrecondition, "record already exists")
	case errors.Is(err, store.ErrNotFound):
		log.Info(msg, append([]any{slog.String("reason", "not_found")}, args...)...)
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(msg, append([]any{slog.Any("err", err)}, args...)...)
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}

	log.Error(msg, append([]any{slog.Any("err", err)}, args...)...)
	return status.Error(codes.Internal, "internal error")
}
