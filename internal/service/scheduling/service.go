// Package scheduling loads a doctor's calendar from storage, runs the slot engine
// over it and persists validated writes.
package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/observability/metrics"
	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 30 * time.Second
)

var tracer = otel.Tracer("doctorcal/scheduling")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Options struct {
	// Location is the clinic time zone slot instants are evaluated in. Defaults to UTC.
	Location *time.Location
	// Clock returns the current instant. Defaults to time.Now.
	Clock     func() time.Time
	CacheSize int
	// CacheTTL bounds how long another instance's calendar write can go unseen by reads.
	// Bookings always re-read the calendar.
	CacheTTL time.Duration
	Metrics  *metrics.SchedulingMetrics
	Logger   *slog.Logger
}

// calendar is the slowly changing part of a snapshot, cached per doctor.
type calendar struct {
	availability []domain.AvailabilityWindow
	absences     []domain.Absence
}

type Service struct {
	repo    store.Repository
	loc     *time.Location
	clock   func() time.Time
	cache   *expirable.LRU[string, calendar]
	changes *store.Broadcaster
	// feed is set when the repository publishes its own changes, including ours.
	feed    store.ChangeFeed
	metrics *metrics.SchedulingMetrics
	log     *slog.Logger
}

func NewService(repo store.Repository, opts Options) (*Service, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Service{
		repo:    repo,
		loc:     opts.Location,
		clock:   opts.Clock,
		cache:   expirable.NewLRU[string, calendar](opts.CacheSize, nil, opts.CacheTTL),
		changes: store.NewBroadcaster(64),
		metrics: opts.Metrics,
		log:     opts.Logger.With(slog.String("component", "scheduling")),
	}
	if feed, ok := repo.(store.ChangeFeed); ok {
		s.feed = feed
	}
	return s, nil
}

func (s *Service) Location() *time.Location { return s.loc }

// Ping reports whether the storage backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) now() time.Time {
	return s.clock().In(s.loc)
}

func (s *Service) today() domain.Date {
	return domain.DateOf(s.now())
}

func (s *Service) calendar(ctx context.Context, doctorID string) (calendar, error) {
	if c, ok := s.cache.Get(doctorID); ok {
		s.metrics.ObserveCache(true)
		return c, nil
	}
	s.metrics.ObserveCache(false)
	return s.loadCalendar(ctx, doctorID)
}

// loadCalendar reads the calendar from storage and refreshes the cache entry.
func (s *Service) loadCalendar(ctx context.Context, doctorID string) (calendar, error) {
	windows, err := s.repo.FetchAvailability(ctx, doctorID)
	if err != nil {
		return calendar{}, err
	}
	absences, err := s.repo.FetchAbsences(ctx, doctorID)
	if err != nil {
		return calendar{}, err
	}
	c := calendar{availability: windows, absences: absences}
	s.cache.Add(doctorID, c)
	return c, nil
}

func (s *Service) snapshot(ctx context.Context, doctorID string, from, to domain.Date) (slots.Snapshot, error) {
	c, err := s.calendar(ctx, doctorID)
	if err != nil {
		return slots.Snapshot{}, err
	}
	return s.withAppointments(ctx, c, doctorID, from, to)
}

// freshSnapshot bypasses the cache. Writes that depend on availability or
// absences use it so a change made through another instance is never missed.
func (s *Service) freshSnapshot(ctx context.Context, doctorID string, from, to domain.Date) (slots.Snapshot, error) {
	c, err := s.loadCalendar(ctx, doctorID)
	if err != nil {
		return slots.Snapshot{}, err
	}
	return s.withAppointments(ctx, c, doctorID, from, to)
}

func (s *Service) withAppointments(ctx context.Context, c calendar, doctorID string, from, to domain.Date) (slots.Snapshot, error) {
	appts, err := s.repo.FetchAppointments(ctx, doctorID, from, to)
	if err != nil {
		return slots.Snapshot{}, err
	}
	return slots.Snapshot{
		DoctorID:     doctorID,
		Availability: c.availability,
		Absences:     c.absences,
		Appointments: appts,
	}, nil
}

// changed drops the doctor's cached calendar and announces the write.
func (s *Service) changed(kind store.ChangeKind, doctorID, id string) {
	s.cache.Remove(doctorID)
	if s.feed != nil {
		return
	}
	s.changes.Publish(store.Change{Kind: kind, DoctorID: doctorID, ID: id, At: s.clock().UTC()})
}

func (s *Service) start(ctx context.Context, op, doctorID string) (context.Context, trace.Span, time.Time) {
	ctx, span := tracer.Start(ctx, "scheduling."+op)
	span.SetAttributes(attribute.String("doctor_id", doctorID))
	return ctx, span, time.Now()
}

func (s *Service) finish(span trace.Span, op string, started time.Time, err error) {
	defer span.End()

	outcome := outcomeOf(err)
	s.metrics.ObserveOperation(op, outcome, time.Since(started).Seconds())

	var c *slots.Conflict
	switch {
	case errors.As(err, &c):
		s.metrics.ObserveConflict(string(c.Kind))
	case errors.Is(err, store.ErrSlotTaken):
		s.metrics.ObserveConflict(string(slots.KindSlotTaken))
	}

	if outcome == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func outcomeOf(err error) string {
	var vErr *ValidationError
	var c *slots.Conflict
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr):
		return "invalid"
	case errors.As(err, &c),
		errors.Is(err, store.ErrSlotTaken),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrIdempotencyConflict):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
