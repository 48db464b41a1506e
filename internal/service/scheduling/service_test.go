package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store/filestore"
)

// Monday, 08:10 in the clinic zone.
var testNow = time.Date(2026, 1, 5, 8, 10, 0, 0, time.UTC)

type fakeRepo struct {
	fetchAvailability  func(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error)
	createAvailability func(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)
	deleteAvailability func(ctx context.Context, doctorID, id string) error
	fetchAbsences      func(ctx context.Context, doctorID string) ([]domain.Absence, error)
	createAbsence      func(ctx context.Context, a domain.Absence) (domain.Absence, error)
	deleteAbsence      func(ctx context.Context, doctorID, id string) error
	fetchAppointments  func(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error)
	getAppointment     func(ctx context.Context, id string) (domain.Appointment, error)
	createAppointment  func(ctx context.Context, a domain.Appointment) (domain.Appointment, error)
	cancelAppointments func(ctx context.Context, doctorID string, ids []string) error
	deleteAppointment  func(ctx context.Context, doctorID, id string) error
}

func (f *fakeRepo) FetchAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
	if f.fetchAvailability == nil {
		panic("FetchAvailability not configured")
	}
	return f.fetchAvailability(ctx, doctorID)
}

func (f *fakeRepo) CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	if f.createAvailability == nil {
		panic("CreateAvailability not configured")
	}
	return f.createAvailability(ctx, w)
}

func (f *fakeRepo) DeleteAvailability(ctx context.Context, doctorID, id string) error {
	if f.deleteAvailability == nil {
		panic("DeleteAvailability not configured")
	}
	return f.deleteAvailability(ctx, doctorID, id)
}

func (f *fakeRepo) FetchAbsences(ctx context.Context, doctorID string) ([]domain.Absence, error) {
	if f.fetchAbsences == nil {
		panic("FetchAbsences not configured")
	}
	return f.fetchAbsences(ctx, doctorID)
}

func (f *fakeRepo) CreateAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error) {
	if f.createAbsence == nil {
		panic("CreateAbsence not configured")
	}
	return f.createAbsence(ctx, a)
}

func (f *fakeRepo) DeleteAbsence(ctx context.Context, doctorID, id string) error {
	if f.deleteAbsence == nil {
		panic("DeleteAbsence not configured")
	}
	return f.deleteAbsence(ctx, doctorID, id)
}

func (f *fakeRepo) FetchAppointments(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error) {
	if f.fetchAppointments == nil {
		panic("FetchAppointments not configured")
	}
	return f.fetchAppointments(ctx, doctorID, from, to)
}

func (f *fakeRepo) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	if f.getAppointment == nil {
		panic("GetAppointment not configured")
	}
	return f.getAppointment(ctx, id)
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, a domain.Appointment) (domain.Appointment, error) {
	if f.createAppointment == nil {
		panic("CreateAppointment not configured")
	}
	return f.createAppointment(ctx, a)
}

func (f *fakeRepo) CancelAppointments(ctx context.Context, doctorID string, ids []string) error {
	if f.cancelAppointments == nil {
		panic("CancelAppointments not configured")
	}
	return f.cancelAppointments(ctx, doctorID, ids)
}

func (f *fakeRepo) DeleteAppointment(ctx context.Context, doctorID, id string) error {
	if f.deleteAppointment == nil {
		panic("DeleteAppointment not configured")
	}
	return f.deleteAppointment(ctx, doctorID, id)
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }

func newService(t *testing.T, repo store.Repository) *Service {
	t.Helper()
	svc, err := NewService(repo, Options{Clock: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

// newFileService returns a service over an in-memory calendar file with a
// Monday to Friday 09:00-12:00 window for doctor d1 throughout January 2026.
func newFileService(t *testing.T) (*Service, *filestore.Store) {
	t.Helper()
	repo := filestore.New(afero.NewMemMapFs(), "/calendar.json")
	svc := newService(t, repo)
	addJanuaryWindow(t, svc)
	return svc, repo
}

func addJanuaryWindow(t *testing.T, svc *Service) {
	t.Helper()
	_, err := svc.CreateAvailability(context.Background(), AvailabilityInput{
		DoctorID:   "d1",
		Kind:       "recurring",
		StartDate:  domain.MustParseDate("2026-01-01"),
		EndDate:    domain.MustParseDate("2026-01-31"),
		Days:       []domain.Weekday{domain.Friday, domain.Monday, domain.Tuesday, domain.Wednesday, domain.Thursday},
		TimeRanges: []domain.TimeRange{{From: "9:00", To: "12:00"}},
	})
	if err != nil {
		t.Fatalf("CreateAvailability() error = %v", err)
	}
}

func book(date, at string) BookInput {
	return BookInput{
		DoctorID:  "d1",
		PatientID: "p1",
		Type:      domain.AppointmentTypeConsultation,
		Date:      domain.MustParseDate(date),
		Time:      at,
	}
}

func TestBookAppointment_ValidationErrors(t *testing.T) {
	svc := newService(t, &fakeRepo{})

	tests := []struct {
		name string
		in   BookInput
		want string
	}{
		{"missing doctor", BookInput{PatientID: "p", Type: "tests", Date: domain.MustParseDate("2026-01-05"), Time: "09:00"}, "doctor_id is required"},
		{"missing patient", BookInput{DoctorID: "d", Type: "tests", Date: domain.MustParseDate("2026-01-05"), Time: "09:00"}, "patient_id is required"},
		{"missing type", BookInput{DoctorID: "d", PatientID: "p", Date: domain.MustParseDate("2026-01-05"), Time: "09:00"}, "type is required"},
		{"missing date", BookInput{DoctorID: "d", PatientID: "p", Type: "tests", Time: "09:00"}, "date is required"},
		{"malformed time", BookInput{DoctorID: "d", PatientID: "p", Type: "tests", Date: domain.MustParseDate("2026-01-05"), Time: "nine"}, "time must be HH:MM"},
		{"off grid", BookInput{DoctorID: "d", PatientID: "p", Type: "tests", Date: domain.MustParseDate("2026-01-05"), Time: "09:15"}, "time must be a half-hour slot between 07:00 and 21:30"},
		{"after grid", BookInput{DoctorID: "d", PatientID: "p", Type: "tests", Date: domain.MustParseDate("2026-01-05"), Time: "22:00"}, "time must be a half-hour slot between 07:00 and 21:30"},
		{"negative duration", BookInput{DoctorID: "d", PatientID: "p", Type: "tests", Date: domain.MustParseDate("2026-01-05"), Time: "09:00", DurationMinutes: -5}, "invalid duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BookAppointment(context.Background(), tt.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if vErr.Error() != tt.want {
				t.Fatalf("error = %q, want %q", vErr.Error(), tt.want)
			}
		})
	}
}

func TestBookAppointment_SlotRules(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	appt, err := svc.BookAppointment(ctx, book("2026-01-05", "9:00"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}
	if appt.Time != "09:00" {
		t.Fatalf("time = %q, want %q", appt.Time, "09:00")
	}
	if appt.DurationMinutes != domain.DefaultAppointmentDuration {
		t.Fatalf("duration = %d, want %d", appt.DurationMinutes, domain.DefaultAppointmentDuration)
	}

	_, err = svc.BookAppointment(ctx, book("2026-01-05", "09:00"))
	if !errors.Is(err, slots.ErrSlotTaken) {
		t.Fatalf("second booking error = %v, want slot taken", err)
	}

	_, err = svc.BookAppointment(ctx, book("2026-01-05", "13:00"))
	if !errors.Is(err, slots.ErrSlotUnavailable) {
		t.Fatalf("booking outside availability error = %v, want slot unavailable", err)
	}

	_, err = svc.BookAppointment(ctx, book("2026-01-10", "09:00"))
	if !errors.Is(err, slots.ErrSlotUnavailable) {
		t.Fatalf("weekend booking error = %v, want slot unavailable", err)
	}

	free, err := svc.FreeSlots(ctx, "d1", domain.MustParseDate("2026-01-05"))
	if err != nil {
		t.Fatalf("FreeSlots() error = %v", err)
	}
	want := []string{"09:30", "10:00", "10:30", "11:00", "11:30"}
	if len(free) != len(want) {
		t.Fatalf("free = %v, want %v", free, want)
	}
	for i, w := range want {
		if free[i].String() != w {
			t.Fatalf("free[%d] = %s, want %s", i, free[i], w)
		}
	}
}

func TestBookAppointment_IdempotencyKey(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	in := book("2026-01-06", "10:00")
	in.IdempotencyKey = "form-42"

	first, err := svc.BookAppointment(ctx, in)
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}
	second, err := svc.BookAppointment(ctx, in)
	if err != nil {
		t.Fatalf("replayed BookAppointment() error = %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay id = %s, want %s", second.ID, first.ID)
	}

	in.Details = "changed"
	_, err = svc.BookAppointment(ctx, in)
	if !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrIdempotencyConflict)
	}
}

func TestBookAppointment_BackendSlotTakenSurfacesAsConflict(t *testing.T) {
	window := domain.AvailabilityWindow{
		ID: "w1", DoctorID: "d1", Kind: domain.WindowKindOneOff,
		StartDate:  domain.MustParseDate("2026-01-05"),
		EndDate:    domain.MustParseDate("2026-01-06"),
		TimeRanges: []domain.TimeRange{{From: "09:00", To: "10:00"}},
	}
	svc := newService(t, &fakeRepo{
		fetchAvailability: func(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
			return []domain.AvailabilityWindow{window}, nil
		},
		fetchAbsences: func(ctx context.Context, doctorID string) ([]domain.Absence, error) { return nil, nil },
		fetchAppointments: func(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error) {
			return nil, nil
		},
		createAppointment: func(ctx context.Context, a domain.Appointment) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrSlotTaken
		},
	})

	_, err := svc.BookAppointment(context.Background(), book("2026-01-05", "09:30"))
	var c *slots.Conflict
	if !errors.As(err, &c) || c.Kind != slots.KindSlotTaken {
		t.Fatalf("error = %v, want slot_taken conflict", err)
	}
}

func TestCreateAvailability_Rules(t *testing.T) {
	svc, repo := newFileService(t)
	ctx := context.Background()

	w, err := svc.CreateAvailability(ctx, AvailabilityInput{
		DoctorID:   "d1",
		Kind:       "jednorazowe",
		StartDate:  domain.MustParseDate("2026-01-10"),
		EndDate:    domain.MustParseDate("2026-01-20"),
		Days:       []domain.Weekday{domain.Monday},
		TimeRanges: []domain.TimeRange{{From: "8:00", To: "9:00"}},
	})
	if err != nil {
		t.Fatalf("CreateAvailability() error = %v", err)
	}
	if w.Kind != domain.WindowKindOneOff {
		t.Fatalf("kind = %s, want %s", w.Kind, domain.WindowKindOneOff)
	}
	if w.EndDate != domain.MustParseDate("2026-01-11") {
		t.Fatalf("end date = %s, want 2026-01-11", w.EndDate)
	}
	if len(w.Days) != 0 {
		t.Fatalf("days = %v, want none", w.Days)
	}
	if w.TimeRanges[0].From != "08:00" {
		t.Fatalf("from = %q, want %q", w.TimeRanges[0].From, "08:00")
	}

	_, err = svc.CreateAvailability(ctx, AvailabilityInput{
		DoctorID:   "d1",
		Kind:       "one_off",
		StartDate:  domain.MustParseDate("2026-01-07"),
		TimeRanges: []domain.TimeRange{{From: "11:00", To: "13:00"}},
	})
	if !errors.Is(err, slots.ErrOverlapsAvailability) {
		t.Fatalf("overlapping window error = %v, want overlaps availability", err)
	}

	if _, err := repo.CreateAbsence(ctx, domain.Absence{
		DoctorID:  "d1",
		StartDate: domain.MustParseDate("2026-02-02"),
		EndDate:   domain.MustParseDate("2026-02-03"),
	}); err != nil {
		t.Fatalf("CreateAbsence() error = %v", err)
	}
	_, err = svc.CreateAvailability(ctx, AvailabilityInput{
		DoctorID:   "d1",
		Kind:       "one_off",
		StartDate:  domain.MustParseDate("2026-02-03"),
		TimeRanges: []domain.TimeRange{{From: "14:00", To: "15:00"}},
	})
	if !errors.Is(err, slots.ErrOverlapsAbsence) {
		t.Fatalf("window on absence error = %v, want overlaps absence", err)
	}

	_, err = svc.CreateAvailability(ctx, AvailabilityInput{
		DoctorID:   "d1",
		Kind:       "one_off",
		StartDate:  domain.MustParseDate("2026-02-04"),
		TimeRanges: []domain.TimeRange{{From: "15:00", To: "14:00"}},
	})
	if !errors.Is(err, slots.ErrInvalidTimePair) {
		t.Fatalf("reversed range error = %v, want invalid time pair", err)
	}

	_, err = svc.CreateAvailability(ctx, AvailabilityInput{DoctorID: "d1", Kind: "weekly"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("unknown kind error type = %T, want *ValidationError", err)
	}
}

func TestCreateAbsence_CancelsCoveredAppointments(t *testing.T) {
	svc, repo := newFileService(t)
	ctx := context.Background()

	covered, err := svc.BookAppointment(ctx, book("2026-01-06", "10:00"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}
	outside, err := svc.BookAppointment(ctx, book("2026-01-08", "10:00"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}

	res, err := svc.CreateAbsence(ctx, AbsenceInput{
		DoctorID:  "d1",
		StartDate: domain.MustParseDate("2026-01-06"),
		EndDate:   domain.MustParseDate("2026-01-07"),
		Reason:    " sick leave ",
	})
	if err != nil {
		t.Fatalf("CreateAbsence() error = %v", err)
	}
	if res.Absence.Reason != "sick leave" {
		t.Fatalf("reason = %q, want %q", res.Absence.Reason, "sick leave")
	}
	if len(res.Cancelled) != 1 || res.Cancelled[0].ID != covered.ID || !res.Cancelled[0].Cancelled {
		t.Fatalf("cancelled = %+v, want only %s", res.Cancelled, covered.ID)
	}

	stored, err := repo.GetAppointment(ctx, covered.ID)
	if err != nil {
		t.Fatalf("GetAppointment() error = %v", err)
	}
	if !stored.Cancelled {
		t.Fatalf("covered appointment not cancelled in storage")
	}
	stored, err = repo.GetAppointment(ctx, outside.ID)
	if err != nil {
		t.Fatalf("GetAppointment() error = %v", err)
	}
	if stored.Cancelled {
		t.Fatalf("appointment outside the absence was cancelled")
	}

	day, err := svc.Day(ctx, "d1", domain.MustParseDate("2026-01-06"))
	if err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if !day.Absent {
		t.Fatalf("day not absent")
	}
	for _, s := range day.Slots {
		if s.Available {
			t.Fatalf("slot %s available on an absent day", s.Time)
		}
	}
}

func TestCreateAbsence_RejectsPastAndReversedRanges(t *testing.T) {
	svc := newService(t, &fakeRepo{})
	ctx := context.Background()

	_, err := svc.CreateAbsence(ctx, AbsenceInput{
		DoctorID:  "d1",
		StartDate: domain.MustParseDate("2026-01-01"),
		EndDate:   domain.MustParseDate("2026-01-04"),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("past absence error type = %T, want *ValidationError", err)
	}

	_, err = svc.CreateAbsence(ctx, AbsenceInput{
		DoctorID:  "d1",
		StartDate: domain.MustParseDate("2026-01-09"),
		EndDate:   domain.MustParseDate("2026-01-08"),
	})
	if !errors.Is(err, slots.ErrInvalidRange) {
		t.Fatalf("reversed absence error = %v, want invalid range", err)
	}
}

func TestDay_PersistsImplicitCancellations(t *testing.T) {
	svc, repo := newFileService(t)
	ctx := context.Background()

	appt, err := svc.BookAppointment(ctx, book("2026-01-09", "11:00"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}
	// Written directly, as another client of the same storage would.
	if _, err := repo.CreateAbsence(ctx, domain.Absence{
		DoctorID:  "d1",
		StartDate: domain.MustParseDate("2026-01-09"),
		EndDate:   domain.MustParseDate("2026-01-09"),
	}); err != nil {
		t.Fatalf("CreateAbsence() error = %v", err)
	}
	svc.cache.Purge()

	week, err := svc.Week(ctx, "d1", domain.MustParseDate("2026-01-07"))
	if err != nil {
		t.Fatalf("Week() error = %v", err)
	}
	friday := week.Days[4]
	if len(friday.Cancellations) != 1 || friday.Cancellations[0].ID != appt.ID || !friday.Cancellations[0].Cancelled {
		t.Fatalf("cancellations = %+v, want %s", friday.Cancellations, appt.ID)
	}
	if week.Start != domain.MustParseDate("2026-01-05") {
		t.Fatalf("week start = %s, want 2026-01-05", week.Start)
	}

	stored, err := repo.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("GetAppointment() error = %v", err)
	}
	if !stored.Cancelled {
		t.Fatalf("appointment on absent day not cancelled in storage")
	}
}

func TestWeek_CountsConsultations(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	for _, at := range []string{"09:00", "09:30", "10:00"} {
		if _, err := svc.BookAppointment(ctx, book("2026-01-07", at)); err != nil {
			t.Fatalf("BookAppointment(%s) error = %v", at, err)
		}
	}
	cancelled, err := svc.BookAppointment(ctx, book("2026-01-07", "10:30"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}
	if _, err := svc.CancelAppointment(ctx, "d1", cancelled.ID); err != nil {
		t.Fatalf("CancelAppointment() error = %v", err)
	}

	week, err := svc.Week(ctx, "d1", domain.MustParseDate("2026-01-07"))
	if err != nil {
		t.Fatalf("Week() error = %v", err)
	}
	if got := week.Days[2].Consultations; got != 3 {
		t.Fatalf("wednesday consultations = %d, want 3", got)
	}
	if got := week.Days[0].Consultations; got != 0 {
		t.Fatalf("monday consultations = %d, want 0", got)
	}
}

func TestCancelAppointment(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	appt, err := svc.BookAppointment(ctx, book("2026-01-05", "11:30"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}

	if _, err := svc.CancelAppointment(ctx, "d2", appt.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("other doctor cancel error = %v, want %v", err, store.ErrNotFound)
	}

	got, err := svc.CancelAppointment(ctx, "d1", appt.ID)
	if err != nil {
		t.Fatalf("CancelAppointment() error = %v", err)
	}
	if !got.Cancelled {
		t.Fatalf("cancelled = false, want true")
	}
	if _, err := svc.CancelAppointment(ctx, "d1", appt.ID); err != nil {
		t.Fatalf("second CancelAppointment() error = %v", err)
	}

	if _, err := svc.BookAppointment(ctx, book("2026-01-05", "11:30")); err != nil {
		t.Fatalf("rebooking a cancelled slot error = %v", err)
	}
}

func TestCalendarCacheInvalidatedByWrites(t *testing.T) {
	fetches := 0
	svc := newService(t, &fakeRepo{
		fetchAvailability: func(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
			fetches++
			return nil, nil
		},
		fetchAbsences: func(ctx context.Context, doctorID string) ([]domain.Absence, error) { return nil, nil },
		fetchAppointments: func(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error) {
			return nil, nil
		},
		deleteAbsence: func(ctx context.Context, doctorID, id string) error { return nil },
	})
	ctx := context.Background()
	date := domain.MustParseDate("2026-01-05")

	for i := 0; i < 2; i++ {
		if _, err := svc.Day(ctx, "d1", date); err != nil {
			t.Fatalf("Day() error = %v", err)
		}
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1", fetches)
	}

	if err := svc.DeleteAbsence(ctx, "d1", "a1"); err != nil {
		t.Fatalf("DeleteAbsence() error = %v", err)
	}
	if _, err := svc.Day(ctx, "d1", date); err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if fetches != 2 {
		t.Fatalf("fetches = %d, want 2", fetches)
	}
}

func TestBookAppointment_SeesAbsenceWrittenByAnotherInstance(t *testing.T) {
	fs := afero.NewMemMapFs()
	first := newService(t, filestore.New(fs, "/calendar.json"))
	second := newService(t, filestore.New(fs, "/calendar.json"))
	addJanuaryWindow(t, first)
	ctx := context.Background()
	date := domain.MustParseDate("2026-01-07")

	free, err := first.FreeSlots(ctx, "d1", date)
	if err != nil {
		t.Fatalf("FreeSlots() error = %v", err)
	}
	if len(free) == 0 {
		t.Fatalf("free = %v, want slots before the absence", free)
	}

	if _, err := second.CreateAbsence(ctx, AbsenceInput{DoctorID: "d1", StartDate: date, EndDate: date}); err != nil {
		t.Fatalf("CreateAbsence() error = %v", err)
	}

	_, err = first.BookAppointment(ctx, book("2026-01-07", "10:00"))
	if !errors.Is(err, slots.ErrSlotUnavailable) {
		t.Fatalf("booking on absent day error = %v, want slot unavailable", err)
	}
	appts, err := second.ListAppointments(ctx, "d1", date, date)
	if err != nil {
		t.Fatalf("ListAppointments() error = %v", err)
	}
	if len(appts) != 0 {
		t.Fatalf("appointments = %+v, want none", appts)
	}
}

func TestCalendarCacheExpires(t *testing.T) {
	fs := afero.NewMemMapFs()
	first, err := NewService(filestore.New(fs, "/calendar.json"), Options{
		Clock:    func() time.Time { return testNow },
		CacheTTL: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	second := newService(t, filestore.New(fs, "/calendar.json"))
	addJanuaryWindow(t, first)
	ctx := context.Background()
	date := domain.MustParseDate("2026-01-08")

	if free, err := first.FreeSlots(ctx, "d1", date); err != nil || len(free) == 0 {
		t.Fatalf("FreeSlots() = %v, %v, want slots", free, err)
	}
	if _, err := second.CreateAbsence(ctx, AbsenceInput{DoctorID: "d1", StartDate: date, EndDate: date}); err != nil {
		t.Fatalf("CreateAbsence() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	free, err := first.FreeSlots(ctx, "d1", date)
	if err != nil {
		t.Fatalf("FreeSlots() error = %v", err)
	}
	if len(free) != 0 {
		t.Fatalf("free after ttl = %v, want none", free)
	}
}

func TestDay_FlagsCancelledSlotAppointment(t *testing.T) {
	svc, repo := newFileService(t)
	ctx := context.Background()

	appt, err := svc.BookAppointment(ctx, book("2026-01-09", "11:00"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}
	if _, err := repo.CreateAbsence(ctx, domain.Absence{
		DoctorID:  "d1",
		StartDate: domain.MustParseDate("2026-01-09"),
		EndDate:   domain.MustParseDate("2026-01-09"),
	}); err != nil {
		t.Fatalf("CreateAbsence() error = %v", err)
	}
	svc.cache.Purge()

	day, err := svc.Day(ctx, "d1", domain.MustParseDate("2026-01-09"))
	if err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if len(day.Cancellations) != 1 || !day.Cancellations[0].Cancelled {
		t.Fatalf("cancellations = %+v, want one cancelled", day.Cancellations)
	}

	var found bool
	for _, slot := range day.Slots {
		if slot.Appointment == nil || slot.Appointment.ID != appt.ID {
			continue
		}
		found = true
		if !slot.Appointment.Cancelled {
			t.Fatalf("slot %s appointment cancelled = false, want true", slot.Time)
		}
	}
	if !found {
		t.Fatalf("no slot carries appointment %s", appt.ID)
	}
}

func isValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

func TestDeleteAppointment(t *testing.T) {
	svc, repo := newFileService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appt, err := svc.BookAppointment(ctx, book("2026-01-06", "09:30"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}

	changes, err := svc.Watch(ctx, "d1")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	tests := []struct {
		name     string
		doctorID string
		id       string
		check    func(error) bool
	}{
		{"missing doctor", "", appt.ID, isValidation},
		{"missing id", "d1", "", isValidation},
		{"other doctor", "d2", appt.ID, func(err error) bool { return errors.Is(err, store.ErrNotFound) }},
		{"unknown id", "d1", "nope", func(err error) bool { return errors.Is(err, store.ErrNotFound) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.DeleteAppointment(ctx, tt.doctorID, tt.id); !tt.check(err) {
				t.Fatalf("DeleteAppointment() error = %v", err)
			}
		})
	}

	if err := svc.DeleteAppointment(ctx, "d1", appt.ID); err != nil {
		t.Fatalf("DeleteAppointment() error = %v", err)
	}
	if _, err := repo.GetAppointment(ctx, appt.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetAppointment() error = %v, want %v", err, store.ErrNotFound)
	}
	select {
	case c := <-changes:
		if c.Kind != store.ChangeAppointment || c.ID != appt.ID {
			t.Fatalf("change = %+v, want appointment %s", c, appt.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no change received")
	}

	if _, err := svc.BookAppointment(ctx, book("2026-01-06", "09:30")); err != nil {
		t.Fatalf("rebooking a deleted slot error = %v", err)
	}
}

func TestWatchFiltersByDoctor(t *testing.T) {
	svc, _ := newFileService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := svc.Watch(ctx, "d1")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if _, err := svc.CreateAvailability(ctx, AvailabilityInput{
		DoctorID:   "d2",
		Kind:       "one_off",
		StartDate:  domain.MustParseDate("2026-01-12"),
		TimeRanges: []domain.TimeRange{{From: "09:00", To: "10:00"}},
	}); err != nil {
		t.Fatalf("CreateAvailability() error = %v", err)
	}
	appt, err := svc.BookAppointment(ctx, book("2026-01-05", "10:30"))
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}

	select {
	case c := <-changes:
		if c.DoctorID != "d1" || c.Kind != store.ChangeAppointment || c.ID != appt.ID {
			t.Fatalf("change = %+v, want appointment %s for d1", c, appt.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no change received")
	}
}

func TestListAppointments_Validation(t *testing.T) {
	svc := newService(t, &fakeRepo{})
	ctx := context.Background()

	_, err := svc.ListAppointments(ctx, "d1", domain.MustParseDate("2026-01-10"), domain.MustParseDate("2026-01-01"))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	_, err = svc.ListAppointments(ctx, "d1", domain.MustParseDate("2025-01-01"), domain.MustParseDate("2026-06-01"))
	if !errors.As(err, &vErr) || vErr.Error() != "range too long" {
		t.Fatalf("error = %v, want range too long", err)
	}
}

type feedRepo struct {
	*fakeRepo
	changes chan store.Change
}

func (f *feedRepo) Subscribe(ctx context.Context) (<-chan store.Change, error) {
	return f.changes, nil
}

func TestRunRelaysBackendFeed(t *testing.T) {
	fetches := 0
	repo := &feedRepo{
		fakeRepo: &fakeRepo{
			fetchAvailability: func(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
				fetches++
				return nil, nil
			},
			fetchAbsences: func(ctx context.Context, doctorID string) ([]domain.Absence, error) { return nil, nil },
			fetchAppointments: func(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error) {
				return nil, nil
			},
		},
		changes: make(chan store.Change, 1),
	}
	svc := newService(t, repo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch, err := svc.Watch(ctx, "d1")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	date := domain.MustParseDate("2026-01-05")
	if _, err := svc.Day(ctx, "d1", date); err != nil {
		t.Fatalf("Day() error = %v", err)
	}

	repo.changes <- store.Change{Kind: store.ChangeAbsence, DoctorID: "d1", ID: "abs1"}
	select {
	case c := <-watch:
		if c.ID != "abs1" {
			t.Fatalf("change id = %q, want abs1", c.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no change relayed")
	}

	if _, err := svc.Day(ctx, "d1", date); err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if fetches != 2 {
		t.Fatalf("fetches = %d, want 2", fetches)
	}

	close(repo.changes)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after the feed closed")
	}
}
