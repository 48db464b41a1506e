// Package filestore keeps the whole calendar in a single JSON document. It reads
// the layout of the flat-file REST server the booking app started with, including
// numeric ids and localized kind and weekday names, and always writes the native layout.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

const (
	keyAvailability = "availability"
	keyAbsences     = "absences"
	keyAppointments = "appointments"
)

type Store struct {
	fs   afero.Fs
	path string

	mu sync.Mutex
}

var _ store.Repository = (*Store)(nil)

func New(fs afero.Fs, path string) *Store {
	if fs == nil {
		panic("filestore: filesystem cannot be nil")
	}
	if path == "" {
		panic("filestore: path cannot be empty")
	}
	return &Store{fs: fs, path: path}
}

// document is the decoded file. Collections this package does not own are kept verbatim.
type document struct {
	availability []domain.AvailabilityWindow
	absences     []domain.Absence
	appointments []domain.Appointment
	extra        map[string]json.RawMessage
}

func (s *Store) load() (*document, error) {
	doc := &document{extra: map[string]json.RawMessage{}}

	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return doc, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("filestore: decode %s: %w", s.path, err)
	}

	if v, ok := raw[keyAvailability]; ok {
		var recs []availabilityRecord
		if err := json.Unmarshal(v, &recs); err != nil {
			return nil, fmt.Errorf("filestore: decode availability: %w", err)
		}
		for i, r := range recs {
			w, err := r.toDomain()
			if err != nil {
				return nil, fmt.Errorf("filestore: availability[%d]: %w", i, err)
			}
			doc.availability = append(doc.availability, w)
		}
		delete(raw, keyAvailability)
	}
	if v, ok := raw[keyAbsences]; ok {
		var recs []absenceRecord
		if err := json.Unmarshal(v, &recs); err != nil {
			return nil, fmt.Errorf("filestore: decode absences: %w", err)
		}
		for i, r := range recs {
			a, err := r.toDomain()
			if err != nil {
				return nil, fmt.Errorf("filestore: absences[%d]: %w", i, err)
			}
			doc.absences = append(doc.absences, a)
		}
		delete(raw, keyAbsences)
	}
	if v, ok := raw[keyAppointments]; ok {
		var recs []appointmentRecord
		if err := json.Unmarshal(v, &recs); err != nil {
			return nil, fmt.Errorf("filestore: decode appointments: %w", err)
		}
		for i, r := range recs {
			a, err := r.toDomain()
			if err != nil {
				return nil, fmt.Errorf("filestore: appointments[%d]: %w", i, err)
			}
			doc.appointments = append(doc.appointments, a)
		}
		delete(raw, keyAppointments)
	}

	doc.extra = raw
	return doc, nil
}

// save replaces the file atomically via a temporary sibling and a rename.
func (s *Store) save(doc *document) error {
	out := make(map[string]any, len(doc.extra)+3)
	for k, v := range doc.extra {
		out[k] = v
	}
	out[keyAvailability] = nonNil(doc.availability)
	out[keyAbsences] = nonNil(doc.absences)
	out[keyAppointments] = nonNil(doc.appointments)

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("filestore: create dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("filestore: write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("filestore: replace %s: %w", s.path, err)
	}
	return nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// update runs fn on the current document and saves it when fn succeeds.
func (s *Store) update(fn func(doc *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *Store) read() (*document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.read()
	return err
}

func (s *Store) FetchAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []domain.AvailabilityWindow
	for _, w := range doc.availability {
		if w.DoctorID == doctorID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	err := s.update(func(doc *document) error {
		if err := domain.StampNew(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return err
		}
		for _, existing := range doc.availability {
			if existing.ID == w.ID {
				return store.ErrConflict
			}
		}
		doc.availability = append(doc.availability, w)
		return nil
	})
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	return w, nil
}

func (s *Store) DeleteAvailability(ctx context.Context, doctorID, id string) error {
	return s.update(func(doc *document) error {
		var ok bool
		doc.availability, ok = removeOwned(doc.availability, func(w domain.AvailabilityWindow) bool {
			return w.DoctorID == doctorID && w.ID == id
		})
		if !ok {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) FetchAbsences(ctx context.Context, doctorID string) ([]domain.Absence, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []domain.Absence
	for _, a := range doc.absences {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) CreateAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error) {
	err := s.update(func(doc *document) error {
		if err := domain.StampNew(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return err
		}
		for _, existing := range doc.absences {
			if existing.ID == a.ID {
				return store.ErrConflict
			}
		}
		doc.absences = append(doc.absences, a)
		return nil
	})
	if err != nil {
		return domain.Absence{}, err
	}
	return a, nil
}

func (s *Store) DeleteAbsence(ctx context.Context, doctorID, id string) error {
	return s.update(func(doc *document) error {
		var ok bool
		doc.absences, ok = removeOwned(doc.absences, func(a domain.Absence) bool {
			return a.DoctorID == doctorID && a.ID == id
		})
		if !ok {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) FetchAppointments(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []domain.Appointment
	for _, a := range doc.appointments {
		if a.DoctorID == doctorID && a.Date.Within(from, to) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	doc, err := s.read()
	if err != nil {
		return domain.Appointment{}, err
	}
	for _, a := range doc.appointments {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := s.update(func(doc *document) error {
		for _, existing := range doc.appointments {
			if appt.ID != "" && existing.ID == appt.ID {
				if !store.SameAppointment(existing, appt) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return errReplay
			}
		}
		for _, existing := range doc.appointments {
			if !existing.Cancelled && existing.SameSlot(appt) {
				return store.ErrSlotTaken
			}
		}
		if err := domain.StampNew(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
			return err
		}
		doc.appointments = append(doc.appointments, appt)
		out = appt
		return nil
	})
	if errors.Is(err, errReplay) {
		return out, nil
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// errReplay aborts an update without writing when a create is replayed.
var errReplay = errors.New("filestore: replay")

func (s *Store) CancelAppointments(ctx context.Context, doctorID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	now := time.Now().UTC()
	return s.update(func(doc *document) error {
		for i := range doc.appointments {
			a := &doc.appointments[i]
			if _, ok := want[a.ID]; ok && a.DoctorID == doctorID {
				a.Cancelled = true
				a.UpdatedAt = now
			}
		}
		return nil
	})
}

func (s *Store) DeleteAppointment(ctx context.Context, doctorID, id string) error {
	return s.update(func(doc *document) error {
		var ok bool
		doc.appointments, ok = removeOwned(doc.appointments, func(a domain.Appointment) bool {
			return a.DoctorID == doctorID && a.ID == id
		})
		if !ok {
			return store.ErrNotFound
		}
		return nil
	})
}

func removeOwned[T any](items []T, match func(T) bool) ([]T, bool) {
	out := items[:0]
	found := false
	for _, it := range items {
		if match(it) {
			found = true
			continue
		}
		out = append(out, it)
	}
	return out, found
}
