// Package redisstore keeps calendars in Redis hashes, one set per doctor, and
// announces every write on a pub/sub channel so other processes can invalidate
// cached snapshots.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

const DefaultPrefix = "doctorcal"

// bookScript claims the slot and stores the appointment atomically.
// KEYS: appointments, slots, owners. ARGV: id, slot field, json, doctor id, hold slot.
var bookScript = redis.NewScript(`
local existing = redis.call('HGET', KEYS[1], ARGV[1])
if existing then
  return {'replay', existing}
end
if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 1 then
  return {'conflict', ''}
end
if ARGV[5] == '1' then
  if redis.call('HSETNX', KEYS[2], ARGV[2], ARGV[1]) == 0 then
    return {'taken', ''}
  end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[4])
return {'ok', ''}
`)

// releaseScript rewrites or removes an appointment and frees its slot if it still holds it.
// KEYS: appointments, slots, owners. ARGV: id, slot field, json or empty to delete.
var releaseScript = redis.NewScript(`
if ARGV[3] == '' then
  redis.call('HDEL', KEYS[1], ARGV[1])
  redis.call('HDEL', KEYS[3], ARGV[1])
else
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
end
if redis.call('HGET', KEYS[2], ARGV[2]) == ARGV[1] then
  redis.call('HDEL', KEYS[2], ARGV[2])
end
return 1
`)

type Store struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.ChangeFeed = (*Store)(nil)
)

func New(client *redis.Client, prefix string, log *slog.Logger) *Store {
	if client == nil {
		panic("redisstore: client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{client: client, prefix: prefix, log: log.With("component", "redis_store")}
}

func (s *Store) doctorKey(doctorID, collection string) string {
	return s.prefix + ":doctor:" + doctorID + ":" + collection
}

func (s *Store) ownersKey() string { return s.prefix + ":appointment-owners" }

func (s *Store) channel() string { return s.prefix + ":changes" }

func slotField(a domain.Appointment) string {
	t := a.Time
	if c, err := domain.ParseClock(a.Time); err == nil {
		t = c.String()
	}
	return a.Date.String() + "#" + t
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisstore: ping: %w", err)
	}
	return nil
}

func (s *Store) FetchAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
	out, err := readAll[domain.AvailabilityWindow](ctx, s.client, s.doctorKey(doctorID, "availability"))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	if err := domain.StampNew(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if err := s.putNew(ctx, s.doctorKey(w.DoctorID, "availability"), w.ID, w); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	s.publish(ctx, store.Change{Kind: store.ChangeAvailability, DoctorID: w.DoctorID, ID: w.ID})
	return w, nil
}

func (s *Store) DeleteAvailability(ctx context.Context, doctorID, id string) error {
	if err := s.deleteField(ctx, s.doctorKey(doctorID, "availability"), id); err != nil {
		return err
	}
	s.publish(ctx, store.Change{Kind: store.ChangeAvailability, DoctorID: doctorID, ID: id})
	return nil
}

func (s *Store) FetchAbsences(ctx context.Context, doctorID string) ([]domain.Absence, error) {
	out, err := readAll[domain.Absence](ctx, s.client, s.doctorKey(doctorID, "absences"))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) CreateAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error) {
	if err := domain.StampNew(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Absence{}, err
	}
	if err := s.putNew(ctx, s.doctorKey(a.DoctorID, "absences"), a.ID, a); err != nil {
		return domain.Absence{}, err
	}
	s.publish(ctx, store.Change{Kind: store.ChangeAbsence, DoctorID: a.DoctorID, ID: a.ID})
	return a, nil
}

func (s *Store) DeleteAbsence(ctx context.Context, doctorID, id string) error {
	if err := s.deleteField(ctx, s.doctorKey(doctorID, "absences"), id); err != nil {
		return err
	}
	s.publish(ctx, store.Change{Kind: store.ChangeAbsence, DoctorID: doctorID, ID: id})
	return nil
}

func (s *Store) FetchAppointments(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error) {
	all, err := readAll[domain.Appointment](ctx, s.client, s.doctorKey(doctorID, "appointments"))
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if a.Date.Within(from, to) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return slotField(out[i]) < slotField(out[j])
	})
	return out, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	doctorID, err := s.client.HGet(ctx, s.ownersKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("redisstore: get owner: %w", err)
	}
	raw, err := s.client.HGet(ctx, s.doctorKey(doctorID, "appointments"), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("redisstore: get appointment: %w", err)
	}
	var a domain.Appointment
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Appointment{}, fmt.Errorf("redisstore: decode appointment: %w", err)
	}
	return a, nil
}

func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if err := domain.StampNew(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return domain.Appointment{}, err
	}
	data, err := json.Marshal(appt)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("redisstore: encode appointment: %w", err)
	}
	hold := "1"
	if appt.Cancelled {
		hold = "0"
	}

	res, err := bookScript.Run(ctx, s.client,
		[]string{s.doctorKey(appt.DoctorID, "appointments"), s.doctorKey(appt.DoctorID, "slots"), s.ownersKey()},
		appt.ID, slotField(appt), data, appt.DoctorID, hold,
	).StringSlice()
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("redisstore: book: %w", err)
	}

	switch res[0] {
	case "ok":
		s.publish(ctx, store.Change{Kind: store.ChangeAppointment, DoctorID: appt.DoctorID, ID: appt.ID})
		return appt, nil
	case "taken":
		return domain.Appointment{}, store.ErrSlotTaken
	case "conflict":
		return domain.Appointment{}, store.ErrIdempotencyConflict
	case "replay":
		var existing domain.Appointment
		if err := json.Unmarshal([]byte(res[1]), &existing); err != nil {
			return domain.Appointment{}, fmt.Errorf("redisstore: decode appointment: %w", err)
		}
		if !store.SameAppointment(existing, appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}
	return domain.Appointment{}, fmt.Errorf("redisstore: book: unexpected reply %q", res[0])
}

func (s *Store) CancelAppointments(ctx context.Context, doctorID string, ids []string) error {
	now := time.Now().UTC()
	for _, id := range ids {
		appt, err := s.GetAppointment(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if appt.DoctorID != doctorID || appt.Cancelled {
			continue
		}
		appt.Cancelled = true
		appt.UpdatedAt = now
		data, err := json.Marshal(appt)
		if err != nil {
			return fmt.Errorf("redisstore: encode appointment: %w", err)
		}
		if err := s.release(ctx, appt, string(data)); err != nil {
			return err
		}
		s.publish(ctx, store.Change{Kind: store.ChangeAppointment, DoctorID: doctorID, ID: id})
	}
	return nil
}

func (s *Store) DeleteAppointment(ctx context.Context, doctorID, id string) error {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if appt.DoctorID != doctorID {
		return store.ErrNotFound
	}
	if err := s.release(ctx, appt, ""); err != nil {
		return err
	}
	s.publish(ctx, store.Change{Kind: store.ChangeAppointment, DoctorID: doctorID, ID: id})
	return nil
}

func (s *Store) release(ctx context.Context, appt domain.Appointment, data string) error {
	err := releaseScript.Run(ctx, s.client,
		[]string{s.doctorKey(appt.DoctorID, "appointments"), s.doctorKey(appt.DoctorID, "slots"), s.ownersKey()},
		appt.ID, slotField(appt), data,
	).Err()
	if err != nil {
		return fmt.Errorf("redisstore: release %s: %w", appt.ID, err)
	}
	return nil
}

// Subscribe streams changes published by any process sharing the prefix.
func (s *Store) Subscribe(ctx context.Context) (<-chan store.Change, error) {
	sub := s.client.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redisstore: subscribe: %w", err)
	}

	out := make(chan store.Change, 16)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c store.Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					s.log.Warn("dropping malformed change", "error", err)
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// publish is best effort; the write already succeeded.
func (s *Store) publish(ctx context.Context, c store.Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.channel(), data).Err(); err != nil {
		s.log.WarnContext(ctx, "publish change failed", "doctor_id", c.DoctorID, "error", err)
	}
}

func (s *Store) putNew(ctx context.Context, key, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redisstore: encode: %w", err)
	}
	ok, err := s.client.HSetNX(ctx, key, field, data).Result()
	if err != nil {
		return fmt.Errorf("redisstore: write: %w", err)
	}
	if !ok {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) deleteField(ctx context.Context, key, field string) error {
	n, err := s.client.HDel(ctx, key, field).Result()
	if err != nil {
		return fmt.Errorf("redisstore: delete: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func readAll[T any](ctx context.Context, client *redis.Client, key string) ([]T, error) {
	vals, err := client.HVals(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: read %s: %w", key, err)
	}
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		var item T
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("redisstore: decode %s: %w", key, err)
		}
		out = append(out, item)
	}
	return out, nil
}
