package scheduling

import (
	"context"
	"log/slog"

	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

// Watch streams calendar changes for doctorID, or for every doctor when doctorID
// is empty. The channel closes when ctx is done.
func (s *Service) Watch(ctx context.Context, doctorID string) (<-chan store.Change, error) {
	src, err := s.changes.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	if doctorID == "" {
		return src, nil
	}

	out := make(chan store.Change, cap(src))
	go func() {
		defer close(out)
		for c := range src {
			if c.DoctorID != doctorID {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Run relays changes published by the storage backend until ctx is done. Each
// change drops the doctor's cached calendar before it reaches watchers. Backends
// without their own feed need no relay and Run returns immediately.
func (s *Service) Run(ctx context.Context) error {
	if s.feed == nil {
		return nil
	}
	changes, err := s.feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "relaying storage changes")
	for c := range changes {
		s.cache.Remove(c.DoctorID)
		s.changes.Publish(c)
		s.log.DebugContext(ctx, "storage change", slog.String("kind", string(c.Kind)), slog.String("doctor_id", c.DoctorID))
	}
	return ctx.Err()
}
