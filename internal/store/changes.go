package store

import (
	"context"
	"sync"
	"time"
)

type ChangeKind string

const (
	ChangeAvailability ChangeKind = "availability"
	ChangeAbsence      ChangeKind = "absence"
	ChangeAppointment  ChangeKind = "appointment"
)

// Change announces that a doctor's calendar was written.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	DoctorID string     `json:"doctorId"`
	ID       string     `json:"id,omitempty"`
	At       time.Time  `json:"at"`
}

// ChangeFeed is implemented by backends that can push changes made by other processes.
type ChangeFeed interface {
	Subscribe(ctx context.Context) (<-chan Change, error)
}

// Broadcaster fans Change values out to in-process subscribers. Slow subscribers
// drop events instead of blocking publishers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Change]struct{}
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{subs: make(map[chan Change]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber until ctx is done, then closes its channel.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *Broadcaster) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

var _ ChangeFeed = (*Broadcaster)(nil)
