package store

import (
	"context"
	"testing"
	"time"
)

func TestBroadcasterDeliversAndCloses(t *testing.T) {
	b := NewBroadcaster(4)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	b.Publish(Change{Kind: ChangeAppointment, DoctorID: "d1", ID: "a1"})

	select {
	case c := <-ch:
		if c.DoctorID != "d1" || c.Kind != ChangeAppointment {
			t.Fatalf("change = %+v", c)
		}
		if c.At.IsZero() {
			t.Fatalf("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for change")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for close")
	}
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := b.Subscribe(ctx)
	b.Publish(Change{DoctorID: "d1"})
	b.Publish(Change{DoctorID: "d2"})

	if got := (<-ch).DoctorID; got != "d1" {
		t.Fatalf("first change = %q, want d1", got)
	}
	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v", c)
	default:
	}
}
