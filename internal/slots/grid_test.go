package slots

import (
	"testing"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
)

func TestDayAxis(t *testing.T) {
	axis := DayAxis()
	if len(axis) != 30 {
		t.Fatalf("len(axis) = %d, want 30", len(axis))
	}
	if axis[0].String() != "07:00" {
		t.Fatalf("first tick = %s, want 07:00", axis[0])
	}
	if axis[len(axis)-1].String() != "21:30" {
		t.Fatalf("last tick = %s, want 21:30", axis[len(axis)-1])
	}
	for i := 1; i < len(axis); i++ {
		if axis[i]-axis[i-1] != 30 {
			t.Fatalf("step between %s and %s is not 30 minutes", axis[i-1], axis[i])
		}
	}
}

func TestTicks(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want []string
	}{
		{name: "whole hour", from: "9:00", to: "10:00", want: []string{"09:00", "09:30"}},
		{name: "partial tail dropped", from: "9:00", to: "10:15", want: []string{"09:00", "09:30"}},
		{name: "off grid start", from: "9:15", to: "10:15", want: []string{"09:15", "09:45"}},
		{name: "shorter than a slot", from: "9:00", to: "9:20", want: nil},
		{name: "inverted", from: "10:00", to: "9:00", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ticks(domain.MustParseClock(tt.from), domain.MustParseClock(tt.to))
			if len(got) != len(tt.want) {
				t.Fatalf("Ticks = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Fatalf("Ticks[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWeekDates(t *testing.T) {
	for _, anchor := range []string{"2026-01-05", "2026-01-07", "2026-01-11"} {
		week := WeekDates(domain.MustParseDate(anchor))
		if week[0] != domain.MustParseDate("2026-01-05") {
			t.Fatalf("WeekDates(%s)[0] = %s, want 2026-01-05", anchor, week[0])
		}
		if week[6] != domain.MustParseDate("2026-01-11") {
			t.Fatalf("WeekDates(%s)[6] = %s, want 2026-01-11", anchor, week[6])
		}
	}
	if got := EndOfWeek(domain.MustParseDate("2026-01-01")); got != domain.MustParseDate("2026-01-04") {
		t.Fatalf("EndOfWeek = %s, want 2026-01-04", got)
	}
}

func TestBucketContains(t *testing.T) {
	if !BucketMorning.Contains(domain.Clock(11, 30)) || BucketMorning.Contains(domain.Clock(12, 0)) {
		t.Fatalf("morning bucket boundaries wrong")
	}
	if !BucketEvening.Contains(domain.Clock(21, 30)) {
		t.Fatalf("evening bucket should contain 21:30")
	}
	if _, ok := ParseBucket("night"); ok {
		t.Fatalf("ParseBucket accepted unknown bucket")
	}
	if !OnAxis(domain.Clock(7, 0)) || OnAxis(domain.Clock(7, 15)) || OnAxis(domain.Clock(22, 0)) {
		t.Fatalf("OnAxis boundaries wrong")
	}
}
