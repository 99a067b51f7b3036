package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from  AppointmentStatus
		to    AppointmentStatus
		valid bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.from, tt.to); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestParseAppointmentStatus(t *testing.T) {
	if st, ok := ParseAppointmentStatus(" Canceled "); !ok || st != StatusCancelled {
		t.Fatalf("expected canceled alias, got %q %v", st, ok)
	}
	if _, ok := ParseAppointmentStatus("archived"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestValidateNewSlot(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)

	base := func() NewSlot {
		return NewSlot{
			ExhibitorID: "ex-1",
			Bounds:      SlotBounds{Date: "2026-03-10", StartTime: "09:00", EndTime: "09:45"},
			MaxBookings: 2,
			Modality:    "hybrid",
		}
	}

	ok := base()
	if err := ValidateNewSlot(&ok, now, loc); err != nil {
		t.Fatalf("expected today to be accepted: %v", err)
	}
	if ok.DurationMinutes != 45 {
		t.Fatalf("expected 45 minutes, got %d", ok.DurationMinutes)
	}
	if ok.Modality != ModalityHybrid {
		t.Fatalf("expected hybrid, got %q", ok.Modality)
	}

	cases := []struct {
		name   string
		mutate func(*NewSlot)
	}{
		{"past date", func(s *NewSlot) { s.Bounds.Date = "2026-03-09" }},
		{"start equals end", func(s *NewSlot) { s.Bounds.EndTime = "09:00" }},
		{"start after end", func(s *NewSlot) { s.Bounds.StartTime = "10:00" }},
		{"zero capacity", func(s *NewSlot) { s.MaxBookings = 0 }},
		{"missing owner", func(s *NewSlot) { s.ExhibitorID = " " }},
		{"bad modality", func(s *NewSlot) { s.Modality = "telepathy" }},
		{"bad date", func(s *NewSlot) { s.Bounds.Date = "10/03/2026" }},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			if err := ValidateNewSlot(&in, now, loc); !errors.Is(err, ErrInvalidSlot) {
				t.Fatalf("expected ErrInvalidSlot, got %v", err)
			}
		})
	}
}

func TestSlotNormalize(t *testing.T) {
	s := TimeSlot{MaxBookings: 2, CurrentBookings: 2, Available: true}
	s.Normalize()
	if s.Available {
		t.Fatal("full slot must not be available")
	}
	s.CurrentBookings = -1
	s.Normalize()
	if s.CurrentBookings != 0 || !s.Available {
		t.Fatalf("expected clamp to 0 and available, got %+v", s)
	}
}

func TestQuotaExceededErrorIs(t *testing.T) {
	err := fmt.Errorf("book: %w", &QuotaExceededError{Classification: "free", Limit: 3, Active: 3})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatal("expected errors.Is to match ErrQuotaExceeded")
	}
	var qe *QuotaExceededError
	if !errors.As(err, &qe) || qe.Classification != "free" {
		t.Fatalf("expected classification to survive wrapping, got %+v", qe)
	}
}
