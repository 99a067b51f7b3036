package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Modality string

const (
	ModalityInPerson Modality = "in_person"
	ModalityVirtual  Modality = "virtual"
	ModalityHybrid   Modality = "hybrid"
)

func ParseModality(s string) (Modality, bool) {
	switch Modality(strings.ToLower(strings.TrimSpace(s))) {
	case ModalityInPerson, "in-person", "":
		return ModalityInPerson, true
	case ModalityVirtual:
		return ModalityVirtual, true
	case ModalityHybrid:
		return ModalityHybrid, true
	default:
		return "", false
	}
}

type TimeSlot struct {
	ID              string    `json:"id"`
	ExhibitorID     string    `json:"exhibitor_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	MaxBookings     int       `json:"max_bookings"`
	CurrentBookings int       `json:"current_bookings"`
	Available       bool      `json:"available"`
	Modality        Modality  `json:"modality"`
	Location        string    `json:"location,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasCapacity recomputes availability from the counters instead of trusting the stored flag.
func (s *TimeSlot) HasCapacity() bool {
	return s.CurrentBookings < s.MaxBookings
}

// Normalize clamps the counters and re-derives Available. Store adapters call it on every read.
func (s *TimeSlot) Normalize() {
	if s.CurrentBookings < 0 {
		s.CurrentBookings = 0
	}
	s.Available = s.HasCapacity()
}

type SlotBounds struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// NewSlot is a validated slot creation request.
type NewSlot struct {
	ExhibitorID     string
	Bounds          SlotBounds
	DurationMinutes int
	MaxBookings     int
	Modality        Modality
	Location        string
}

// ValidateNewSlot checks bounds and capacity and fills DurationMinutes.
// now is evaluated in loc so "today" matches the exhibitor's wall clock.
func ValidateNewSlot(in *NewSlot, now time.Time, loc *time.Location) error {
	if strings.TrimSpace(in.ExhibitorID) == "" {
		return fmt.Errorf("%w: slot owner is required", ErrInvalidSlot)
	}
	if in.MaxBookings <= 0 {
		return fmt.Errorf("%w: max bookings must be at least 1", ErrInvalidSlot)
	}

	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(in.Bounds.Date), loc)
	if err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidSlot)
	}
	start, err := time.Parse(TimeLayout, strings.TrimSpace(in.Bounds.StartTime))
	if err != nil {
		return fmt.Errorf("%w: start time must be HH:MM", ErrInvalidSlot)
	}
	end, err := time.Parse(TimeLayout, strings.TrimSpace(in.Bounds.EndTime))
	if err != nil {
		return fmt.Errorf("%w: end time must be HH:MM", ErrInvalidSlot)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start time must be before end time", ErrInvalidSlot)
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if day.Before(today) {
		return fmt.Errorf("%w: date is in the past", ErrInvalidSlot)
	}

	modality, ok := ParseModality(string(in.Modality))
	if !ok {
		return fmt.Errorf("%w: unknown modality %q", ErrInvalidSlot, in.Modality)
	}

	in.Modality = modality
	in.Bounds = SlotBounds{
		Date:      day.Format(DateLayout),
		StartTime: start.Format(TimeLayout),
		EndTime:   end.Format(TimeLayout),
	}
	in.DurationMinutes = int(end.Sub(start) / time.Minute)
	in.Location = strings.TrimSpace(in.Location)
	return nil
}
