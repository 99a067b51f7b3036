// Package fixture publishes demo slots for local development and demos.
// It only runs when SEED_DEMO_DATA is set; it is never a fallback for a failing store.
package fixture

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/repository"
)

type demoSlot struct {
	exhibitor string
	dayOffset int
	start     string
	end       string
	capacity  int
	modality  domain.Modality
	location  string
}

var demoSlots = []demoSlot{
	{"demo-exhibitor-1", 1, "09:00", "09:30", 1, domain.ModalityInPerson, "Hall A, booth 14"},
	{"demo-exhibitor-1", 1, "09:30", "10:00", 2, domain.ModalityInPerson, "Hall A, booth 14"},
	{"demo-exhibitor-1", 1, "14:00", "15:00", 5, domain.ModalityHybrid, "Hall A, booth 14"},
	{"demo-exhibitor-2", 1, "11:00", "11:45", 3, domain.ModalityVirtual, ""},
	{"demo-exhibitor-2", 2, "10:00", "10:20", 1, domain.ModalityVirtual, ""},
	{"demo-partner-1", 2, "16:00", "17:00", 10, domain.ModalityInPerson, "Conference room 2"},
}

// Seed creates the demo slots relative to now in loc and returns them.
func Seed(ctx context.Context, slots repository.SlotRepository, now time.Time, loc *time.Location) ([]domain.TimeSlot, error) {
	local := now.In(loc)
	out := make([]domain.TimeSlot, 0, len(demoSlots))
	for _, d := range demoSlots {
		ns := domain.NewSlot{
			ExhibitorID: d.exhibitor,
			Bounds: domain.SlotBounds{
				Date:      local.AddDate(0, 0, d.dayOffset).Format(domain.DateLayout),
				StartTime: d.start,
				EndTime:   d.end,
			},
			MaxBookings: d.capacity,
			Modality:    d.modality,
			Location:    d.location,
		}
		if err := domain.ValidateNewSlot(&ns, now, loc); err != nil {
			return nil, fmt.Errorf("demo slot %s %s: %w", d.exhibitor, d.start, err)
		}
		s, err := slots.CreateSlot(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("seed slot: %w", err)
		}
		out = append(out, *s)
	}
	return out, nil
}
