package repository

import (
	"context"
	"fmt"

	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
)

// SlotRepository is the Time Slot Store. Reserve is the single serialization
// point for capacity; implementations must not read-then-write from Go code.
type SlotRepository interface {
	GetSlot(ctx context.Context, id string) (*domain.TimeSlot, error)
	ListSlots(ctx context.Context, exhibitorID string) ([]domain.TimeSlot, error)
	CreateSlot(ctx context.Context, in domain.NewSlot) (*domain.TimeSlot, error)
	Reserve(ctx context.Context, in ReserveInput) (*Reservation, error)
	Release(ctx context.Context, slotID string) (*domain.TimeSlot, error)
	Reconcile(ctx context.Context, slotID string) (*domain.TimeSlot, error)
	DeleteSlot(ctx context.Context, id string) error
}

type AppointmentRepository interface {
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	// FindNonCancelled returns ErrAppointmentNotFound when the visitor holds nothing on the slot.
	FindNonCancelled(ctx context.Context, visitorID, slotID string) (*domain.Appointment, error)
	CountActive(ctx context.Context, visitorID string) (int, error)
	ListByVisitor(ctx context.Context, visitorID string, status *domain.AppointmentStatus) ([]domain.Appointment, error)
	ListByExhibitor(ctx context.Context, exhibitorID string, status *domain.AppointmentStatus) ([]domain.Appointment, error)
	// UpdateStatus is a compare-and-swap on From; a mismatch yields ErrStatusConflict.
	UpdateStatus(ctx context.Context, in UpdateStatusInput) (*domain.Appointment, error)
}

type ReserveInput struct {
	SlotID         string
	VisitorID      string
	Message        string
	Classification string
	// MaxActive is re-checked inside the reservation; negative means unlimited.
	MaxActive int
}

type Reservation struct {
	Appointment domain.Appointment
	Slot        domain.TimeSlot
}

type UpdateStatusInput struct {
	ID          string
	From        domain.AppointmentStatus
	To          domain.AppointmentStatus
	MeetingLink *string
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
