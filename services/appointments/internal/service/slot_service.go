package service

import (
	"context"
	"strings"

	"github.com/diagnosis/expo-appointments/pkg/auth"
	"github.com/diagnosis/expo-appointments/pkg/logger"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

type SlotService interface {
	Create(ctx context.Context, actor domain.Identity, in CreateSlotInput) (*domain.TimeSlot, error)
	List(ctx context.Context, exhibitorID string) ([]domain.TimeSlot, error)
	Get(ctx context.Context, id string) (*domain.TimeSlot, error)
	Delete(ctx context.Context, actor domain.Identity, id string) error
	Reconcile(ctx context.Context, actor domain.Identity, id string) (*domain.TimeSlot, error)
}

type CreateSlotInput struct {
	// ExhibitorID is honoured for admins only; everyone else publishes for themselves.
	ExhibitorID string            `json:"exhibitor_id,omitempty"`
	Bounds      domain.SlotBounds `json:"bounds"`
	MaxBookings int               `json:"max_bookings"`
	Modality    string            `json:"modality"`
	Location    string            `json:"location,omitempty"`
}

type slotService struct {
	slots repository.SlotRepository
	opts  Options
}

func NewSlotService(slots repository.SlotRepository, opts Options) SlotService {
	return &slotService{slots: slots, opts: opts.withDefaults()}
}

func (s *slotService) Create(ctx context.Context, actor domain.Identity, in CreateSlotInput) (slot *domain.TimeSlot, err error) {
	ctx, span := tracer.Start(ctx, "SlotService.Create")
	defer func() { endSpan(span, err) }()

	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if !canPublishSlots(actor.Classification) {
		return nil, domain.ErrNotAuthorized
	}

	owner := actor.UserID
	if actor.Classification == auth.RoleAdmin && strings.TrimSpace(in.ExhibitorID) != "" {
		owner = strings.TrimSpace(in.ExhibitorID)
	}

	ns := domain.NewSlot{
		ExhibitorID: owner,
		Bounds:      in.Bounds,
		MaxBookings: in.MaxBookings,
		Modality:    domain.Modality(in.Modality),
		Location:    in.Location,
	}
	if err := domain.ValidateNewSlot(&ns, s.opts.Now(), s.opts.Location); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	slot, err = s.slots.CreateSlot(ctx, ns)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Slot published", "slot_id", slot.ID, "exhibitor_id", slot.ExhibitorID)
	return slot, nil
}

func (s *slotService) List(ctx context.Context, exhibitorID string) ([]domain.TimeSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.slots.ListSlots(ctx, exhibitorID)
}

func (s *slotService) Get(ctx context.Context, id string) (*domain.TimeSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.slots.GetSlot(ctx, id)
}

// Delete is owner-only and refused while the slot holds bookings.
func (s *slotService) Delete(ctx context.Context, actor domain.Identity, id string) (err error) {
	ctx, span := tracer.Start(ctx, "SlotService.Delete")
	span.SetAttributes(attribute.String("slot.id", id))
	defer func() { endSpan(span, err) }()

	if !actor.Authenticated() {
		return domain.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	slot, err := s.slots.GetSlot(ctx, id)
	if err != nil {
		return err
	}
	if slot.ExhibitorID != actor.UserID {
		return domain.ErrNotAuthorized
	}
	if err := s.slots.DeleteSlot(ctx, id); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Slot deleted", "slot_id", id)
	return nil
}

// Reconcile recomputes the slot's occupancy from its non-cancelled appointments.
func (s *slotService) Reconcile(ctx context.Context, actor domain.Identity, id string) (slot *domain.TimeSlot, err error) {
	ctx, span := tracer.Start(ctx, "SlotService.Reconcile")
	span.SetAttributes(attribute.String("slot.id", id))
	defer func() { endSpan(span, err) }()

	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	current, err := s.slots.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.ExhibitorID != actor.UserID && actor.Classification != auth.RoleAdmin {
		return nil, domain.ErrNotAuthorized
	}

	slot, err = s.slots.Reconcile(ctx, id)
	if err != nil {
		return nil, err
	}
	if slot.CurrentBookings != current.CurrentBookings {
		logger.WarnContext(ctx, "Slot occupancy corrected",
			"slot_id", id,
			"was", current.CurrentBookings,
			"now", slot.CurrentBookings,
		)
	}
	return slot, nil
}
