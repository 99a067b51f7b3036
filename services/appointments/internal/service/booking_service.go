package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/diagnosis/expo-appointments/pkg/logger"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/quota"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

// BookingService is the Booking Engine.
type BookingService interface {
	Book(ctx context.Context, who domain.Identity, slotID, message string) (*domain.Appointment, error)
	QuotaSummary(ctx context.Context, who domain.Identity) (*QuotaSummary, error)
}

type QuotaSummary struct {
	Classification string `json:"classification"`
	Unlimited      bool   `json:"unlimited"`
	Limit          int    `json:"limit"`
	Active         int    `json:"active"`
	// Remaining is omitted for unlimited classifications.
	Remaining *int `json:"remaining,omitempty"`
}

// MaxMessageLength bounds the visitor's note, in runes.
const MaxMessageLength = 1000

type bookingService struct {
	slots        repository.SlotRepository
	appointments repository.AppointmentRepository
	policy       *quota.Policy
	opts         Options
}

func NewBookingService(
	slots repository.SlotRepository,
	appointments repository.AppointmentRepository,
	policy *quota.Policy,
	opts Options,
) BookingService {
	return &bookingService{
		slots:        slots,
		appointments: appointments,
		policy:       policy,
		opts:         opts.withDefaults(),
	}
}

// Book runs the precondition checks in a fixed order, then hands off to the
// store's atomic reserve, which repeats the capacity and quota checks under lock.
func (s *bookingService) Book(ctx context.Context, who domain.Identity, slotID, message string) (appt *domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.Book")
	span.SetAttributes(
		attribute.String("slot.id", slotID),
		attribute.String("requester.classification", who.Classification),
	)
	defer func() { endSpan(span, err) }()

	if !who.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	existing, err := s.appointments.FindNonCancelled(ctx, who.UserID, slotID)
	switch {
	case err == nil:
		logger.DebugContext(ctx, "Duplicate booking rejected", "slot_id", slotID, "appointment_id", existing.ID)
		return nil, domain.ErrDuplicateBooking
	case !errors.Is(err, domain.ErrAppointmentNotFound):
		return nil, err
	}

	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(slot.ExhibitorID) == "" {
		logger.ErrorContext(ctx, "Slot has no owner", "slot_id", slot.ID, "visitor_id", who.UserID)
		return nil, domain.ErrDataIntegrity
	}

	if !slot.HasCapacity() {
		return nil, domain.ErrSlotFull
	}

	limit := s.policy.QuotaFor(who.Classification)
	if limit != quota.Unlimited {
		active, err := s.appointments.CountActive(ctx, who.UserID)
		if err != nil {
			return nil, err
		}
		if active >= limit {
			return nil, &domain.QuotaExceededError{Classification: who.Classification, Limit: limit, Active: active}
		}
	}

	message = strings.TrimSpace(message)
	if n := utf8.RuneCountInString(message); n > MaxMessageLength {
		logger.WarnContext(ctx, "Booking message truncated", "slot_id", slotID, "runes", n, "limit", MaxMessageLength)
		message = truncate(message, MaxMessageLength)
	}

	res, err := s.slots.Reserve(ctx, repository.ReserveInput{
		SlotID:         slotID,
		VisitorID:      who.UserID,
		Message:        message,
		Classification: who.Classification,
		MaxActive:      limit,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDataIntegrity) {
			logger.ErrorContext(ctx, "Slot has no owner", "slot_id", slotID, "visitor_id", who.UserID)
		}
		return nil, err
	}

	logger.InfoContext(ctx, "Appointment booked",
		"appointment_id", res.Appointment.ID,
		"slot_id", slotID,
		"occupancy", res.Slot.CurrentBookings,
		"capacity", res.Slot.MaxBookings,
	)
	return &res.Appointment, nil
}

// QuotaSummary counts pending and confirmed appointments, the same set Book checks against.
func (s *bookingService) QuotaSummary(ctx context.Context, who domain.Identity) (*QuotaSummary, error) {
	if !who.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	active, err := s.appointments.CountActive(ctx, who.UserID)
	if err != nil {
		return nil, err
	}

	sum := &QuotaSummary{
		Classification: who.Classification,
		Limit:          s.policy.QuotaFor(who.Classification),
		Active:         active,
	}
	if sum.Limit == quota.Unlimited {
		sum.Unlimited = true
		return sum, nil
	}
	remaining := s.policy.Remaining(who.Classification, active)
	sum.Remaining = &remaining
	return sum, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
