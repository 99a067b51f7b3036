package service

import (
	"context"
	"errors"
	"strings"

	"github.com/diagnosis/expo-appointments/pkg/logger"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/notify"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

// LifecycleService is the Appointment Lifecycle Manager plus the read side of appointments.
type LifecycleService interface {
	SetStatus(ctx context.Context, in SetStatusInput) (*domain.Appointment, error)
	Get(ctx context.Context, actor domain.Identity, id string) (*domain.Appointment, error)
	ListForVisitor(ctx context.Context, actor domain.Identity, status *domain.AppointmentStatus) ([]domain.Appointment, error)
	ListForExhibitor(ctx context.Context, actor domain.Identity, status *domain.AppointmentStatus) ([]domain.Appointment, error)
}

type SetStatusInput struct {
	AppointmentID string
	Status        domain.AppointmentStatus
	Actor         domain.Identity
	// MeetingLink is stored only when confirming.
	MeetingLink string
}

// casAttempts bounds retries when the status changes between read and write.
const casAttempts = 3

type lifecycleService struct {
	slots        repository.SlotRepository
	appointments repository.AppointmentRepository
	notifier     Notifier
	opts         Options
}

func NewLifecycleService(
	slots repository.SlotRepository,
	appointments repository.AppointmentRepository,
	notifier Notifier,
	opts Options,
) LifecycleService {
	return &lifecycleService{
		slots:        slots,
		appointments: appointments,
		notifier:     notifier,
		opts:         opts.withDefaults(),
	}
}

func (s *lifecycleService) SetStatus(ctx context.Context, in SetStatusInput) (appt *domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "LifecycleService.SetStatus")
	span.SetAttributes(
		attribute.String("appointment.id", in.AppointmentID),
		attribute.String("appointment.target_status", string(in.Status)),
	)
	defer func() { endSpan(span, err) }()

	if !in.Actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := s.appointments.GetAppointment(ctx, in.AppointmentID)
		if err != nil {
			return nil, err
		}
		if err := authorize(current, in.Actor.UserID, in.Status); err != nil {
			return nil, err
		}

		if current.Status == in.Status && current.Status.Terminal() {
			if in.Status == domain.StatusCancelled {
				// a previous cancel may have committed without its release
				rctx, rcancel := s.detached(ctx)
				s.reconcile(rctx, current.TimeSlotID)
				rcancel()
			}
			return current, nil
		}
		if !domain.ValidTransition(current.Status, in.Status) {
			return nil, domain.ErrInvalidTransition
		}

		var link *string
		if in.Status == domain.StatusConfirmed && strings.TrimSpace(in.MeetingLink) != "" {
			l := strings.TrimSpace(in.MeetingLink)
			link = &l
		}

		updated, err := s.appointments.UpdateStatus(ctx, repository.UpdateStatusInput{
			ID:          current.ID,
			From:        current.Status,
			To:          in.Status,
			MeetingLink: link,
		})
		if errors.Is(err, domain.ErrStatusConflict) {
			logger.DebugContext(ctx, "Appointment status changed concurrently, retrying", "appointment_id", current.ID)
			continue
		}
		if err != nil {
			return nil, err
		}

		// the status is committed; the slot adjustment must not die with the request
		actx, acancel := s.detached(ctx)
		s.afterTransition(actx, current.Status, updated)
		acancel()
		return updated, nil
	}
	return nil, domain.ErrStatusConflict
}

// authorize compares against the denormalized slot owner on the appointment.
// Cancel is open to either party; every other transition belongs to the owner.
func authorize(appt *domain.Appointment, actorID string, target domain.AppointmentStatus) error {
	if !appt.IsParty(actorID) {
		return domain.ErrNotAuthorized
	}
	if target != domain.StatusCancelled && appt.ExhibitorID != actorID {
		return domain.ErrNotAuthorized
	}
	return nil
}

func (s *lifecycleService) afterTransition(ctx context.Context, from domain.AppointmentStatus, appt *domain.Appointment) {
	logger.InfoContext(ctx, "Appointment status changed",
		"appointment_id", appt.ID,
		"from", from,
		"to", appt.Status,
	)

	switch appt.Status {
	case domain.StatusCancelled:
		slot, err := s.slots.Release(ctx, appt.TimeSlotID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to release slot after cancellation",
				"slot_id", appt.TimeSlotID, "appointment_id", appt.ID, "error", err)
			slot = s.reconcile(ctx, appt.TimeSlotID)
		}
		s.notifier.Notify(ctx, *appt, slot, notify.KindCancelled)

	case domain.StatusConfirmed:
		slot, err := s.slots.GetSlot(ctx, appt.TimeSlotID)
		if err != nil {
			logger.WarnContext(ctx, "Notification sent without slot details", "slot_id", appt.TimeSlotID, "error", err)
			slot = nil
		}
		s.notifier.Notify(ctx, *appt, slot, notify.KindConfirmed)
	}
}

func (s *lifecycleService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
}

// reconcile is best effort; the counter stays conservative (too high) when it fails.
func (s *lifecycleService) reconcile(ctx context.Context, slotID string) *domain.TimeSlot {
	slot, err := s.slots.Reconcile(ctx, slotID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to reconcile slot occupancy", "slot_id", slotID, "error", err)
		return nil
	}
	return slot
}

func (s *lifecycleService) Get(ctx context.Context, actor domain.Identity, id string) (*domain.Appointment, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	appt, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.IsParty(actor.UserID) {
		return nil, domain.ErrNotAuthorized
	}
	return appt, nil
}

func (s *lifecycleService) ListForVisitor(ctx context.Context, actor domain.Identity, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.appointments.ListByVisitor(ctx, actor.UserID, status)
}

func (s *lifecycleService) ListForExhibitor(ctx context.Context, actor domain.Identity, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.appointments.ListByExhibitor(ctx, actor.UserID, status)
}
