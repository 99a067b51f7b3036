package service

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/expo-appointments/pkg/auth"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/diagnosis/expo-appointments/services/appointments")

// Notifier is the Notification Dispatcher as seen by the lifecycle manager.
type Notifier interface {
	Notify(ctx context.Context, appt domain.Appointment, slot *domain.TimeSlot, kind notify.Kind)
}

type Options struct {
	// StoreTimeout bounds every service call's store round-trips.
	StoreTimeout time.Duration
	Location     *time.Location
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func endSpan(span trace.Span, err error) {
	if err != nil && !isExpected(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// isExpected reports caller-facing rejections that are not faults of this service.
func isExpected(err error) bool {
	for _, e := range []error{
		domain.ErrUnauthenticated, domain.ErrDuplicateBooking, domain.ErrSlotNotFound,
		domain.ErrSlotFull, domain.ErrQuotaExceeded, domain.ErrNotAuthorized,
		domain.ErrInvalidTransition, domain.ErrAppointmentNotFound, domain.ErrInvalidSlot,
		domain.ErrSlotInUse,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func canPublishSlots(classification string) bool {
	switch classification {
	case auth.RoleExhibitor, auth.RolePartner, auth.RoleAdmin:
		return true
	}
	return false
}
