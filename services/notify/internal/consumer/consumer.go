// Package consumer turns appointment notification events into emails.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/expo-appointments/pkg/events"
	"github.com/diagnosis/expo-appointments/pkg/logger"
	"github.com/diagnosis/expo-appointments/pkg/mailer"
)

type Consumer struct {
	directory Directory
	mailer    mailer.Service
	timeout   time.Duration
}

func New(directory Directory, m mailer.Service) *Consumer {
	return &Consumer{directory: directory, mailer: m, timeout: 15 * time.Second}
}

// HandleMessage is the bus callback. Failures are logged; redelivery is not attempted.
func (c *Consumer) HandleMessage(msg *events.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.Handle(ctx, msg.Data); err != nil {
		logger.Error("Failed to deliver appointment notification",
			"subject", msg.Subject,
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// Handle decodes one event and mails its recipients: the visitor on confirmation,
// both parties on cancellation.
func (c *Consumer) Handle(ctx context.Context, data []byte) error {
	var ev events.AppointmentNotificationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	var recipients []string
	switch ev.Kind {
	case "confirmed":
		recipients = []string{ev.VisitorID}
	case "cancelled":
		recipients = []string{ev.VisitorID, ev.ExhibitorID}
	default:
		logger.Debug("Ignoring appointment event", "kind", ev.Kind, "appointment_id", ev.AppointmentID)
		return nil
	}

	contacts, err := c.directory.Lookup(ctx, ev.VisitorID, ev.ExhibitorID)
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range recipients {
		to, ok := contacts[id]
		if !ok || to.Email == "" {
			logger.Warn("No contact for notification recipient", "user_id", id, "appointment_id", ev.AppointmentID)
			continue
		}
		n := mailer.Notice{
			ToEmail:     to.Email,
			ToName:      to.Name,
			Kind:        ev.Kind,
			Counterpart: counterpartName(contacts, ev, id),
			Date:        ev.Date,
			StartTime:   ev.StartTime,
			EndTime:     ev.EndTime,
			Modality:    ev.Modality,
			Location:    ev.Location,
			MeetingLink: ev.MeetingLink,
		}
		if err := c.mailer.SendAppointmentNotice(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("mail %s: %w", id, err))
			continue
		}
		logger.Info("Appointment notice sent", "appointment_id", ev.AppointmentID, "kind", ev.Kind, "user_id", id)
	}
	return errors.Join(errs...)
}

func counterpartName(contacts map[string]Contact, ev events.AppointmentNotificationEvent, recipient string) string {
	other := ev.ExhibitorID
	if recipient == ev.ExhibitorID {
		other = ev.VisitorID
	}
	return contacts[other].Name
}
