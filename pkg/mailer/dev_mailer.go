package mailer

import (
	"context"
	"sync"

	"github.com/diagnosis/expo-appointments/pkg/logger"
)

// DevMailer logs notices instead of sending them and keeps the last few for inspection.
type DevMailer struct {
	mu   sync.Mutex
	sent []Notice
}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendAppointmentNotice(ctx context.Context, n Notice) error {
	text, _ := render(n)
	logger.InfoContext(ctx, "[DEV MAIL] Appointment notice",
		"to", n.ToEmail,
		"subject", subject(n),
		"body", text,
	)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	if len(d.sent) > 100 {
		d.sent = d.sent[1:]
	}
	return nil
}

func (d *DevMailer) Sent() []Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notice(nil), d.sent...)
}
