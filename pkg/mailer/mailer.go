package mailer

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/diagnosis/expo-appointments/pkg/config"
	"github.com/diagnosis/expo-appointments/pkg/logger"
)

// Service delivers appointment notices to one recipient.
type Service interface {
	SendAppointmentNotice(ctx context.Context, n Notice) error
}

// Notice is one rendered-to-be email about an appointment.
type Notice struct {
	ToEmail     string
	ToName      string
	Kind        string // confirmed | cancelled
	Counterpart string
	Date        string
	StartTime   string
	EndTime     string
	Modality    string
	Location    string
	MeetingLink string
}

// New picks a mailer from config: dev mode logs, a MailerSend key wins over SMTP.
func New(cfg config.EmailConfig) Service {
	switch {
	case cfg.DevMode:
		logger.Info("Mailer running in dev mode")
		return NewDevMailer()
	case cfg.MailerSendKey != "":
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	default:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}

func subject(n Notice) string {
	switch n.Kind {
	case "confirmed":
		return fmt.Sprintf("Appointment confirmed: %s %s", n.Date, n.StartTime)
	case "cancelled":
		return fmt.Sprintf("Appointment cancelled: %s %s", n.Date, n.StartTime)
	default:
		return fmt.Sprintf("Appointment update: %s %s", n.Date, n.StartTime)
	}
}

func render(n Notice) (text, htmlBody string) {
	var t strings.Builder
	fmt.Fprintf(&t, "Your appointment on %s from %s to %s is %s.\n", n.Date, n.StartTime, n.EndTime, n.Kind)
	if n.Counterpart != "" {
		fmt.Fprintf(&t, "With: %s\n", n.Counterpart)
	}
	if n.Modality != "" {
		fmt.Fprintf(&t, "Format: %s\n", n.Modality)
	}
	if n.Location != "" {
		fmt.Fprintf(&t, "Where: %s\n", n.Location)
	}
	if n.MeetingLink != "" && n.Kind == "confirmed" {
		fmt.Fprintf(&t, "Join: %s\n", n.MeetingLink)
	}

	var h strings.Builder
	fmt.Fprintf(&h, "<h2>Appointment %s</h2>\n", html.EscapeString(n.Kind))
	if n.ToName != "" {
		fmt.Fprintf(&h, "<p>Hi %s,</p>\n", html.EscapeString(n.ToName))
	}
	fmt.Fprintf(&h, "<p>Your appointment on <strong>%s</strong> from %s to %s is <strong>%s</strong>.</p>\n",
		html.EscapeString(n.Date), html.EscapeString(n.StartTime), html.EscapeString(n.EndTime), html.EscapeString(n.Kind))
	if n.Counterpart != "" {
		fmt.Fprintf(&h, "<p>With: %s</p>\n", html.EscapeString(n.Counterpart))
	}
	if n.Location != "" {
		fmt.Fprintf(&h, "<p>Where: %s</p>\n", html.EscapeString(n.Location))
	}
	if n.MeetingLink != "" && n.Kind == "confirmed" {
		link := html.EscapeString(n.MeetingLink)
		fmt.Fprintf(&h, `<p><a href="%s" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Join meeting</a></p>`+"\n", link)
	}
	return t.String(), h.String()
}
