package domain

import (
	"strings"
	"time"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	switch st := AppointmentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, true
	case "canceled":
		return StatusCancelled, true
	default:
		return "", false
	}
}

// Active statuses consume quota.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Appointment struct {
	ID          string            `json:"id"`
	TimeSlotID  string            `json:"time_slot_id"`
	ExhibitorID string            `json:"exhibitor_id"`
	VisitorID   string            `json:"visitor_id"`
	Status      AppointmentStatus `json:"status"`
	Message     string            `json:"message,omitempty"`
	MeetingLink string            `json:"meeting_link,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsParty reports whether userID is the visitor or the slot owner.
func (a *Appointment) IsParty(userID string) bool {
	return userID != "" && (a.VisitorID == userID || a.ExhibitorID == userID)
}

// Identity is the externally resolved requester.
type Identity struct {
	UserID         string
	Classification string
}

func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != ""
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// ValidTransition reports whether from -> to is an edge of the appointment state machine.
func ValidTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
