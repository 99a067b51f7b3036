package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/diagnosis/expo-appointments/internal/http/response"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/service"
	"github.com/go-chi/chi/v5"
)

type bookReq struct {
	TimeSlotID string `json:"time_slot_id"`
	Message    string `json:"message,omitempty"`
}

type statusReq struct {
	Status      string `json:"status"`
	MeetingLink string `json:"meeting_link,omitempty"`
}

// Book creates a pending appointment for the caller.
func (h *Handlers) Book(w http.ResponseWriter, r *http.Request) {
	var req bookReq
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	req.TimeSlotID = strings.TrimSpace(req.TimeSlotID)
	if req.TimeSlotID == "" {
		response.BadRequest(w, "time_slot_id is required")
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Message)) > service.MaxMessageLength {
		response.BadRequest(w, fmt.Sprintf("message must be at most %d characters", service.MaxMessageLength))
		return
	}

	appt, err := h.booking.Book(r.Context(), identity(r), req.TimeSlotID, req.Message)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.lifecycle.Get(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// SetStatus moves an appointment along its state machine.
func (h *Handlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	st, ok := domain.ParseAppointmentStatus(req.Status)
	if !ok {
		response.BadRequest(w, "Invalid status")
		return
	}

	appt, err := h.lifecycle.SetStatus(r.Context(), service.SetStatusInput{
		AppointmentID: chi.URLParam(r, "id"),
		Status:        st,
		Actor:         identity(r),
		MeetingLink:   strings.TrimSpace(req.MeetingLink),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// ListMyAppointments lists the caller's bookings as a visitor.
func (h *Handlers) ListMyAppointments(w http.ResponseWriter, r *http.Request) {
	status, ok := parseStatusFilter(r)
	if !ok {
		response.BadRequest(w, "Invalid status parameter")
		return
	}

	appts, err := h.lifecycle.ListForVisitor(r.Context(), identity(r), status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// ListExhibitorAppointments lists bookings against the caller's slots.
func (h *Handlers) ListExhibitorAppointments(w http.ResponseWriter, r *http.Request) {
	status, ok := parseStatusFilter(r)
	if !ok {
		response.BadRequest(w, "Invalid status parameter")
		return
	}

	appts, err := h.lifecycle.ListForExhibitor(r.Context(), identity(r), status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (h *Handlers) Quota(w http.ResponseWriter, r *http.Request) {
	summary, err := h.booking.QuotaSummary(r.Context(), identity(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
