package handlers

import (
	"net/http"
	"strings"

	"github.com/diagnosis/expo-appointments/internal/http/response"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/service"
	"github.com/go-chi/chi/v5"
)

// ListSlots lists an exhibitor's published slots. exhibitor_id is required.
func (h *Handlers) ListSlots(w http.ResponseWriter, r *http.Request) {
	exhibitorID := strings.TrimSpace(r.URL.Query().Get("exhibitor_id"))
	if exhibitorID == "" {
		response.BadRequest(w, "exhibitor_id is required")
		return
	}

	slots, err := h.slots.List(r.Context(), exhibitorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (h *Handlers) GetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := h.slots.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// CreateSlot publishes a slot for the caller (or, for admins, on behalf of exhibitor_id).
func (h *Handlers) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSlotInput
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	slot, err := h.slots.Create(r.Context(), identity(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, slot)
}

func (h *Handlers) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.slots.Delete(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReconcileSlot recomputes the booking counter from the slot's appointments.
func (h *Handlers) ReconcileSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := h.slots.Reconcile(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}
