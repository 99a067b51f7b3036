package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/diagnosis/expo-appointments/internal/http/response"
	"github.com/diagnosis/expo-appointments/pkg/logger"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
)

// writeServiceError maps the core error kinds onto HTTP. Anything unrecognised is a 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *domain.QuotaExceededError

	switch {
	case errors.As(err, &quotaErr):
		response.WriteErrorWithDetails(w, http.StatusTooManyRequests,
			"Active appointment quota reached", response.CodeQuotaExceeded,
			map[string]any{
				"classification": quotaErr.Classification,
				"limit":          quotaErr.Limit,
				"active":         quotaErr.Active,
			})
	case errors.Is(err, domain.ErrQuotaExceeded):
		response.WriteError(w, http.StatusTooManyRequests, "Active appointment quota reached", response.CodeQuotaExceeded)
	case errors.Is(err, domain.ErrUnauthenticated):
		response.Unauthenticated(w, "Authentication required")
	case errors.Is(err, domain.ErrDuplicateBooking):
		response.Conflict(w, "You already hold a booking for this slot", response.CodeDuplicateBooking)
	case errors.Is(err, domain.ErrSlotNotFound):
		response.NotFound(w, "Slot not found", response.CodeSlotNotFound)
	case errors.Is(err, domain.ErrAppointmentNotFound):
		response.NotFound(w, "Appointment not found", response.CodeAppointmentNotFound)
	case errors.Is(err, domain.ErrSlotFull):
		response.Conflict(w, "Slot is fully booked", response.CodeSlotFull)
	case errors.Is(err, domain.ErrSlotInUse):
		response.Conflict(w, "Slot still has bookings", response.CodeSlotInUse)
	case errors.Is(err, domain.ErrNotAuthorized):
		response.Forbidden(w, "Not allowed to act on this resource")
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrStatusConflict):
		response.Conflict(w, "Status change not allowed", response.CodeInvalidTransition)
	case errors.Is(err, domain.ErrInvalidSlot):
		response.BadRequest(w, strings.TrimPrefix(err.Error(), domain.ErrInvalidSlot.Error()+": "))
	case errors.Is(err, domain.ErrStoreUnavailable):
		logger.WarnContext(r.Context(), "Store unavailable", "error", err)
		response.Unavailable(w, "Service temporarily unavailable, retry shortly", h.retryAfter)
	case errors.Is(err, domain.ErrDataIntegrity):
		logger.ErrorContext(r.Context(), "Data integrity violation", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal error")
	default:
		logger.ErrorContext(r.Context(), "Unhandled service error", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal error")
	}
}
