package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/diagnosis/expo-appointments/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteErrorWithDetails(w, statusCode, message, code, nil)
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

// Error codes
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeRateLimit           = "RATE_LIMIT_EXCEEDED"
	CodeBookingInFlight     = "BOOKING_IN_PROGRESS"
	CodeDuplicateBooking    = "DUPLICATE_BOOKING"
	CodeSlotNotFound        = "SLOT_NOT_FOUND"
	CodeAppointmentNotFound = "APPOINTMENT_NOT_FOUND"
	CodeSlotFull            = "SLOT_FULL"
	CodeSlotInUse           = "SLOT_IN_USE"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthenticated(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthenticated)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message, code string) {
	WriteError(w, http.StatusNotFound, message, code)
}

func Conflict(w http.ResponseWriter, message, code string) {
	WriteError(w, http.StatusConflict, message, code)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

// Unavailable answers 503 and tells the client when to retry.
func Unavailable(w http.ResponseWriter, message string, retryAfter time.Duration) {
	secs := int(retryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, http.StatusServiceUnavailable, message, CodeStoreUnavailable)
}
