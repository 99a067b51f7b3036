package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/expo-appointments/pkg/logger"
	mw "github.com/diagnosis/expo-appointments/pkg/middleware"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/service"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	slots     service.SlotService
	booking   service.BookingService
	lifecycle service.LifecycleService
	// retryAfter is advertised on 503 responses.
	retryAfter time.Duration
}

func New(slots service.SlotService, booking service.BookingService, lifecycle service.LifecycleService) *Handlers {
	return &Handlers{
		slots:      slots,
		booking:    booking,
		lifecycle:  lifecycle,
		retryAfter: 2 * time.Second,
	}
}

type RouteConfig struct {
	JWTSecret   string
	RateLimiter *mw.RateLimiter
	Locks       mw.LockStore
	LockTTL     time.Duration
}

// Routes returns the /v1 API.
func (h *Handlers) Routes(cfg RouteConfig) chi.Router {
	r := chi.NewRouter()

	r.Get("/slots", h.ListSlots)
	r.Get("/slots/{id}", h.GetSlot)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireIdentity(cfg.JWTSecret))

		r.Post("/slots", h.CreateSlot)
		r.Delete("/slots/{id}", h.DeleteSlot)
		r.Post("/slots/{id}/reconcile", h.ReconcileSlot)

		r.With(bookingGuards(cfg)...).Post("/appointments", h.Book)
		r.Get("/appointments/{id}", h.GetAppointment)
		r.Patch("/appointments/{id}/status", h.SetStatus)

		r.Get("/me/appointments", h.ListMyAppointments)
		r.Get("/me/exhibitor/appointments", h.ListExhibitorAppointments)
		r.Get("/me/quota", h.Quota)
	})

	return r
}

func bookingGuards(cfg RouteConfig) []func(http.Handler) http.Handler {
	var guards []func(http.Handler) http.Handler
	if cfg.RateLimiter != nil {
		guards = append(guards, cfg.RateLimiter.Middleware())
	}
	if cfg.Locks != nil {
		guards = append(guards, mw.SessionGuard(cfg.Locks, cfg.LockTTL))
	}
	return guards
}

// identity resolves the requester from verified claims; the zero Identity is unauthenticated.
func identity(r *http.Request) domain.Identity {
	c := mw.Claims(r)
	if c == nil {
		return domain.Identity{}
	}
	return domain.Identity{UserID: c.Sub, Classification: c.Classification()}
}

func parseStatusFilter(r *http.Request) (*domain.AppointmentStatus, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, true
	}
	st, ok := domain.ParseAppointmentStatus(raw)
	if !ok {
		return nil, false
	}
	return &st, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
