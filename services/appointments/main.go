package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/expo-appointments/pkg/config"
	"github.com/diagnosis/expo-appointments/pkg/database"
	"github.com/diagnosis/expo-appointments/pkg/events"
	"github.com/diagnosis/expo-appointments/pkg/logger"
	mw "github.com/diagnosis/expo-appointments/pkg/middleware"
	"github.com/diagnosis/expo-appointments/pkg/telemetry"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/fixture"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/handlers"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/notify"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/quota"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/repository"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup("appointments", cfg.Telemetry)
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	// Store
	var (
		slots        repository.SlotRepository
		appointments repository.AppointmentRepository
		checks       = map[string]mw.Check{}
	)
	switch cfg.Booking.StoreDriver {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		mem := repository.NewMemoryStore()
		slots, appointments = mem, mem
	default:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		checks["database"] = pool.Ping
		slots = repository.NewSlotRepository(pool)
		appointments = repository.NewAppointmentRepository(pool)
	}

	// Quota policy
	policy := quota.Default()
	if cfg.Booking.QuotaPolicyFile != "" {
		p, err := quota.LoadFile(cfg.Booking.QuotaPolicyFile)
		if err != nil {
			logger.Error("Failed to load quota policy", "path", cfg.Booking.QuotaPolicyFile, "error", err)
			os.Exit(1)
		}
		policy = p
	}

	loc := cfg.Booking.Location()
	if cfg.Booking.SeedDemoData {
		seeded, err := fixture.Seed(ctx, slots, time.Now(), loc)
		if err != nil {
			logger.Error("Failed to seed demo slots", "error", err)
			os.Exit(1)
		}
		logger.Info("Seeded demo slots", "count", len(seeded))
	}

	// Event bus
	publisher := connectPublisher(cfg.Events)
	defer publisher.Close()

	dispatcher := notify.NewDispatcher(publisher, notify.Options{
		Workers:   cfg.Booking.NotifyWorkers,
		QueueSize: cfg.Booking.NotifyQueueSize,
	})
	// workers outlive the signal context so Stop can drain the queue
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	// Services
	opts := service.Options{StoreTimeout: cfg.Booking.StoreTimeout, Location: loc}
	h := handlers.New(
		service.NewSlotService(slots, opts),
		service.NewBookingService(slots, appointments, policy, opts),
		service.NewLifecycleService(slots, appointments, dispatcher, opts),
	)

	// Booking guards
	var locks mw.LockStore = mw.NewMemoryLocks()
	if cfg.Redis.URL != "" {
		rdb, err := newRedis(cfg.Redis)
		if err != nil {
			logger.Error("Invalid redis configuration", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		locks = mw.FallbackLocks{Primary: mw.NewRedisLocks(rdb), Fallback: locks}
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("appointments"))
	r.Use(mw.Logging)
	r.Use(mw.Health(checks))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Mount("/v1", h.Routes(handlers.RouteConfig{
		JWTSecret:   cfg.Auth.JWTSecret,
		RateLimiter: mw.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst),
		Locks:       locks,
		LockTTL:     cfg.Booking.SessionLockTTL,
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(r, "appointments"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down appointments service...")

		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Appointments service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting appointments service", "port", cfg.Server.Port, "store", cfg.Booking.StoreDriver, "events", cfg.Events.Bus)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Appointments service error", "error", err)
		os.Exit(1)
	}
}

// connectPublisher falls back to logging events when the configured broker is unreachable.
func connectPublisher(cfg config.EventsConfig) events.Publisher {
	switch cfg.Bus {
	case "nats":
		bus, err := events.NewNATSEventBus(cfg.NATSURL)
		if err == nil {
			return bus
		}
		logger.Error("Failed to connect to NATS, logging events instead", "error", err)
	case "amqp":
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err == nil {
			return pub
		}
		logger.Error("Failed to connect to AMQP, logging events instead", "error", err)
	}
	return events.LogPublisher{}
}

func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	return redis.NewClient(opts), nil
}
