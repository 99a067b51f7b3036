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
	"github.com/diagnosis/expo-appointments/pkg/mailer"
	mw "github.com/diagnosis/expo-appointments/pkg/middleware"
	"github.com/diagnosis/expo-appointments/services/notify/internal/consumer"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	bus, err := connectSubscriber(cfg.Events)
	if err != nil {
		logger.Error("Failed to connect to event bus", "bus", cfg.Events.Bus, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	c := consumer.New(consumer.NewPostgresDirectory(pool), mailer.New(cfg.Email))
	if err := bus.QueueSubscribe(events.AppointmentAll, "notify", c.HandleMessage); err != nil {
		logger.Error("Failed to subscribe", "subject", events.AppointmentAll, "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Logging)
	r.Use(mw.Health(map[string]mw.Check{"database": pool.Ping}))

	srv := &http.Server{
		Addr:         ":8086",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down notify service...")

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Notify service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting notify service", "port", "8086", "bus", cfg.Events.Bus, "subject", events.AppointmentAll)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
}

func connectSubscriber(cfg config.EventsConfig) (events.Subscriber, error) {
	if cfg.Bus == "amqp" {
		return events.NewAMQPSubscriber(cfg.AMQPURL, cfg.AMQPExchange)
	}
	return events.NewNATSEventBus(cfg.NATSURL)
}
