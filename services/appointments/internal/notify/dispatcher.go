// Package notify delivers appointment lifecycle notifications off the request
// path. Notify never blocks and never returns an error to the caller.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diagnosis/expo-appointments/pkg/events"
	"github.com/diagnosis/expo-appointments/pkg/logger"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
)

type Kind string

const (
	KindConfirmed Kind = "confirmed"
	KindCancelled Kind = "cancelled"
)

type Options struct {
	Workers        int
	QueueSize      int
	PublishTimeout time.Duration
}

// Dispatcher is a fixed pool of workers draining a bounded queue into a publisher.
type Dispatcher struct {
	publisher events.Publisher
	workers   int
	timeout   time.Duration
	jobs      chan job

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
	now     func() time.Time
}

type job struct {
	ctx   context.Context
	event events.AppointmentNotificationEvent
}

func NewDispatcher(publisher events.Publisher, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &Dispatcher{
		publisher: publisher,
		workers:   opts.Workers,
		timeout:   opts.PublishTimeout,
		jobs:      make(chan job, opts.QueueSize),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	logger.Debug("notify worker started", "worker", id)
	for {
		select {
		case j, ok := <-d.jobs:
			if !ok {
				return
			}
			d.publish(j)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) publish(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	subject := events.SubjectFor(j.event.Kind)
	if err := d.publisher.Publish(ctx, subject, j.event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish appointment notification",
			"appointment_id", j.event.AppointmentID,
			"kind", j.event.Kind,
			"error", err,
		)
	}
}

// Notify enqueues a notification for appt. slot may be nil when it could not be loaded;
// the event then carries no temporal info. A full queue drops the notification.
func (d *Dispatcher) Notify(ctx context.Context, appt domain.Appointment, slot *domain.TimeSlot, kind Kind) {
	ev := events.AppointmentNotificationEvent{
		AppointmentID: appt.ID,
		Kind:          string(kind),
		VisitorID:     appt.VisitorID,
		ExhibitorID:   appt.ExhibitorID,
		TimeSlotID:    appt.TimeSlotID,
		MeetingLink:   appt.MeetingLink,
		OccurredAt:    d.now(),
	}
	if slot != nil {
		ev.Date = slot.Date
		ev.StartTime = slot.StartTime
		ev.EndTime = slot.EndTime
		ev.Modality = string(slot.Modality)
		ev.Location = slot.Location
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, ev, "dispatcher stopped")
		return
	}

	// the request context is about to end; keep its values, drop its deadline
	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), event: ev}:
	default:
		d.drop(ctx, ev, "queue full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, ev events.AppointmentNotificationEvent, reason string) {
	d.dropped.Add(1)
	logger.WarnContext(ctx, "Dropped appointment notification",
		"appointment_id", ev.AppointmentID,
		"kind", ev.Kind,
		"reason", reason,
	)
}

// Dropped reports how many notifications were discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Stop rejects new notifications, lets the workers drain what is queued and waits for them.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
