package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/notify"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/quota"
	"github.com/diagnosis/expo-appointments/services/appointments/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentNotice struct {
	appt domain.Appointment
	slot *domain.TimeSlot
	kind notify.Kind
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (n *fakeNotifier) Notify(_ context.Context, appt domain.Appointment, slot *domain.TimeSlot, kind notify.Kind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{appt: appt, slot: slot, kind: kind})
}

func (n *fakeNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.kind)
	}
	return out
}

// flakySlots fails Release on demand to exercise the reconcile path.
type flakySlots struct {
	repository.SlotRepository
	failRelease bool
}

func (f *flakySlots) Release(ctx context.Context, slotID string) (*domain.TimeSlot, error) {
	if f.failRelease {
		return nil, fmt.Errorf("release: %w", domain.ErrStoreUnavailable)
	}
	return f.SlotRepository.Release(ctx, slotID)
}

type harness struct {
	store     *repository.MemoryStore
	slots     *flakySlots
	notifier  *fakeNotifier
	slotSvc   SlotService
	booking   BookingService
	lifecycle LifecycleService
}

var testNow = time.Date(2030, 4, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	slots := &flakySlots{SlotRepository: store}
	n := &fakeNotifier{}
	opts := Options{StoreTimeout: time.Second, Location: time.UTC, Now: func() time.Time { return testNow }}
	policy := quota.NewPolicy(map[string]int{
		"free":      2,
		"premium":   5,
		"vip":       quota.Unlimited,
		"exhibitor": 10,
	})
	return &harness{
		store:     store,
		slots:     slots,
		notifier:  n,
		slotSvc:   NewSlotService(slots, opts),
		booking:   NewBookingService(slots, store, policy, opts),
		lifecycle: NewLifecycleService(slots, store, n, opts),
	}
}

var exhibitor = domain.Identity{UserID: "ex-1", Classification: "exhibitor"}

func visitor(id, tier string) domain.Identity {
	return domain.Identity{UserID: id, Classification: tier}
}

func (h *harness) slot(t *testing.T, capacity int) *domain.TimeSlot {
	t.Helper()
	s, err := h.slotSvc.Create(context.Background(), exhibitor, CreateSlotInput{
		Bounds:      domain.SlotBounds{Date: "2030-05-01", StartTime: "10:00", EndTime: "10:30"},
		MaxBookings: capacity,
		Modality:    "virtual",
	})
	require.NoError(t, err)
	return s
}

func (h *harness) occupancy(t *testing.T, slotID string) (int, bool) {
	t.Helper()
	s, err := h.store.GetSlot(context.Background(), slotID)
	require.NoError(t, err)
	return s.CurrentBookings, s.Available
}

func (h *harness) setStatus(id string, st domain.AppointmentStatus, actor domain.Identity) (*domain.Appointment, error) {
	return h.lifecycle.SetStatus(context.Background(), SetStatusInput{AppointmentID: id, Status: st, Actor: actor})
}

func TestNoOverbooking(t *testing.T) {
	h := newHarness(t)
	const k, m = 3, 17
	slot := h.slot(t, k)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		full int
	)
	for i := 0; i < k+m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.booking.Book(context.Background(), visitor(fmt.Sprintf("v-%d", i), "vip"), slot.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrSlotFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, k, ok)
	assert.Equal(t, m, full)

	appts, err := h.store.ListByExhibitor(context.Background(), exhibitor.UserID, nil)
	require.NoError(t, err)
	assert.Len(t, appts, k)
	n, available := h.occupancy(t, slot.ID)
	assert.Equal(t, k, n)
	assert.False(t, available)
}

func TestQuotaEnforcement(t *testing.T) {
	h := newHarness(t)
	v := visitor("v-1", "free")

	var booked []*domain.Appointment
	for i := 0; i < 2; i++ {
		a, err := h.booking.Book(context.Background(), v, h.slot(t, 5).ID, "")
		require.NoError(t, err)
		booked = append(booked, a)
	}

	target := h.slot(t, 5)
	_, err := h.booking.Book(context.Background(), v, target.ID, "")
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	var qe *domain.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "free", qe.Classification)
	assert.Equal(t, 2, qe.Limit)

	_, err = h.setStatus(booked[0].ID, domain.StatusCancelled, v)
	require.NoError(t, err)

	a, err := h.booking.Book(context.Background(), v, target.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, a.Status)
}

func TestConfirmedAppointmentsCountTowardQuota(t *testing.T) {
	h := newHarness(t)
	v := visitor("v-1", "free")

	for i := 0; i < 2; i++ {
		a, err := h.booking.Book(context.Background(), v, h.slot(t, 5).ID, "")
		require.NoError(t, err)
		_, err = h.setStatus(a.ID, domain.StatusConfirmed, exhibitor)
		require.NoError(t, err)
	}
	_, err := h.booking.Book(context.Background(), v, h.slot(t, 5).ID, "")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestCompletedAppointmentsFreeQuota(t *testing.T) {
	h := newHarness(t)
	v := visitor("v-1", "free")

	a, err := h.booking.Book(context.Background(), v, h.slot(t, 5).ID, "")
	require.NoError(t, err)
	_, err = h.booking.Book(context.Background(), v, h.slot(t, 5).ID, "")
	require.NoError(t, err)

	_, err = h.setStatus(a.ID, domain.StatusConfirmed, exhibitor)
	require.NoError(t, err)
	_, err = h.setStatus(a.ID, domain.StatusCompleted, exhibitor)
	require.NoError(t, err)

	_, err = h.booking.Book(context.Background(), v, h.slot(t, 5).ID, "")
	assert.NoError(t, err)
}

func TestUnknownClassificationHasZeroQuota(t *testing.T) {
	h := newHarness(t)
	_, err := h.booking.Book(context.Background(), visitor("v-1", "mystery"), h.slot(t, 1).ID, "")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestNoDuplicateBooking(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 3)
	v := visitor("v-1", "premium")

	first, err := h.booking.Book(context.Background(), v, slot.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", first.Message)

	_, err = h.booking.Book(context.Background(), v, slot.ID, "")
	assert.ErrorIs(t, err, domain.ErrDuplicateBooking)

	_, err = h.setStatus(first.ID, domain.StatusCancelled, v)
	require.NoError(t, err)
	_, err = h.booking.Book(context.Background(), v, slot.ID, "")
	assert.NoError(t, err, "a cancelled booking does not block rebooking")
}

func TestBookTruncatesLongMessage(t *testing.T) {
	h := newHarness(t)
	msg := "  " + strings.Repeat("x", MaxMessageLength+20) + "  "

	a, err := h.booking.Book(context.Background(), visitor("v-1", "premium"), h.slot(t, 1).ID, msg)
	require.NoError(t, err)
	assert.Len(t, a.Message, MaxMessageLength)
}

func TestBookPreconditionOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.booking.Book(context.Background(), domain.Identity{}, "missing", "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = h.booking.Book(context.Background(), visitor("v-1", "mystery"), "missing", "")
	assert.ErrorIs(t, err, domain.ErrSlotNotFound, "slot lookup precedes the quota check")

	orphan := h.store.PutSlot(domain.TimeSlot{MaxBookings: 1, Date: "2030-05-01", StartTime: "12:00", EndTime: "12:30"})
	_, err = h.booking.Book(context.Background(), visitor("v-1", "premium"), orphan.ID, "")
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)
	assert.False(t, domain.Retryable(err))

	full := h.slot(t, 1)
	_, err = h.booking.Book(context.Background(), visitor("v-2", "premium"), full.ID, "")
	require.NoError(t, err)
	_, err = h.booking.Book(context.Background(), visitor("v-3", "mystery"), full.ID, "")
	assert.ErrorIs(t, err, domain.ErrSlotFull, "capacity is checked before quota")
}

func TestCancellationRestoresCapacity(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 2)

	a, err := h.booking.Book(context.Background(), visitor("v-1", "premium"), slot.ID, "")
	require.NoError(t, err)
	_, err = h.booking.Book(context.Background(), visitor("v-2", "premium"), slot.ID, "")
	require.NoError(t, err)

	n, available := h.occupancy(t, slot.ID)
	require.Equal(t, 2, n)
	require.False(t, available)

	_, err = h.setStatus(a.ID, domain.StatusCancelled, exhibitor)
	require.NoError(t, err)

	n, available = h.occupancy(t, slot.ID)
	assert.Equal(t, 1, n)
	assert.True(t, available)
}

func TestIdempotentCancel(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 3)
	v := visitor("v-1", "premium")

	a, err := h.booking.Book(context.Background(), v, slot.ID, "")
	require.NoError(t, err)
	_, err = h.booking.Book(context.Background(), visitor("v-2", "premium"), slot.ID, "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := h.setStatus(a.ID, domain.StatusCancelled, v)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, got.Status)
	}

	n, _ := h.occupancy(t, slot.ID)
	assert.Equal(t, 1, n, "second cancel must not decrement again")
	assert.Equal(t, []notify.Kind{notify.KindCancelled}, h.notifier.kinds())
}

func TestVisitorCannotConfirmOwnAppointment(t *testing.T) {
	h := newHarness(t)
	v := visitor("v-1", "premium")
	a, err := h.booking.Book(context.Background(), v, h.slot(t, 1).ID, "")
	require.NoError(t, err)

	_, err = h.setStatus(a.ID, domain.StatusConfirmed, v)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = h.setStatus(a.ID, domain.StatusCancelled, visitor("stranger", "premium"))
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = h.setStatus(a.ID, domain.StatusConfirmed, domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestInvalidTransitions(t *testing.T) {
	h := newHarness(t)
	v := visitor("v-1", "premium")
	a, err := h.booking.Book(context.Background(), v, h.slot(t, 1).ID, "")
	require.NoError(t, err)

	_, err = h.setStatus(a.ID, domain.StatusCompleted, exhibitor)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// only terminal statuses are idempotent
	_, err = h.setStatus(a.ID, domain.StatusPending, exhibitor)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.setStatus(a.ID, domain.StatusConfirmed, exhibitor)
	require.NoError(t, err)
	_, err = h.setStatus(a.ID, domain.StatusConfirmed, exhibitor)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.setStatus(a.ID, domain.StatusCancelled, v)
	require.NoError(t, err)
	_, err = h.setStatus(a.ID, domain.StatusConfirmed, exhibitor)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.setStatus("missing", domain.StatusConfirmed, exhibitor)
	assert.ErrorIs(t, err, domain.ErrAppointmentNotFound)
}

func TestConfirmAttachesMeetingLinkAndNotifies(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 1)
	a, err := h.booking.Book(context.Background(), visitor("v-1", "premium"), slot.ID, "")
	require.NoError(t, err)

	got, err := h.lifecycle.SetStatus(context.Background(), SetStatusInput{
		AppointmentID: a.ID,
		Status:        domain.StatusConfirmed,
		Actor:         exhibitor,
		MeetingLink:   " https://meet.example.com/x ",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example.com/x", got.MeetingLink)

	n, _ := h.occupancy(t, slot.ID)
	assert.Equal(t, 1, n, "confirmation does not consume capacity")

	require.Len(t, h.notifier.sent, 1)
	sent := h.notifier.sent[0]
	assert.Equal(t, notify.KindConfirmed, sent.kind)
	require.NotNil(t, sent.slot)
	assert.Equal(t, "2030-05-01", sent.slot.Date)
}

func TestReleaseFailureIsReconciled(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 2)
	v := visitor("v-1", "premium")

	a, err := h.booking.Book(context.Background(), v, slot.ID, "")
	require.NoError(t, err)
	_, err = h.booking.Book(context.Background(), visitor("v-2", "premium"), slot.ID, "")
	require.NoError(t, err)

	h.slots.failRelease = true
	got, err := h.setStatus(a.ID, domain.StatusCancelled, v)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)

	n, available := h.occupancy(t, slot.ID)
	assert.Equal(t, 1, n)
	assert.True(t, available)
}

// cancelOnUpdate cancels the caller's context as soon as the status write lands.
type cancelOnUpdate struct {
	repository.AppointmentRepository
	cancel context.CancelFunc
}

func (c *cancelOnUpdate) UpdateStatus(ctx context.Context, in repository.UpdateStatusInput) (*domain.Appointment, error) {
	a, err := c.AppointmentRepository.UpdateStatus(ctx, in)
	c.cancel()
	return a, err
}

func TestCancelReleasesSeatAfterCallerGoesAway(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 1)
	v := visitor("v-1", "premium")

	a, err := h.booking.Book(context.Background(), v, slot.ID, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := Options{StoreTimeout: time.Second, Location: time.UTC, Now: func() time.Time { return testNow }}
	lifecycle := NewLifecycleService(h.slots, &cancelOnUpdate{AppointmentRepository: h.store, cancel: cancel}, h.notifier, opts)

	got, err := lifecycle.SetStatus(ctx, SetStatusInput{AppointmentID: a.ID, Status: domain.StatusCancelled, Actor: v})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	require.Error(t, ctx.Err())

	n, available := h.occupancy(t, slot.ID)
	assert.Equal(t, 0, n)
	assert.True(t, available)

	_, err = h.booking.Book(context.Background(), visitor("v-2", "premium"), slot.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, []notify.Kind{notify.KindCancelled}, h.notifier.kinds())
}

func TestRecancelRepairsDriftedCounter(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 1)
	v := visitor("v-1", "premium")

	a, err := h.booking.Book(context.Background(), v, slot.ID, "")
	require.NoError(t, err)

	// status committed but the seat was never given back
	_, err = h.store.UpdateStatus(context.Background(), repository.UpdateStatusInput{
		ID: a.ID, From: domain.StatusPending, To: domain.StatusCancelled,
	})
	require.NoError(t, err)
	n, _ := h.occupancy(t, slot.ID)
	require.Equal(t, 1, n)

	_, err = h.setStatus(a.ID, domain.StatusCancelled, v)
	require.NoError(t, err)
	n, available := h.occupancy(t, slot.ID)
	assert.Equal(t, 0, n)
	assert.True(t, available)
}

func TestStoreUnavailableIsRetryable(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.booking.Book(ctx, visitor("v-1", "premium"), slot.ID, "")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.True(t, domain.Retryable(err))
}

func TestExampleScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.slot(t, 2)
	v1, v2, v3 := visitor("V1", "premium"), visitor("V2", "premium"), visitor("V3", "premium")

	a1, err := h.booking.Book(ctx, v1, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, a1.Status)
	n, _ := h.occupancy(t, s.ID)
	assert.Equal(t, 1, n)

	_, err = h.booking.Book(ctx, v2, s.ID, "")
	require.NoError(t, err)
	n, available := h.occupancy(t, s.ID)
	assert.Equal(t, 2, n)
	assert.False(t, available)

	_, err = h.booking.Book(ctx, v3, s.ID, "")
	assert.ErrorIs(t, err, domain.ErrSlotFull)

	confirmed, err := h.setStatus(a1.ID, domain.StatusConfirmed, exhibitor)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)
	n, _ = h.occupancy(t, s.ID)
	assert.Equal(t, 2, n)

	cancelled, err := h.setStatus(a1.ID, domain.StatusCancelled, v1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	n, available = h.occupancy(t, s.ID)
	assert.Equal(t, 1, n)
	assert.True(t, available)

	a3, err := h.booking.Book(ctx, v3, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, a3.Status)
	n, available = h.occupancy(t, s.ID)
	assert.Equal(t, 2, n)
	assert.False(t, available)

	assert.Equal(t, []notify.Kind{notify.KindConfirmed, notify.KindCancelled}, h.notifier.kinds())
}

func TestQuotaSummary(t *testing.T) {
	h := newHarness(t)
	v := visitor("v-1", "free")
	_, err := h.booking.Book(context.Background(), v, h.slot(t, 1).ID, "")
	require.NoError(t, err)

	sum, err := h.booking.QuotaSummary(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Limit)
	assert.Equal(t, 1, sum.Active)
	require.NotNil(t, sum.Remaining)
	assert.Equal(t, 1, *sum.Remaining)

	vip, err := h.booking.QuotaSummary(context.Background(), visitor("v-2", "vip"))
	require.NoError(t, err)
	assert.True(t, vip.Unlimited)
	assert.Nil(t, vip.Remaining)
}

func TestAppointmentQueries(t *testing.T) {
	h := newHarness(t)
	v := visitor("v-1", "premium")
	a, err := h.booking.Book(context.Background(), v, h.slot(t, 1).ID, "")
	require.NoError(t, err)

	got, err := h.lifecycle.Get(context.Background(), exhibitor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = h.lifecycle.Get(context.Background(), visitor("stranger", "free"), a.ID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	mine, err := h.lifecycle.ListForVisitor(context.Background(), v, nil)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	confirmed := domain.StatusConfirmed
	none, err := h.lifecycle.ListForExhibitor(context.Background(), exhibitor, &confirmed)
	require.NoError(t, err)
	assert.Empty(t, none)
}
