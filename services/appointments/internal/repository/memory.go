package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore implements both store contracts behind one mutex, which makes
// every operation trivially atomic. Used by tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu           sync.Mutex
	slots        map[string]*memSlot
	appointments map[string]*domain.Appointment
	now          func() time.Time
}

type memSlot struct {
	slot    domain.TimeSlot
	deleted bool
}

var (
	_ SlotRepository        = (*MemoryStore)(nil)
	_ AppointmentRepository = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:        make(map[string]*memSlot),
		appointments: make(map[string]*domain.Appointment),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// PutSlot stores s as-is, bypassing validation. Fixtures use it to load
// existing rows, including ones a validated create would refuse.
func (m *MemoryStore) PutSlot(s domain.TimeSlot) domain.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
		s.UpdatedAt = s.CreatedAt
	}
	s.Normalize()
	m.slots[s.ID] = &memSlot{slot: s}
	return s
}

func (m *MemoryStore) live(id string) (*memSlot, bool) {
	ms, ok := m.slots[id]
	if !ok || ms.deleted {
		return nil, false
	}
	return ms, true
}

func (m *MemoryStore) GetSlot(ctx context.Context, id string) (*domain.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get slot", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.live(id)
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	s := ms.slot
	return &s, nil
}

func (m *MemoryStore) ListSlots(ctx context.Context, exhibitorID string) ([]domain.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list slots", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.TimeSlot{}
	for _, ms := range m.slots {
		if !ms.deleted && ms.slot.ExhibitorID == exhibitorID {
			out = append(out, ms.slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *MemoryStore) CreateSlot(ctx context.Context, in domain.NewSlot) (*domain.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("create slot", err)
	}
	s := m.PutSlot(domain.TimeSlot{
		ExhibitorID:     in.ExhibitorID,
		Date:            in.Bounds.Date,
		StartTime:       in.Bounds.StartTime,
		EndTime:         in.Bounds.EndTime,
		DurationMinutes: in.DurationMinutes,
		MaxBookings:     in.MaxBookings,
		Modality:        in.Modality,
		Location:        in.Location,
	})
	return &s, nil
}

func (m *MemoryStore) Reserve(ctx context.Context, in ReserveInput) (*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("reserve", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.live(in.SlotID)
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	if ms.slot.ExhibitorID == "" {
		return nil, domain.ErrDataIntegrity
	}
	if !ms.slot.HasCapacity() {
		return nil, domain.ErrSlotFull
	}

	active := 0
	for _, a := range m.appointments {
		if a.VisitorID != in.VisitorID {
			continue
		}
		if a.TimeSlotID == in.SlotID && a.Status != domain.StatusCancelled {
			return nil, domain.ErrDuplicateBooking
		}
		if a.Status.Active() {
			active++
		}
	}
	if in.MaxActive >= 0 && active >= in.MaxActive {
		return nil, &domain.QuotaExceededError{Classification: in.Classification, Limit: in.MaxActive, Active: active}
	}

	now := m.now()
	ms.slot.CurrentBookings++
	ms.slot.UpdatedAt = now
	ms.slot.Normalize()

	appt := &domain.Appointment{
		ID:          uuid.NewString(),
		TimeSlotID:  ms.slot.ID,
		ExhibitorID: ms.slot.ExhibitorID,
		VisitorID:   in.VisitorID,
		Status:      domain.StatusPending,
		Message:     in.Message,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.appointments[appt.ID] = appt

	return &Reservation{Appointment: *appt, Slot: ms.slot}, nil
}

func (m *MemoryStore) Release(ctx context.Context, slotID string) (*domain.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("release", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.slots[slotID]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	ms.slot.CurrentBookings--
	ms.slot.UpdatedAt = m.now()
	ms.slot.Normalize()
	s := ms.slot
	return &s, nil
}

func (m *MemoryStore) Reconcile(ctx context.Context, slotID string) (*domain.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("reconcile", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.slots[slotID]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	held := 0
	for _, a := range m.appointments {
		if a.TimeSlotID == slotID && a.Status != domain.StatusCancelled {
			held++
		}
	}
	ms.slot.CurrentBookings = held
	ms.slot.UpdatedAt = m.now()
	ms.slot.Normalize()
	s := ms.slot
	return &s, nil
}

func (m *MemoryStore) DeleteSlot(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete slot", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.live(id)
	if !ok {
		return domain.ErrSlotNotFound
	}
	if ms.slot.CurrentBookings > 0 {
		return domain.ErrSlotInUse
	}
	ms.deleted = true
	ms.slot.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get appointment", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, domain.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) FindNonCancelled(ctx context.Context, visitorID, slotID string) (*domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("find appointment", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.appointments {
		if a.VisitorID == visitorID && a.TimeSlotID == slotID && a.Status != domain.StatusCancelled {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAppointmentNotFound
}

func (m *MemoryStore) CountActive(ctx context.Context, visitorID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("count active", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, a := range m.appointments {
		if a.VisitorID == visitorID && a.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListByVisitor(ctx context.Context, visitorID string, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	return m.filter(ctx, func(a *domain.Appointment) bool { return a.VisitorID == visitorID }, status)
}

func (m *MemoryStore) ListByExhibitor(ctx context.Context, exhibitorID string, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	return m.filter(ctx, func(a *domain.Appointment) bool { return a.ExhibitorID == exhibitorID }, status)
}

func (m *MemoryStore) filter(ctx context.Context, match func(*domain.Appointment) bool, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list appointments", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Appointment{}
	for _, a := range m.appointments {
		if !match(a) {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("update status", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[in.ID]
	if !ok {
		return nil, domain.ErrAppointmentNotFound
	}
	if a.Status != in.From {
		return nil, domain.ErrStatusConflict
	}
	a.Status = in.To
	if in.MeetingLink != nil {
		a.MeetingLink = *in.MeetingLink
	}
	a.UpdatedAt = m.now()
	cp := *a
	return &cp, nil
}
