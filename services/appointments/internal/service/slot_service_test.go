package service

import (
	"context"
	"testing"

	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSlotRoles(t *testing.T) {
	h := newHarness(t)
	in := CreateSlotInput{
		Bounds:      domain.SlotBounds{Date: "2030-05-02", StartTime: "14:00", EndTime: "15:15"},
		MaxBookings: 4,
		Modality:    "in-person",
		Location:    "Hall B, booth 12",
	}

	_, err := h.slotSvc.Create(context.Background(), visitor("v-1", "premium"), in)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = h.slotSvc.Create(context.Background(), domain.Identity{}, in)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	s, err := h.slotSvc.Create(context.Background(), domain.Identity{UserID: "p-1", Classification: "partner"}, in)
	require.NoError(t, err)
	assert.Equal(t, "p-1", s.ExhibitorID)
	assert.Equal(t, 75, s.DurationMinutes)
	assert.Equal(t, domain.ModalityInPerson, s.Modality)
	assert.True(t, s.Available)

	in.ExhibitorID = "ex-9"
	s, err = h.slotSvc.Create(context.Background(), domain.Identity{UserID: "admin-1", Classification: "admin"}, in)
	require.NoError(t, err)
	assert.Equal(t, "ex-9", s.ExhibitorID)

	s, err = h.slotSvc.Create(context.Background(), exhibitor, in)
	require.NoError(t, err)
	assert.Equal(t, exhibitor.UserID, s.ExhibitorID, "non-admins cannot publish for someone else")
}

func TestCreateSlotValidation(t *testing.T) {
	h := newHarness(t)
	cases := map[string]CreateSlotInput{
		"past":       {Bounds: domain.SlotBounds{Date: "2030-03-31", StartTime: "10:00", EndTime: "11:00"}, MaxBookings: 1},
		"inverted":   {Bounds: domain.SlotBounds{Date: "2030-05-01", StartTime: "11:00", EndTime: "10:00"}, MaxBookings: 1},
		"no seats":   {Bounds: domain.SlotBounds{Date: "2030-05-01", StartTime: "10:00", EndTime: "11:00"}, MaxBookings: 0},
		"bad format": {Bounds: domain.SlotBounds{Date: "2030-05-01", StartTime: "10am", EndTime: "11:00"}, MaxBookings: 1},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.slotSvc.Create(context.Background(), exhibitor, in)
			assert.ErrorIs(t, err, domain.ErrInvalidSlot)
		})
	}
}

func TestDeleteSlot(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 1)
	v := visitor("v-1", "premium")

	a, err := h.booking.Book(context.Background(), v, slot.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, h.slotSvc.Delete(context.Background(), domain.Identity{UserID: "ex-2", Classification: "exhibitor"}, slot.ID), domain.ErrNotAuthorized)
	assert.ErrorIs(t, h.slotSvc.Delete(context.Background(), exhibitor, slot.ID), domain.ErrSlotInUse)

	_, err = h.setStatus(a.ID, domain.StatusCancelled, v)
	require.NoError(t, err)
	require.NoError(t, h.slotSvc.Delete(context.Background(), exhibitor, slot.ID))

	_, err = h.slotSvc.Get(context.Background(), slot.ID)
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)
	_, err = h.booking.Book(context.Background(), visitor("v-2", "premium"), slot.ID, "")
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)

	// history survives the delete
	got, err := h.lifecycle.Get(context.Background(), v, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestReconcileSlot(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, 2)

	_, err := h.booking.Book(context.Background(), visitor("v-1", "premium"), slot.ID, "")
	require.NoError(t, err)

	_, err = h.slotSvc.Reconcile(context.Background(), visitor("v-1", "premium"), slot.ID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	got, err := h.slotSvc.Reconcile(context.Background(), exhibitor, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentBookings)

	got, err = h.slotSvc.Reconcile(context.Background(), domain.Identity{UserID: "admin-1", Classification: "admin"}, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentBookings)
}

func TestListSlots(t *testing.T) {
	h := newHarness(t)
	h.slot(t, 1)
	h.slot(t, 2)

	slots, err := h.slotSvc.List(context.Background(), exhibitor.UserID)
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	none, err := h.slotSvc.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
