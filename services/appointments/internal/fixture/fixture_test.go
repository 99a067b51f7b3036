package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/diagnosis/expo-appointments/services/appointments/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	st := repository.NewMemoryStore()
	now := time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)

	seeded, err := Seed(context.Background(), st, now, time.UTC)
	require.NoError(t, err)
	require.Len(t, seeded, len(demoSlots))

	slots, err := st.ListSlots(context.Background(), "demo-exhibitor-1")
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "2030-06-02", slots[0].Date)
	assert.Equal(t, 30, slots[0].DurationMinutes)
	for _, s := range seeded {
		assert.Zero(t, s.CurrentBookings)
		assert.True(t, s.Available)
	}
}
