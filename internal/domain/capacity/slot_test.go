package capacity

import (
	"testing"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlot(t *testing.T, total int) *Slot {
	t.Helper()
	s, err := NewSlot(uuid.New(), time.Now().UTC().AddDate(0, 0, 7), "09:00", "12:00", total)
	require.NoError(t, err)
	return s
}

func TestNewSlot_RejectsNegativeCapacity(t *testing.T) {
	_, err := NewSlot(uuid.New(), time.Now().UTC(), "09:00", "12:00", -1)
	require.Error(t, err)
	assert.True(t, domainerr.IsValidation(err))
}

func TestReserve(t *testing.T) {
	t.Run("takes capacity", func(t *testing.T) {
		s := newTestSlot(t, 10)
		require.NoError(t, s.Reserve(4))
		assert.Equal(t, 4, s.Booked())
		assert.Equal(t, 6, s.Remaining())
	})

	t.Run("rejects overbooking", func(t *testing.T) {
		s := newTestSlot(t, 10)
		require.NoError(t, s.Reserve(8))
		err := s.Reserve(3)
		require.Error(t, err)
		assert.True(t, domainerr.IsConflict(err))
		assert.Equal(t, 8, s.Booked())
	})

	t.Run("allows filling exactly", func(t *testing.T) {
		s := newTestSlot(t, 10)
		require.NoError(t, s.Reserve(10))
		assert.Equal(t, 0, s.Remaining())
	})

	t.Run("rejects inactive slot", func(t *testing.T) {
		s := newTestSlot(t, 10)
		s.Deactivate()
		err := s.Reserve(1)
		require.Error(t, err)
		assert.True(t, domainerr.IsValidation(err))
	})

	t.Run("rejects past date", func(t *testing.T) {
		s, err := NewSlot(uuid.New(), time.Now().UTC().AddDate(0, 0, -2), "09:00", "12:00", 10)
		require.NoError(t, err)
		err = s.Reserve(1)
		require.Error(t, err)
		assert.True(t, domainerr.IsValidation(err))
	})

	t.Run("rejects non-positive count", func(t *testing.T) {
		s := newTestSlot(t, 10)
		assert.Error(t, s.Reserve(0))
		assert.Error(t, s.Reserve(-3))
	})
}

func TestRelease_FloorsAtZero(t *testing.T) {
	s := newTestSlot(t, 10)
	require.NoError(t, s.Reserve(2))

	require.NoError(t, s.Release(5))
	assert.Equal(t, 0, s.Booked())
	assert.Equal(t, 10, s.Remaining())
}

func TestUpdateTotal(t *testing.T) {
	s := newTestSlot(t, 10)
	require.NoError(t, s.Reserve(6))

	err := s.UpdateTotal(5)
	require.Error(t, err)
	assert.True(t, domainerr.IsConflict(err))

	require.NoError(t, s.UpdateTotal(6))
	assert.Equal(t, 0, s.Remaining())

	require.NoError(t, s.UpdateTotal(20))
	assert.Equal(t, 14, s.Remaining())
}
