package replies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompleteDeliversValue(t *testing.T) {
	m := NewMap[string, int](time.Second)
	p := m.Register("1")

	ok := m.Complete("1", 42)
	require.True(t, ok)

	v, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestCompleteUnknownIDIsNoopNotPanic(t *testing.T) {
	m := NewMap[string, int](time.Second)
	require.NotPanics(t, func() {
		ok := m.Complete("missing", 1)
		require.False(t, ok)
	})
}

func TestTimeout(t *testing.T) {
	m := NewMap[string, int](10 * time.Millisecond)
	p := m.Register("1")

	_, err := p.Get(context.Background())
	require.ErrorIs(t, err, ErrTimedOut)

	// A late reply after the waiter already expired must not panic and is
	// simply dropped on the floor.
	require.NotPanics(t, func() {
		m.Complete("1", 99)
	})
}

func TestPurgeCancelsOutstandingWaiters(t *testing.T) {
	m := NewMap[string, int](time.Minute)
	p := m.Register("1")

	m.Purge()

	_, err := p.Get(context.Background())
	require.ErrorIs(t, err, ErrCanceled)
	require.Equal(t, 0, m.Len())
}

func TestRegisterReplacingCancelsOld(t *testing.T) {
	m := NewMap[string, int](time.Minute)
	old := m.Register("1")
	_ = m.Register("1")

	_, err := old.Get(context.Background())
	require.ErrorIs(t, err, ErrCanceled)
}
