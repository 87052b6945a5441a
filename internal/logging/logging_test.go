package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitSetsLevelFromVerboseFlag(t *testing.T) {
	log, err := Init(false)
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(-1)) // Debug disabled at Info level

	log, err = Init(true)
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(-1)) // Debug enabled in verbose mode
}

func TestErrorLevelLogsAreRingBuffered(t *testing.T) {
	mu.Lock()
	ring = nil
	mu.Unlock()

	log, err := Init(false)
	require.NoError(t, err)

	log.Error("disk write failed")

	mu.Lock()
	n := len(ring)
	mu.Unlock()
	require.Equal(t, 1, n)
}
