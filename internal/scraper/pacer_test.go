package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitterPacerZeroWindowDoesNotBlock(t *testing.T) {
	t.Parallel()

	pacer := NewJitterPacer(0, 0)
	start := time.Now()
	require.NoError(t, pacer.Wait(context.Background()))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestJitterPacerWaitsWithinWindow(t *testing.T) {
	t.Parallel()

	pacer := NewJitterPacer(10*time.Millisecond, 30*time.Millisecond)
	start := time.Now()
	require.NoError(t, pacer.Wait(context.Background()))
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}

func TestJitterPacerStopsOnCancel(t *testing.T) {
	t.Parallel()

	pacer := NewJitterPacer(time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := pacer.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestJitterPacerSwapsInvertedBounds(t *testing.T) {
	t.Parallel()

	pacer := NewJitterPacer(20*time.Millisecond, 5*time.Millisecond)
	start := time.Now()
	require.NoError(t, pacer.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
