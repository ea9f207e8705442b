package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_SpacesActions(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Wait(ctx))
	start := time.Now()
	require.NoError(t, r.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiter_ZeroDelayNeverWaits(t *testing.T) {
	r := NewSimpleRateLimiter(0, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, r.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestSimpleRateLimiter_WaitHonoursContext(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestAdaptiveRateLimiter_BacksOffAndRecovers(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	minD, maxD := a.Delays()
	assert.Equal(t, 3*time.Second, minD)
	assert.Equal(t, 6*time.Second, maxD)

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	minD, maxD = a.Delays()
	assert.Equal(t, 2*time.Second, minD, "never relaxes below the base delay")
	assert.Equal(t, 4*time.Second, maxD)
}

func TestAdaptiveRateLimiter_Caps(t *testing.T) {
	a := NewAdaptiveRateLimiter(50*time.Second, 100*time.Second)
	for i := 0; i < 30; i++ {
		a.RecordError()
	}
	minD, maxD := a.Delays()
	assert.Equal(t, 60*time.Second, minD)
	assert.Equal(t, 120*time.Second, maxD)
}

func TestPerStore_IndependentPacers(t *testing.T) {
	p := NewPerStore(time.Second, 2*time.Second)

	assert.Same(t, p.For(models.StoreDanube), p.For(models.StoreDanube))
	assert.NotSame(t, p.For(models.StoreDanube), p.For(models.StorePanda))

	for i := 0; i < 3; i++ {
		p.Record(models.StoreDanube, false)
	}
	danubeMin, _ := p.For(models.StoreDanube).Delays()
	pandaMin, _ := p.For(models.StorePanda).Delays()
	assert.Greater(t, danubeMin, pandaMin)
}

func TestGlobal(t *testing.T) {
	ctx := context.Background()

	unlimited := NewGlobal(0, 0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	limited := NewGlobal(20, 1)
	start = time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limited.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
