package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedulerValidation(t *testing.T) {
	c := New(newMockAdapter(), newTestStore(t), &stubDetector{}, testConfig())

	_, err := NewScheduler(nil, c, nil)
	assert.Error(t, err)

	_, err = NewScheduler(DefaultSchedulerConfig(nil, "1h"), c, nil)
	assert.Error(t, err)

	_, err = NewScheduler(DefaultSchedulerConfig([]string{"ADAUSDT"}, "3h"), c, nil)
	assert.Error(t, err)

	s, err := NewScheduler(DefaultSchedulerConfig([]string{"ADAUSDT", "BNBUSDT"}, "1h"), c, nil)
	require.NoError(t, err)
	assert.False(t, s.IsRunning())
}

func TestSchedulerLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New(newMockAdapter(), newTestStore(t), &stubDetector{}, testConfig())

	s, err := NewScheduler(DefaultSchedulerConfig([]string{"ADAUSDT"}, "1h"), c, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(ctx), "double start must fail")

	stats := s.GetStats()
	assert.False(t, stats.NextRunTime.IsZero())
	assert.True(t, stats.NextRunTime.After(time.Now().UTC()))

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	assert.Error(t, s.Stop(ctx), "double stop must fail")
}

func TestNextBoundary(t *testing.T) {
	base := time.Date(2024, 1, 1, 14, 23, 45, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), nextBoundary(base, time.Hour))
	assert.Equal(t, time.Date(2024, 1, 1, 14, 24, 0, 0, time.UTC), nextBoundary(base, time.Minute))

	// An exact boundary advances to the next one.
	exact := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), nextBoundary(exact, time.Hour))
}
