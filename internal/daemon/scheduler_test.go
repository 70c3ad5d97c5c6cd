package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsPollImmediatelyAndRepeatedly(t *testing.T) {
	s, err := NewScheduler(nil, time.Second)
	require.NoError(t, err)

	var runs atomic.Int32
	require.NoError(t, s.SchedulePoll(context.Background(), 20*time.Millisecond, func(context.Context) {
		runs.Add(1)
	}))
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerNeverOverlapsCycles(t *testing.T) {
	s, err := NewScheduler(nil, time.Second)
	require.NoError(t, err)

	var active, maxActive, runs atomic.Int32
	require.NoError(t, s.SchedulePoll(context.Background(), 5*time.Millisecond, func(context.Context) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
	}))
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestSchedulerReschedule(t *testing.T) {
	s, err := NewScheduler(nil, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.SchedulePoll(context.Background(), time.Hour, func(context.Context) {}))
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	require.NoError(t, s.Reschedule(2*time.Hour))
	assert.Equal(t, 2*time.Hour, s.Interval())
	require.Len(t, s.scheduler.Jobs(), 1)
	assert.Equal(t, pollJobName, s.scheduler.Jobs()[0].Name())
}

func TestSchedulerRescheduleWithoutJob(t *testing.T) {
	s, err := NewScheduler(nil, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	require.Error(t, s.Reschedule(time.Minute))
}

func TestSchedulerStopCancelsTaskContext(t *testing.T) {
	s, err := NewScheduler(nil, time.Second)
	require.NoError(t, err)

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.SchedulePoll(context.Background(), time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))
	s.Start()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("poll job did not start")
	}
	require.NoError(t, s.Stop())
	assert.True(t, cancelled.Load())
}
