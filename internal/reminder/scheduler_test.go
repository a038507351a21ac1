package reminder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	calls atomic.Int32
	run   func(ctx context.Context, call int32) (*Report, error)
}

func (f *fakeRunner) RunOnce(ctx context.Context) (*Report, error) {
	n := f.calls.Add(1)
	if f.run != nil {
		return f.run(ctx, n)
	}
	return &Report{SweepID: "sweep", Result: "ok"}, nil
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	runner := &fakeRunner{}
	s, err := NewScheduler(runner, SchedulerConfig{Interval: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, s.Running())
	require.Eventually(t, func() bool { return s.LastReport() != nil }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "sweep", s.LastReport().SweepID)
}

func TestScheduler_StartAndStopAreIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	s, err := NewScheduler(runner, SchedulerConfig{Interval: time.Hour}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()), "stop before start")

	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load(), "second Start must not trigger another sweep")

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Running())
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_StopCancelsInFlightSweep(t *testing.T) {
	started := make(chan struct{})
	observedCancel := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, _ int32) (*Report, error) {
		close(started)
		<-ctx.Done()
		close(observedCancel)
		return &Report{Result: "canceled"}, ctx.Err()
	}}
	s, err := NewScheduler(runner, SchedulerConfig{Interval: time.Hour}, nil)
	require.NoError(t, err)

	s.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case <-observedCancel:
	default:
		t.Fatal("sweep did not observe cancellation")
	}
	assert.Equal(t, "canceled", s.LastReport().Result)
}

func TestScheduler_StopAbandonsStuckSweep(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := &fakeRunner{run: func(context.Context, int32) (*Report, error) {
		close(started)
		<-release
		return nil, nil
	}}
	s, err := NewScheduler(runner, SchedulerConfig{Interval: time.Hour}, nil)
	require.NoError(t, err)

	s.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Stop(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Running())
	close(release)
}

func TestScheduler_RestartWaitsForAbandonedSweep(t *testing.T) {
	release := make(chan struct{})
	var running, maxRunning atomic.Int32
	runner := &fakeRunner{run: func(_ context.Context, call int32) (*Report, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		if call == 1 {
			<-release
		}
		return &Report{Result: "ok"}, nil
	}}
	s, err := NewScheduler(runner, SchedulerConfig{Interval: time.Second}, nil)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return running.Load() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	s.Start()
	defer s.Stop(context.Background())
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load(), "restart must not overlap the abandoned sweep")

	close(release)
	require.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestScheduler_KeepsRunningAfterFailuresAndPanics(t *testing.T) {
	runner := &fakeRunner{run: func(_ context.Context, call int32) (*Report, error) {
		switch call {
		case 1:
			panic("boom")
		case 2:
			return &Report{Result: "aborted"}, errStoreDown
		default:
			return &Report{Result: "ok"}, nil
		}
	}}
	s, err := NewScheduler(runner, SchedulerConfig{Interval: time.Second}, nil)
	require.NoError(t, err)

	s.Start()
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, 5*time.Second, 50*time.Millisecond)
	assert.True(t, s.Running())
	require.Eventually(t, func() bool {
		r := s.LastReport()
		return r != nil && r.Result == "ok"
	}, time.Second, 10*time.Millisecond)
}

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
	var running, overlaps atomic.Int32
	runner := &fakeRunner{run: func(ctx context.Context, _ int32) (*Report, error) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		defer running.Add(-1)
		select {
		case <-time.After(2500 * time.Millisecond):
		case <-ctx.Done():
		}
		return &Report{}, nil
	}}
	s, err := NewScheduler(runner, SchedulerConfig{Interval: time.Second}, nil)
	require.NoError(t, err)

	s.Start()
	time.Sleep(3 * time.Second)
	require.NoError(t, s.Stop(context.Background()))

	assert.Zero(t, overlaps.Load())
}

func TestNewScheduler_Spec(t *testing.T) {
	_, err := NewScheduler(&fakeRunner{}, SchedulerConfig{Spec: "0 9 * * *"}, nil)
	require.NoError(t, err)

	_, err = NewScheduler(&fakeRunner{}, SchedulerConfig{Spec: "not a cron line"}, nil)
	require.Error(t, err)
}
