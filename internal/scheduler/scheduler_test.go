package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/metricboard/notifier/internal/engine"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type countingRunner struct {
	calls       atomic.Int32
	hadDeadline atomic.Bool
	err         error
}

func (r *countingRunner) Run(ctx context.Context) (*engine.Result, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		r.hadDeadline.Store(true)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &engine.Result{Status: engine.StatusSuccess}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestUntilNext(t *testing.T) {
	now := time.Date(2024, time.May, 20, 10, 15, 30, 0, time.UTC)
	assert.Equal(t, 44*time.Minute+30*time.Second, untilNext(now, time.Hour))
	assert.Equal(t, time.Hour, untilNext(now.Truncate(time.Hour), time.Hour))
}

func TestSchedulerRunsRepeatedly(t *testing.T) {
	r := &countingRunner{}
	s := New(r, 20*time.Millisecond, time.Second, quietLogger())
	s.Start(context.Background())
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	assert.True(t, r.hadDeadline.Load())

	n := r.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, r.calls.Load(), "no runs after Stop")
}

func TestSchedulerKeepsGoingAfterFailure(t *testing.T) {
	r := &countingRunner{err: errors.New("db down")}
	s := New(r, 10*time.Millisecond, 0, quietLogger())
	s.Start(context.Background())
	defer s.Stop()
	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStopsWithContext(t *testing.T) {
	r := &countingRunner{}
	s := New(r, time.Hour, 0, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() { s.Stop(); close(stopped) }()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancel")
	}
	assert.Zero(t, r.calls.Load())
}

func TestStopWithoutStart(t *testing.T) {
	s := New(&countingRunner{}, time.Hour, 0, quietLogger())
	s.Stop()
	s.Stop()
}
