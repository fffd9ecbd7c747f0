// Package scheduler triggers the automatic-notifications job on a fixed,
// wall-clock aligned interval (the top of every hour by default).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/metricboard/notifier/internal/engine"
	"github.com/sirupsen/logrus"
)

// Runner is the job being scheduled.
type Runner interface {
	Run(ctx context.Context) (*engine.Result, error)
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger

	mu       sync.Mutex
	started  bool
	stopChan chan struct{}
	done     chan struct{}
}

func New(runner Runner, interval, timeout time.Duration, log logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		timeout:  timeout,
		log:      log.WithField("component", "scheduler"),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. It returns immediately; calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.log.WithField("interval", s.interval.String()).Info("starting notification scheduler")
	go s.loop(ctx)
}

// Stop ends the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.mu.Unlock()
	if started {
		<-s.done
	}
	s.log.Info("notification scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	timer := time.NewTimer(untilNext(time.Now(), s.interval))
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(untilNext(time.Now(), s.interval))
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.runner.Run(ctx)
	if err != nil {
		s.log.WithError(err).Error("scheduled run failed")
		return
	}
	s.log.WithField("notifications_sent", res.NotificationsSent).Info("scheduled run finished")
}

// untilNext returns the wait until the next multiple of interval.
func untilNext(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}
