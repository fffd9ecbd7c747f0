// Package engine runs the automatic-notifications job: pending-metric
// reminders per frequency class, then the target, goal and justification
// audits, writing notifications for department managers and admins.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/metricboard/notifier/internal/dedup"
	"github.com/metricboard/notifier/internal/models"
	"github.com/metricboard/notifier/internal/period"
	"github.com/metricboard/notifier/internal/sender"
	"github.com/metricboard/notifier/internal/settings"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	StatusSuccess = "success"
	Strategy      = "expanded_frequency_notifications"
)

var (
	runsSucceeded = metrics.NewCounter(`notifier_runs_total{status="success"}`)
	runsFailed    = metrics.NewCounter(`notifier_runs_total{status="error"}`)
	runDuration   = metrics.NewHistogram(`notifier_run_duration_seconds`)
)

func sentCounter(alertType string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`notifier_notifications_sent_total{alert_type=%q}`, alertType))
}

type Options struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
	// Location is the zone used for hours, weekdays and civil dates. Defaults to UTC.
	Location *time.Location
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Sink receives every inserted batch. Optional.
	Sink sender.Sink
}

type Engine struct {
	db    *gorm.DB
	log   logrus.FieldLogger
	loc   *time.Location
	clock func() time.Time
	sink  sender.Sink
	dedup *dedup.Checker
}

func New(opts Options) *Engine {
	e := &Engine{
		db:    opts.DB,
		log:   opts.Logger,
		loc:   opts.Location,
		clock: opts.Clock,
		sink:  opts.Sink,
		dedup: dedup.NewChecker(opts.DB),
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	e.log = e.log.WithField("component", "engine")
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sink == nil {
		e.sink = sender.Nop{}
	}
	return e
}

// Result is the run summary returned to the trigger.
type Result struct {
	NotificationsSent     int       `json:"notifications_sent"`
	AchievementsFound     int       `json:"achievements_found"`
	PendingJustifications int       `json:"pending_justifications"`
	MetricsWithoutTargets int       `json:"metrics_without_targets"`
	OverdueMissedCount    int       `json:"overdue_missed_count"`
	ProcessedAt           time.Time `json:"processed_at"`
	Status                string    `json:"status"`
	Strategy              string    `json:"strategy"`

	due []models.Frequency
}

// Run evaluates every rule at the current time.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	return e.RunAt(ctx, e.clock())
}

// RunAt evaluates every rule as if it were at. Notifications are stamped with at.
func (e *Engine) RunAt(ctx context.Context, at time.Time) (*Result, error) {
	started := time.Now()
	r := &run{
		Engine: e,
		now:    at.In(e.loc),
		res:    &Result{Status: StatusSuccess, Strategy: Strategy},
	}
	r.log = e.log.WithField("reference_time", r.now.Format(time.RFC3339))
	r.log.Info("automatic notifications run started")
	e.logStart(ctx, r.now)

	err := r.execute(ctx)
	runDuration.UpdateDuration(started)
	if err != nil {
		runsFailed.Inc()
		r.log.WithError(err).Error("automatic notifications run failed")
		e.logFailure(ctx, r.now, err)
		return nil, err
	}
	r.res.ProcessedAt = e.clock().UTC()
	runsSucceeded.Inc()
	r.log.WithFields(logrus.Fields{
		"notifications_sent": r.res.NotificationsSent,
		"due":                r.res.due,
		"took":               time.Since(started).String(),
	}).Info("automatic notifications run finished")
	e.logCompletion(ctx, r.res)
	return r.res, nil
}

// run holds the state of one invocation.
type run struct {
	*Engine
	now   time.Time
	log   logrus.FieldLogger
	res   *Result
	depts map[string]string
}

func (r *run) execute(ctx context.Context) error {
	cfg := settings.Load(ctx, r.db, r.log)
	r.res.due = period.Due(cfg, r.now)
	for _, f := range r.res.due {
		if err := r.remind(ctx, cfg, f); err != nil {
			return fmt.Errorf("%s reminders: %w", f, err)
		}
	}
	if err := r.auditTargetless(ctx); err != nil {
		return fmt.Errorf("target audit: %w", err)
	}
	if err := r.auditGoals(ctx); err != nil {
		return fmt.Errorf("goal audit: %w", err)
	}
	if err := r.auditJustifications(ctx); err != nil {
		return fmt.Errorf("justification audit: %w", err)
	}
	return nil
}
