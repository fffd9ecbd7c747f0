package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/metricboard/notifier/internal/models"
)

const (
	msgStarted   = "Automatic notifications started"
	msgProcessed = "Automatic notifications processed"
	msgFailed    = "Automatic notifications failed"
)

type runDetails struct {
	NotificationsSent     int                `json:"notifications_sent"`
	AchievementsFound     int                `json:"achievements_found"`
	PendingJustifications int                `json:"pending_justifications"`
	MetricsWithoutTargets int                `json:"metrics_without_targets"`
	OverdueMissedCount    int                `json:"overdue_missed_count"`
	Due                   []models.Frequency `json:"due_frequencies"`
}

type startDetails struct {
	ReferenceTime string `json:"reference_time"`
	Strategy      string `json:"strategy"`
}

type failureDetails struct {
	Error string `json:"error"`
	// Chain holds the message at each wrap level, outermost first.
	Chain         []string `json:"error_chain"`
	ReferenceTime string   `json:"reference_time"`
}

func errorChain(err error) []string {
	var chain []string
	for ; err != nil; err = errors.Unwrap(err) {
		chain = append(chain, err.Error())
	}
	return chain
}

func (e *Engine) logStart(ctx context.Context, at time.Time) {
	e.appendLog(ctx, models.LogInfo, msgStarted, startDetails{
		ReferenceTime: at.Format(time.RFC3339),
		Strategy:      Strategy,
	})
}

// logCompletion appends the info row. The run already succeeded, so a
// failed insert is only logged.
func (e *Engine) logCompletion(ctx context.Context, res *Result) {
	e.appendLog(ctx, models.LogInfo, msgProcessed, runDetails{
		NotificationsSent:     res.NotificationsSent,
		AchievementsFound:     res.AchievementsFound,
		PendingJustifications: res.PendingJustifications,
		MetricsWithoutTargets: res.MetricsWithoutTargets,
		OverdueMissedCount:    res.OverdueMissedCount,
		Due:                   res.due,
	})
}

func (e *Engine) logFailure(ctx context.Context, at time.Time, err error) {
	e.appendLog(ctx, models.LogError, msgFailed, failureDetails{
		Error:         err.Error(),
		Chain:         errorChain(err),
		ReferenceTime: at.Format(time.RFC3339),
	})
}

func (e *Engine) appendLog(ctx context.Context, level, msg string, details any) {
	raw, err := json.Marshal(details)
	if err != nil {
		e.log.WithError(err).Error("marshal run log details")
		return
	}
	row := models.Log{Level: level, Message: msg, Details: raw, CreatedAt: e.clock().UTC()}
	if err := e.db.WithContext(context.WithoutCancel(ctx)).Create(&row).Error; err != nil {
		e.log.WithError(err).Error("write run log row")
	}
}
