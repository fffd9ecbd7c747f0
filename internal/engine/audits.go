package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/metricboard/notifier/internal/dedup"
	"github.com/metricboard/notifier/internal/models"
)

const justificationGrace = 3 * 24 * time.Hour

// auditTargetless tells admins about active metrics with no usable target.
func (r *run) auditTargetless(ctx context.Context) error {
	var defs []models.MetricDefinition
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND (target IS NULL OR target = 0)", true).
		Order("name ASC, id ASC").
		Find(&defs).Error; err != nil {
		return fmt.Errorf("load metrics without target: %w", err)
	}
	r.res.MetricsWithoutTargets = len(defs)
	if len(defs) == 0 {
		return nil
	}
	key := dedup.Key{AlertType: dedup.AlertMetricsWithoutTargets}
	if sent, err := r.alreadySent(ctx, key, dedup.AuditWindow); err != nil || sent {
		return err
	}
	admins, err := r.admins(ctx)
	if err != nil || len(admins) == 0 {
		return err
	}
	summary, err := r.summarize(ctx, groupByDepartment(defs))
	if err != nil {
		return err
	}
	_, err = r.notify(ctx, message{
		Key:   key,
		Type:  models.NotificationWarning,
		Title: fmt.Sprintf("%d métrica(s) sem meta definida", len(defs)),
		Body:  fmt.Sprintf("Métricas ativas sem meta por departamento: %s.", summary),
		Metadata: models.NotificationMetadata{
			Count:     len(defs),
			MetricIDs: ids(defs),
		},
	}, admins)
	return err
}

// auditGoals congratulates departments on achieved targets and gives
// admins a summary of the missed ones.
func (r *run) auditGoals(ctx context.Context) error {
	statuses, err := GoalStatuses(ctx, r.db)
	if err != nil {
		return err
	}
	var achieved, missed []models.MetricDefinition
	for _, st := range statuses {
		if st.Latest == nil {
			continue
		}
		if st.Achieved {
			achieved = append(achieved, st.Definition)
		} else {
			missed = append(missed, st.Definition)
		}
	}
	r.res.AchievementsFound = len(achieved)
	r.res.OverdueMissedCount = len(missed)

	for _, g := range groupByDepartment(achieved) {
		if g.ID == nil {
			r.log.WithField("metrics", metricNames(g.Metrics)).Debug("achieved metrics without department")
			continue
		}
		if err := r.congratulate(ctx, g); err != nil {
			return err
		}
	}
	if len(missed) == 0 {
		return nil
	}

	key := dedup.Key{AlertType: dedup.AlertUnachievedSummary}
	if sent, err := r.alreadySent(ctx, key, dedup.AuditWindow); err != nil || sent {
		return err
	}
	admins, err := r.admins(ctx)
	if err != nil || len(admins) == 0 {
		return err
	}
	summary, err := r.summarize(ctx, groupByDepartment(missed))
	if err != nil {
		return err
	}
	_, err = r.notify(ctx, message{
		Key:   key,
		Type:  models.NotificationWarning,
		Title: fmt.Sprintf("Resumo: %d meta(s) não atingida(s)", len(missed)),
		Body:  fmt.Sprintf("Metas não atingidas por departamento: %s.", summary),
		Metadata: models.NotificationMetadata{
			Count:     len(missed),
			MetricIDs: ids(missed),
		},
	}, admins)
	return err
}

func (r *run) congratulate(ctx context.Context, g *group) error {
	key := dedup.Key{AlertType: dedup.AlertGoalsAchieved, DepartmentID: g.ID}
	if sent, err := r.alreadySent(ctx, key, dedup.AuditWindow); err != nil || sent {
		return err
	}
	users, err := r.departmentManagers(ctx, *g.ID)
	if err != nil || len(users) == 0 {
		return err
	}
	name, err := r.departmentName(ctx, g.ID)
	if err != nil {
		return err
	}
	_, err = r.notify(ctx, message{
		Key:   key,
		Type:  models.NotificationSuccess,
		Title: fmt.Sprintf("Parabéns! %d meta(s) atingida(s)", len(g.Metrics)),
		Body:  fmt.Sprintf("O departamento %s atingiu a meta em: %s.", name, metricNames(g.Metrics)),
		Metadata: models.NotificationMetadata{
			DepartmentName: name,
			Count:          len(g.Metrics),
			MetricIDs:      ids(g.Metrics),
		},
	}, users)
	return err
}

// auditJustifications reminds admins of justifications waiting for review.
// There is no de-dup window: it fires on every run while any are overdue.
func (r *run) auditJustifications(ctx context.Context) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.MetricJustification{}).
		Where("status = ? AND created_at < ?", models.JustificationPending, r.now.Add(-justificationGrace).UTC()).
		Count(&n).Error; err != nil {
		return fmt.Errorf("count pending justifications: %w", err)
	}
	r.res.PendingJustifications = int(n)
	if n == 0 {
		return nil
	}
	admins, err := r.admins(ctx)
	if err != nil {
		return err
	}
	_, err = r.notify(ctx, message{
		Key:      dedup.Key{AlertType: dedup.AlertPendingJustifications},
		Type:     models.NotificationWarning,
		Title:    "Justificativas pendentes de revisão",
		Body:     fmt.Sprintf("%d justificativa(s) aguardam revisão há mais de 3 dias.", n),
		Metadata: models.NotificationMetadata{Count: int(n)},
	}, admins)
	return err
}

func ids(defs []models.MetricDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.ID
	}
	return out
}
