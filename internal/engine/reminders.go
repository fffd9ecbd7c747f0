package engine

import (
	"context"
	"fmt"

	"github.com/metricboard/notifier/internal/dedup"
	"github.com/metricboard/notifier/internal/models"
	"github.com/metricboard/notifier/internal/period"
	"github.com/metricboard/notifier/internal/settings"
	"github.com/sirupsen/logrus"
)

// remind runs one reminder pass for frequency f.
func (r *run) remind(ctx context.Context, cfg settings.Config, f models.Frequency) error {
	frame := period.For(f, r.now)
	log := r.log.WithFields(logrus.Fields{
		"frequency":    f,
		"period_start": frame.Window.StartDate(),
		"period_end":   frame.Window.EndDate(),
	})

	var defs []models.MetricDefinition
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND frequency = ?", true, f).
		Order("name ASC, id ASC").
		Find(&defs).Error; err != nil {
		log.WithError(err).Error("load metric definitions failed, skipping reminder pass")
		return nil
	}
	if len(defs) == 0 {
		return nil
	}

	pending, err := r.pending(ctx, defs, frame.Window)
	if err != nil {
		return err
	}
	log.WithField("pending", len(pending)).Debug("reminder pass scanned")

	for _, g := range groupByDepartment(pending) {
		if g.ID == nil {
			log.WithField("metrics", metricNames(g.Metrics)).Warn("pending metrics without department, nobody to remind")
			continue
		}
		key := dedup.Key{AlertType: dedup.ReminderAlertType(f), DepartmentID: g.ID}
		sent, err := r.alreadySent(ctx, key, dedup.ReminderWindow)
		if err != nil {
			return err
		}
		if sent {
			log.WithField("key", key.String()).Debug("reminder already sent recently")
			continue
		}
		users, err := r.departmentManagers(ctx, *g.ID)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			log.WithField("department_id", *g.ID).Warn("no active managers for department")
			continue
		}
		name, err := r.departmentName(ctx, g.ID)
		if err != nil {
			return err
		}
		msg := reminderMessage(frame, cfg, name, g.Metrics)
		msg.Key = key
		if _, err := r.notify(ctx, msg, users); err != nil {
			return err
		}
	}
	return nil
}

// pending returns the definitions with no value dated inside w, in input order.
func (r *run) pending(ctx context.Context, defs []models.MetricDefinition, w period.Window) ([]models.MetricDefinition, error) {
	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	var recorded []string
	if err := r.db.WithContext(ctx).Model(&models.MetricValue{}).
		Where("metrics_definition_id IN ? AND date >= ? AND date < ?", ids, w.StartDate(), w.EndExclusive()).
		Distinct("metrics_definition_id").
		Pluck("metrics_definition_id", &recorded).Error; err != nil {
		return nil, fmt.Errorf("check recorded values: %w", err)
	}
	have := make(map[string]bool, len(recorded))
	for _, id := range recorded {
		have[id] = true
	}
	var out []models.MetricDefinition
	for _, d := range defs {
		if !have[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func reminderMessage(frame period.Frame, cfg settings.Config, dept string, defs []models.MetricDefinition) message {
	n := len(defs)
	m := message{
		Type: models.NotificationWarning,
		Metadata: models.NotificationMetadata{
			DepartmentName: dept,
			Frequency:      frame.Frequency,
			Count:          n,
			PeriodStart:    frame.Window.StartDate(),
			PeriodEnd:      frame.Window.EndDate(),
		},
	}
	for _, d := range defs {
		m.Metadata.MetricIDs = append(m.Metadata.MetricIDs, d.ID)
	}
	body := fmt.Sprintf("Departamento %s: as seguintes métricas ainda não têm valor registrado (%s): %s.",
		dept, frame.Label, metricNames(defs))
	if frame.Frequency == models.FrequencyMonthly {
		m.Title = fmt.Sprintf("Lembrete: %d métrica(s) pendente(s)", n)
		m.Body = fmt.Sprintf("%s Registre os valores até o dia %d.", body, cfg.Monthly.DeadlineDay)
		return m
	}
	m.Title = fmt.Sprintf("Lembrete: %d métrica(s) %s pendente(s)", n, frame.Adjective)
	m.Body = body
	return m
}
