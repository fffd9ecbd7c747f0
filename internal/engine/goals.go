package engine

import (
	"context"
	"fmt"

	"github.com/metricboard/notifier/internal/models"
	"gorm.io/gorm"
)

// Achieved reports whether value meets def's target. A nil target is never achieved.
func Achieved(def models.MetricDefinition, value float64) bool {
	if def.Target == nil {
		return false
	}
	if def.LowerIsBetter {
		return value <= *def.Target
	}
	return value >= *def.Target
}

// GoalStatus is the latest standing of one metric against its target.
type GoalStatus struct {
	Definition models.MetricDefinition
	// Latest is nil when no value was ever recorded.
	Latest   *models.MetricValue
	Achieved bool
}

// GoalStatuses evaluates every active metric that has a target.
func GoalStatuses(ctx context.Context, db *gorm.DB) ([]GoalStatus, error) {
	var defs []models.MetricDefinition
	if err := db.WithContext(ctx).
		Where("is_active = ? AND target IS NOT NULL", true).
		Order("name ASC, id ASC").
		Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("load metrics with targets: %w", err)
	}
	out := make([]GoalStatus, 0, len(defs))
	for _, d := range defs {
		var latest []models.MetricValue
		if err := db.WithContext(ctx).
			Where("metrics_definition_id = ?", d.ID).
			Order("date DESC").Limit(1).
			Find(&latest).Error; err != nil {
			return nil, fmt.Errorf("latest value of %s: %w", d.ID, err)
		}
		st := GoalStatus{Definition: d}
		if len(latest) == 1 {
			st.Latest = &latest[0]
			st.Achieved = Achieved(d, latest[0].Value)
		}
		out = append(out, st)
	}
	return out, nil
}
