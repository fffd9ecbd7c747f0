package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/metricboard/notifier/internal/dedup"
	"github.com/metricboard/notifier/internal/models"
	"github.com/metricboard/notifier/internal/sender"
	"github.com/sirupsen/logrus"
)

const noDepartment = "Sem departamento"

// group is the metrics of one department; ID is nil for unassigned metrics.
type group struct {
	ID      *string
	Metrics []models.MetricDefinition
}

// groupByDepartment keeps departments in first-seen order.
func groupByDepartment(defs []models.MetricDefinition) []*group {
	var (
		out  []*group
		none *group
		byID = make(map[string]*group)
	)
	for _, d := range defs {
		if d.DepartmentID == nil {
			if none == nil {
				none = &group{}
				out = append(out, none)
			}
			none.Metrics = append(none.Metrics, d)
			continue
		}
		g, ok := byID[*d.DepartmentID]
		if !ok {
			g = &group{ID: d.DepartmentID}
			byID[*d.DepartmentID] = g
			out = append(out, g)
		}
		g.Metrics = append(g.Metrics, d)
	}
	return out
}

func metricNames(defs []models.MetricDefinition) string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return strings.Join(names, ", ")
}

func (r *run) departmentName(ctx context.Context, id *string) (string, error) {
	if id == nil {
		return noDepartment, nil
	}
	if r.depts == nil {
		var rows []models.Department
		if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
			return "", fmt.Errorf("load departments: %w", err)
		}
		r.depts = make(map[string]string, len(rows))
		for _, d := range rows {
			r.depts[d.ID] = d.Name
		}
	}
	if name, ok := r.depts[*id]; ok && name != "" {
		return name, nil
	}
	return *id, nil
}

// summarize renders "Dept: N; Dept2: M" over groups.
func (r *run) summarize(ctx context.Context, groups []*group) (string, error) {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		name, err := r.departmentName(ctx, g.ID)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s: %d", name, len(g.Metrics)))
	}
	return strings.Join(parts, "; "), nil
}

// departmentManagers returns user ids of active managers and admins assigned to deptID.
func (r *run) departmentManagers(ctx context.Context, deptID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Manager{}).
		Where("department_id = ? AND is_active = ? AND user_id IS NOT NULL AND role IN ?",
			deptID, true, []string{models.RoleManager, models.RoleAdmin}).
		Distinct("user_id").Order("user_id").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load managers of %s: %w", deptID, err)
	}
	return ids, nil
}

// admins returns user ids of every active admin.
func (r *run) admins(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Manager{}).
		Where("role = ? AND is_active = ? AND user_id IS NOT NULL", models.RoleAdmin, true).
		Distinct("user_id").Order("user_id").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load admins: %w", err)
	}
	return ids, nil
}

// alreadySent checks the de-dup window ending at the run's reference time.
func (r *run) alreadySent(ctx context.Context, key dedup.Key, window time.Duration) (bool, error) {
	return r.dedup.RecentlyNotified(ctx, key, r.now.Add(-window), r.now)
}

type message struct {
	Key      dedup.Key
	Type     string
	Title    string
	Body     string
	Metadata models.NotificationMetadata
}

// notify inserts one notification per user and hands the batch to the sink.
// It returns the number of rows inserted.
func (r *run) notify(ctx context.Context, m message, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	m.Metadata.AlertType = m.Key.AlertType
	m.Metadata.DepartmentID = m.Key.DepartmentID
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return 0, err
	}
	created := r.now.UTC()
	batch := make([]models.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		batch = append(batch, models.Notification{
			UserID:    uid,
			Title:     m.Title,
			Message:   m.Body,
			Type:      m.Type,
			Metadata:  meta,
			CreatedAt: created,
		})
	}
	if err := r.db.WithContext(ctx).Create(&batch).Error; err != nil {
		return 0, fmt.Errorf("insert %s notifications: %w", m.Key, err)
	}
	r.res.NotificationsSent += len(batch)
	sentCounter(m.Key.AlertType).Add(len(batch))
	r.log.WithFields(logrus.Fields{"key": m.Key.String(), "recipients": len(batch)}).Info("notifications sent")

	b := sender.Broadcast{Key: m.Key, Title: m.Title, Message: m.Body, Type: m.Type, Notifications: batch}
	if err := r.sink.Deliver(ctx, b); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"key":        m.Key.String(),
			"recipients": b.UserIDs(),
		}).Warn("broadcast delivery failed")
	}
	return len(batch), nil
}
