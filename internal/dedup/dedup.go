// Package dedup answers "was this class of notification already sent
// recently?" by looking at the metadata of stored notifications.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/metricboard/notifier/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lookback windows.
const (
	ReminderWindow = 3 * 24 * time.Hour
	AuditWindow    = 7 * 24 * time.Hour
)

// Alert types stored in notification metadata.
const (
	AlertMetricsWithoutTargets = "metrics_without_targets"
	AlertGoalsAchieved         = "department_goals_achieved"
	AlertUnachievedSummary     = "admin_unachieved_goals_summary"
	AlertPendingJustifications = "pending_justifications"
)

// ReminderAlertType is the alert type of a pending-metric reminder.
func ReminderAlertType(f models.Frequency) string {
	return string(f) + "_metrics_reminder"
}

// Key identifies a notification class. A nil DepartmentID is a global key.
type Key struct {
	AlertType    string
	DepartmentID *string
}

func (k Key) String() string {
	if k.DepartmentID == nil {
		return k.AlertType
	}
	return k.AlertType + "/" + *k.DepartmentID
}

// Fingerprint is a stable hash of the key, used as a message header by sinks.
func (k Key) Fingerprint() string {
	h := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(h[:8])
}

// Checker queries the notifications table.
type Checker struct {
	db *gorm.DB
}

func NewChecker(db *gorm.DB) *Checker {
	return &Checker{db: db}
}

// RecentlyNotified reports whether a notification matching key was created
// in [since, until]. Rows stamped after until belong to a later run and are ignored.
func (c *Checker) RecentlyNotified(ctx context.Context, key Key, since, until time.Time) (bool, error) {
	q := c.db.WithContext(ctx).Model(&models.Notification{}).
		Where(datatypes.JSONQuery("metadata").Equals(key.AlertType, "alert_type")).
		Where("created_at >= ? AND created_at <= ?", since.UTC(), until.UTC())
	if key.DepartmentID != nil {
		q = q.Where(datatypes.JSONQuery("metadata").Equals(*key.DepartmentID, "department_id"))
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("dedup lookup %s: %w", key, err)
	}
	return n > 0, nil
}
