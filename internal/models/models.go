package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Frequency is the expected recording cadence of a metric.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Frequencies lists every frequency class in evaluation order.
var Frequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly}

// Notification types shown by the in-app notification center.
const (
	NotificationInfo    = "info"
	NotificationWarning = "warning"
	NotificationSuccess = "success"
	NotificationError   = "error"
)

// Manager roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// Justification statuses.
const (
	JustificationPending  = "pending"
	JustificationApproved = "approved"
	JustificationRejected = "rejected"
)

// Log levels written to the logs table.
const (
	LogInfo  = "info"
	LogWarn  = "warning"
	LogError = "error"
)

// MetricDefinition is a KPI owned by a department. Written by the CRUD app; read-only here.
type MetricDefinition struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	Name          string    `gorm:"size:256" json:"name"`
	DepartmentID  *string   `gorm:"size:64;index" json:"department_id"`
	Frequency     Frequency `gorm:"size:16;index" json:"frequency"`
	Target        *float64  `json:"target"`
	LowerIsBetter bool      `json:"lower_is_better"`
	IsActive      bool      `gorm:"index" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (MetricDefinition) TableName() string { return "metrics_definition" }

// MetricValue is one recorded observation. Date is a civil date (no time of day).
type MetricValue struct {
	ID                  string    `gorm:"primaryKey;size:64" json:"id"`
	MetricsDefinitionID string    `gorm:"size:64;index:idx_values_def_date,priority:1" json:"metrics_definition_id"`
	Value               float64   `json:"value"`
	Date                time.Time `gorm:"type:date;index:idx_values_def_date,priority:2" json:"date"`
	CreatedAt           time.Time `json:"created_at"`
}

func (MetricValue) TableName() string { return "metrics_values" }

// Department is used for display text only.
type Department struct {
	ID   string `gorm:"primaryKey;size:64" json:"id"`
	Name string `gorm:"size:128" json:"name"`
}

func (Department) TableName() string { return "departments" }

// Manager links a user to a department with a role. Notifications fan out to UserID.
type Manager struct {
	ID           string  `gorm:"primaryKey;size:64" json:"id"`
	UserID       *string `gorm:"size:64;index" json:"user_id"`
	DepartmentID *string `gorm:"size:64;index" json:"department_id"`
	Role         string  `gorm:"size:16;index" json:"role"` // admin | manager
	IsActive     bool    `gorm:"index" json:"is_active"`
}

func (Manager) TableName() string { return "managers" }

// MetricJustification explains a missed target and waits for review.
type MetricJustification struct {
	ID                  string    `gorm:"primaryKey;size:64" json:"id"`
	MetricsDefinitionID string    `gorm:"size:64;index" json:"metrics_definition_id"`
	Status              string    `gorm:"size:16;index" json:"status"` // pending | approved | rejected
	Justification       string    `gorm:"type:text" json:"justification"`
	CreatedAt           time.Time `gorm:"index" json:"created_at"`
}

func (MetricJustification) TableName() string { return "metric_justifications" }

// Notification is an in-app message for one user. Metadata carries the de-dup key (alert_type, department_id).
type Notification struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	UserID    string         `gorm:"size:64;index" json:"user_id"`
	Title     string         `gorm:"size:256" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Type      string         `gorm:"size:16" json:"type"` // info | warning | success | error
	Metadata  datatypes.JSON `json:"metadata"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// NotificationMetadata is the JSON shape stored in Notification.Metadata.
type NotificationMetadata struct {
	AlertType      string    `json:"alert_type"`
	DepartmentID   *string   `json:"department_id,omitempty"`
	DepartmentName string    `json:"department_name,omitempty"`
	Frequency      Frequency `json:"frequency,omitempty"`
	MetricIDs      []string  `json:"metric_ids,omitempty"`
	Count          int       `json:"count,omitempty"`
	PeriodStart    string    `json:"period_start,omitempty"`
	PeriodEnd      string    `json:"period_end,omitempty"`
}

// NotificationSetting is a key/value row; SettingValue is a JSON object.
type NotificationSetting struct {
	SettingKey   string         `gorm:"primaryKey;size:64" json:"setting_key"`
	SettingValue datatypes.JSON `json:"setting_value"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (NotificationSetting) TableName() string { return "notification_settings" }

// Log is an append-only audit row.
type Log struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	Level     string         `gorm:"size:16;index" json:"level"`
	Message   string         `gorm:"type:text" json:"message"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (Log) TableName() string { return "logs" }

func (l *Log) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// All returns every model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Department{},
		&Manager{},
		&MetricDefinition{},
		&MetricValue{},
		&MetricJustification{},
		&Notification{},
		&NotificationSetting{},
		&Log{},
	}
}
