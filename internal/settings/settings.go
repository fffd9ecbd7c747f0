// Package settings loads the per-frequency reminder configuration from the
// notification_settings table, falling back to built-in defaults.
package settings

import (
	"context"
	"encoding/json"

	"github.com/metricboard/notifier/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting keys in notification_settings.
const (
	KeyDaily     = "daily_reminder"
	KeyWeekly    = "weekly_reminder"
	KeyMonthly   = "monthly_reminder"
	KeyQuarterly = "quarterly_reminder"
	KeyYearly    = "yearly_reminder"
)

// Keys lists every key read at run start.
var Keys = []string{KeyDaily, KeyWeekly, KeyMonthly, KeyQuarterly, KeyYearly}

type Daily struct {
	ReminderHour int `json:"reminder_hour"`
}

// Weekly.ReminderDay uses time.Weekday numbering (0 = Sunday).
type Weekly struct {
	ReminderDay  int `json:"reminder_day"`
	ReminderHour int `json:"reminder_hour"`
}

// Monthly.ReminderDays are days before DeadlineDay that trigger a reminder.
type Monthly struct {
	DeadlineDay  int   `json:"deadline_day"`
	ReminderDays []int `json:"reminder_days"`
}

type Quarterly struct {
	ReminderDaysBefore []int `json:"reminder_days_before"`
}

type Yearly struct {
	ReminderDaysBefore []int `json:"reminder_days_before"`
}

// Config is the merged reminder configuration for one run. Pass it by value.
type Config struct {
	Daily     Daily     `json:"daily"`
	Weekly    Weekly    `json:"weekly"`
	Monthly   Monthly   `json:"monthly"`
	Quarterly Quarterly `json:"quarterly"`
	Yearly    Yearly    `json:"yearly"`
}

// Defaults returns the built-in configuration. Each call returns fresh slices.
func Defaults() Config {
	return Config{
		Daily:     Daily{ReminderHour: 18},
		Weekly:    Weekly{ReminderDay: 1, ReminderHour: 9},
		Monthly:   Monthly{DeadlineDay: 25, ReminderDays: []int{3, 5, 7}},
		Quarterly: Quarterly{ReminderDaysBefore: []int{7, 15, 30}},
		Yearly:    Yearly{ReminderDaysBefore: []int{15, 30, 60}},
	}
}

// Load reads the reminder settings. It never fails: a read error, a missing or
// null key, or an undecodable value all leave the default in place.
func Load(ctx context.Context, db *gorm.DB, log logrus.FieldLogger) Config {
	cfg := Defaults()
	var rows []models.NotificationSetting
	if err := db.WithContext(ctx).Where("setting_key IN ?", Keys).Find(&rows).Error; err != nil {
		log.WithError(err).Warn("load notification settings failed, using defaults")
		return cfg
	}
	for _, row := range rows {
		if err := Apply(&cfg, row.SettingKey, row.SettingValue); err != nil {
			log.WithError(err).WithField("key", row.SettingKey).Warn("invalid notification setting, using default")
		}
	}
	return cfg
}

// Apply decodes raw over the default section named by key. Null or empty values are ignored.
// On a decode error the section is left at its previous value.
func Apply(cfg *Config, key string, raw []byte) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	switch key {
	case KeyDaily:
		return decodeInto(raw, &cfg.Daily)
	case KeyWeekly:
		return decodeInto(raw, &cfg.Weekly)
	case KeyMonthly:
		return decodeInto(raw, &cfg.Monthly)
	case KeyQuarterly:
		return decodeInto(raw, &cfg.Quarterly)
	case KeyYearly:
		return decodeInto(raw, &cfg.Yearly)
	}
	return nil
}

func decodeInto[T any](raw []byte, dst *T) error {
	next := *dst
	if err := json.Unmarshal(raw, &next); err != nil {
		return err
	}
	*dst = next
	return nil
}

// Seed writes the default row for every missing key and returns how many were
// inserted. Existing rows are never touched.
func Seed(ctx context.Context, db *gorm.DB) (int, error) {
	def := Defaults()
	sections := map[string]any{
		KeyDaily:     def.Daily,
		KeyWeekly:    def.Weekly,
		KeyMonthly:   def.Monthly,
		KeyQuarterly: def.Quarterly,
		KeyYearly:    def.Yearly,
	}
	created := 0
	for _, key := range Keys {
		raw, err := json.Marshal(sections[key])
		if err != nil {
			return created, err
		}
		row := models.NotificationSetting{SettingKey: key, SettingValue: datatypes.JSON(raw)}
		res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return created, res.Error
		}
		created += int(res.RowsAffected)
	}
	return created, nil
}
