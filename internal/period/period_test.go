package period

import (
	"testing"
	"time"

	"github.com/metricboard/notifier/internal/models"
	"github.com/metricboard/notifier/internal/settings"
	"github.com/stretchr/testify/assert"
)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 30, 0, 0, time.UTC)
}

func TestQuarterBoundaries(t *testing.T) {
	cases := []struct {
		now        time.Time
		start, end string
	}{
		{at(2024, time.January, 1, 0), "2024-01-01", "2024-03-31"},
		{at(2024, time.February, 29, 12), "2024-01-01", "2024-03-31"},
		{at(2024, time.April, 1, 0), "2024-04-01", "2024-06-30"},
		{at(2024, time.September, 30, 23), "2024-07-01", "2024-09-30"},
		{at(2024, time.December, 5, 8), "2024-10-01", "2024-12-31"},
	}
	for _, c := range cases {
		w := Quarter(c.now)
		assert.Equal(t, c.start, w.StartDate(), c.now.String())
		assert.Equal(t, c.end, w.EndDate(), c.now.String())
	}
}

func TestWeekIsMondayToSunday(t *testing.T) {
	// 2024-05-19 is a Sunday, 2024-05-20 a Monday.
	sunday := Week(at(2024, time.May, 19, 10))
	assert.Equal(t, "2024-05-13", sunday.StartDate())
	assert.Equal(t, "2024-05-19", sunday.EndDate())

	monday := Week(at(2024, time.May, 20, 10))
	assert.Equal(t, "2024-05-20", monday.StartDate())
	assert.Equal(t, "2024-05-26", monday.EndDate())
	assert.Equal(t, "2024-05-27", monday.EndExclusive())
}

func TestMonthAndYear(t *testing.T) {
	m := Month(at(2024, time.February, 10, 0))
	assert.Equal(t, "2024-02-01", m.StartDate())
	assert.Equal(t, "2024-02-29", m.EndDate())

	y := Year(at(2023, time.June, 1, 0))
	assert.Equal(t, "2023-01-01", y.StartDate())
	assert.Equal(t, "2023-12-31", y.EndDate())
}

func TestForLabels(t *testing.T) {
	now := at(2024, time.May, 20, 10)
	s := For(models.FrequencyMonthly, now)
	assert.Equal(t, "deste mês", s.Label)
	assert.Equal(t, "mensal(is)", s.Adjective)
	assert.Equal(t, "2024-05-01", s.Window.StartDate())

	d := For(models.FrequencyDaily, now)
	assert.Equal(t, "hoje", d.Label)
	assert.Equal(t, "2024-05-20", d.Window.StartDate())
	assert.Equal(t, "2024-05-20", d.Window.EndDate())
}

func TestDaysUntilAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	from := time.Date(2024, time.March, 9, 23, 0, 0, 0, ny)
	to := time.Date(2024, time.March, 11, 0, 0, 0, 0, ny)
	assert.Equal(t, 2, DaysUntil(from, to))
	assert.Equal(t, 0, DaysUntil(from, from.Add(30*time.Minute)))
}

func TestDueMonthly(t *testing.T) {
	cfg := settings.Defaults()
	// 2024-05-20 is a Monday; hour 10 avoids the weekly hour.
	assert.Equal(t, []models.Frequency{models.FrequencyMonthly}, Due(cfg, at(2024, time.May, 20, 10)))
	assert.Equal(t, []models.Frequency{models.FrequencyMonthly}, Due(cfg, at(2024, time.May, 22, 10)))
	assert.Empty(t, Due(cfg, at(2024, time.May, 21, 10)))
	assert.Empty(t, Due(cfg, at(2024, time.May, 26, 10)))
}

func TestDueDailyAndWeekly(t *testing.T) {
	cfg := settings.Defaults()
	assert.Equal(t, []models.Frequency{models.FrequencyDaily}, Due(cfg, at(2024, time.May, 21, 18)))
	assert.Equal(t, []models.Frequency{models.FrequencyWeekly}, Due(cfg, at(2024, time.May, 27, 9)))
	// Sunday at 9 is not the configured weekday.
	assert.Empty(t, Due(cfg, at(2024, time.May, 26, 9)))
}

func TestDueQuarterlyAndYearly(t *testing.T) {
	cfg := settings.Defaults()
	// 2024-03-24: 7 days before quarter end.
	assert.Contains(t, Due(cfg, at(2024, time.March, 24, 10)), models.FrequencyQuarterly)
	// 2024-12-16: 15 days before quarter end and year end.
	due := Due(cfg, at(2024, time.December, 16, 10))
	assert.Contains(t, due, models.FrequencyQuarterly)
	assert.Contains(t, due, models.FrequencyYearly)
	// 2024-11-01: 60 days before year end, 60 before quarter end (not configured).
	assert.Equal(t, []models.Frequency{models.FrequencyYearly}, Due(cfg, at(2024, time.November, 1, 10)))
}
