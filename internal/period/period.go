// Package period maps a frequency class and a reference instant to the
// civil-date window a metric value must fall in, and decides which reminder
// classes are due.
package period

import (
	"slices"
	"time"

	"github.com/metricboard/notifier/internal/models"
	"github.com/metricboard/notifier/internal/settings"
)

const dateLayout = "2006-01-02"

// Window is an inclusive range of civil dates. Start and End are midnight in
// the reference location.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) StartDate() string { return w.Start.Format(dateLayout) }
func (w Window) EndDate() string   { return w.End.Format(dateLayout) }

// EndExclusive is the day after End, for `date < ?` bounds.
func (w Window) EndExclusive() string { return w.End.AddDate(0, 0, 1).Format(dateLayout) }

// Civil truncates t to midnight in its own location.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func Day(now time.Time) Window {
	d := Civil(now)
	return Window{Start: d, End: d}
}

// Week is the ISO week (Monday to Sunday) containing now.
func Week(now time.Time) Window {
	d := Civil(now)
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 6)}
}

func Month(now time.Time) Window {
	y, m, _ := now.Date()
	loc := now.Location()
	return Window{
		Start: time.Date(y, m, 1, 0, 0, 0, 0, loc),
		End:   time.Date(y, m+1, 0, 0, 0, 0, 0, loc),
	}
}

func Quarter(now time.Time) Window {
	y, m, _ := now.Date()
	loc := now.Location()
	q := (int(m) - 1) / 3
	first := time.Month(q*3 + 1)
	return Window{
		Start: time.Date(y, first, 1, 0, 0, 0, 0, loc),
		End:   time.Date(y, first+3, 0, 0, 0, 0, 0, loc),
	}
}

func Year(now time.Time) Window {
	y := now.Year()
	loc := now.Location()
	return Window{
		Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
		End:   time.Date(y, time.December, 31, 0, 0, 0, 0, loc),
	}
}

// Frame is the scan window of a frequency plus its display texts.
type Frame struct {
	Frequency models.Frequency
	Window    Window
	// Label names the period in a message, e.g. "deste mês".
	Label string
	// Adjective qualifies the metric count in a title, e.g. "semanal(is)".
	Adjective string
}

// For returns the window containing now for frequency f.
// Unknown frequencies get the daily window.
func For(f models.Frequency, now time.Time) Frame {
	s := Frame{Frequency: f, Label: Label(f), Adjective: Adjective(f)}
	switch f {
	case models.FrequencyWeekly:
		s.Window = Week(now)
	case models.FrequencyMonthly:
		s.Window = Month(now)
	case models.FrequencyQuarterly:
		s.Window = Quarter(now)
	case models.FrequencyYearly:
		s.Window = Year(now)
	default:
		s.Window = Day(now)
	}
	return s
}

func Label(f models.Frequency) string {
	switch f {
	case models.FrequencyWeekly:
		return "desta semana"
	case models.FrequencyMonthly:
		return "deste mês"
	case models.FrequencyQuarterly:
		return "deste trimestre"
	case models.FrequencyYearly:
		return "deste ano"
	}
	return "hoje"
}

func Adjective(f models.Frequency) string {
	switch f {
	case models.FrequencyWeekly:
		return "semanal(is)"
	case models.FrequencyMonthly:
		return "mensal(is)"
	case models.FrequencyQuarterly:
		return "trimestral(is)"
	case models.FrequencyYearly:
		return "anual(is)"
	}
	return "diária(s)"
}

// DaysUntil counts calendar days from the civil date of from to the civil date of to.
// DST shifts do not affect the result.
func DaysUntil(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Due returns the frequency classes whose reminder fires at now, in
// evaluation order. now must already be in the configured location.
func Due(cfg settings.Config, now time.Time) []models.Frequency {
	var due []models.Frequency
	if now.Hour() == cfg.Daily.ReminderHour {
		due = append(due, models.FrequencyDaily)
	}
	if int(now.Weekday()) == cfg.Weekly.ReminderDay && now.Hour() == cfg.Weekly.ReminderHour {
		due = append(due, models.FrequencyWeekly)
	}
	if slices.Contains(cfg.Monthly.ReminderDays, cfg.Monthly.DeadlineDay-now.Day()) {
		due = append(due, models.FrequencyMonthly)
	}
	if slices.Contains(cfg.Quarterly.ReminderDaysBefore, DaysUntil(now, Quarter(now).End)) {
		due = append(due, models.FrequencyQuarterly)
	}
	if slices.Contains(cfg.Yearly.ReminderDaysBefore, DaysUntil(now, Year(now).End)) {
		due = append(due, models.FrequencyYearly)
	}
	return due
}
