package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/model"
)

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

// Rule is a parsed recurrence rule. The anchor instant comes from the task, not the rule.
type Rule struct {
	Freq     Frequency
	Interval int
	Count    int
	Until    *time.Time
	ByDay    []time.Weekday
}

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// ParseRule parses an RRULE-style string. Local UNTIL values are read in loc.
// Every failure is a *apperr.ValidationError naming the offending rule part.
func ParseRule(raw string, loc *time.Location) (Rule, error) {
	if loc == nil {
		loc = time.UTC
	}
	text := strings.TrimSpace(raw)
	if len(text) >= 6 && strings.EqualFold(text[:6], "RRULE:") {
		text = strings.TrimSpace(text[6:])
	}
	if text == "" {
		return Rule{}, apperr.Validation("rrule", "is empty")
	}

	rule := Rule{Interval: 1}
	seen := make(map[string]bool)
	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if !ok || key == "" {
			return Rule{}, apperr.Validation("rrule", fmt.Sprintf("malformed part %q", part))
		}
		if seen[key] {
			return Rule{}, apperr.Validation(key, "given more than once")
		}
		seen[key] = true

		switch key {
		case "FREQ":
			switch Frequency(strings.ToUpper(value)) {
			case Daily, Weekly, Monthly:
				rule.Freq = Frequency(strings.ToUpper(value))
			default:
				return Rule{}, apperr.Validation("FREQ", fmt.Sprintf("unsupported frequency %q", value))
			}
		case "INTERVAL":
			n, err := positiveInt(value)
			if err != nil {
				return Rule{}, apperr.Validation("INTERVAL", err.Error())
			}
			rule.Interval = n
		case "COUNT":
			n, err := positiveInt(value)
			if err != nil {
				return Rule{}, apperr.Validation("COUNT", err.Error())
			}
			rule.Count = n
		case "UNTIL":
			until, err := parseUntil(value, loc)
			if err != nil {
				return Rule{}, apperr.Validation("UNTIL", err.Error())
			}
			rule.Until = &until
		case "BYDAY":
			days, err := parseByDay(value)
			if err != nil {
				return Rule{}, apperr.Validation("BYDAY", err.Error())
			}
			rule.ByDay = days
		case "WKST":
			if strings.ToUpper(value) != "MO" {
				return Rule{}, apperr.Validation("WKST", "only MO is supported")
			}
		default:
			return Rule{}, apperr.Validation(key, "unsupported rule part")
		}
	}

	if rule.Freq == "" {
		return Rule{}, apperr.Validation("FREQ", "is required")
	}
	if rule.Count > 0 && rule.Until != nil {
		return Rule{}, apperr.Validation("UNTIL", "cannot be combined with COUNT")
	}
	if rule.Freq == Monthly && len(rule.ByDay) > 0 {
		return Rule{}, apperr.Validation("BYDAY", "not supported with MONTHLY")
	}
	return rule, nil
}

// CheckAnchor rejects an anchor that is not itself an occurrence of r. With BYDAY
// the anchor's weekday in loc must be one of the listed days.
func (r Rule) CheckAnchor(anchor time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	wd := anchor.In(loc).Weekday()
	if len(r.ByDay) > 0 && !containsWeekday(r.ByDay, wd) {
		return apperr.Validation("due_at", fmt.Sprintf("anchor falls on %s, which BYDAY does not list", wd))
	}
	return nil
}

func positiveInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer, got %q", value)
	}
	return n, nil
}

func parseUntil(value string, loc *time.Location) (time.Time, error) {
	switch {
	case len(value) == 8:
		d, err := time.ParseInLocation("20060102", value, loc)
		if err != nil {
			break
		}
		// A date-only UNTIL includes the whole day.
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	case strings.HasSuffix(strings.ToUpper(value), "Z"):
		if t, err := time.Parse("20060102T150405Z", strings.ToUpper(value)); err == nil {
			return t, nil
		}
	default:
		if t, err := time.ParseInLocation("20060102T150405", strings.ToUpper(value), loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("expected YYYYMMDD or YYYYMMDDTHHMMSS[Z], got %q", value)
}

func parseByDay(value string) ([]time.Weekday, error) {
	if value == "" {
		return nil, fmt.Errorf("is empty")
	}
	set := make(map[time.Weekday]bool)
	for _, code := range strings.Split(value, ",") {
		wd, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(code))]
		if !ok {
			return nil, fmt.Errorf("unsupported day %q", code)
		}
		set[wd] = true
	}
	days := make([]time.Weekday, 0, len(set))
	for wd := range set {
		days = append(days, wd)
	}
	sort.Slice(days, func(i, j int) bool { return weekOffset(days[i]) < weekOffset(days[j]) })
	return days, nil
}

// weekOffset is the day index within a Monday-first week.
func weekOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// Expand returns the due instants of task inside [windowStart, windowEnd], inclusive,
// in chronological order. A one-off task yields its due instant if it falls in the window.
func Expand(task model.Task, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if windowEnd.Before(windowStart) {
		return nil, apperr.InvalidInput("window", "start must not be after end")
	}
	if !task.IsRecurring() {
		if task.DueAt == nil || task.DueAt.Before(windowStart) || task.DueAt.After(windowEnd) {
			return nil, nil
		}
		return []time.Time{*task.DueAt}, nil
	}
	if task.DueAt == nil {
		return nil, apperr.Validation("due_at", "recurring task needs an anchor instant")
	}
	anchor := *task.DueAt
	rule, err := ParseRule(task.RRule, anchor.Location())
	if err != nil {
		return nil, err
	}
	return rule.Between(anchor, windowStart, windowEnd), nil
}

// Between expands the rule from anchor and keeps instants inside [start, end].
func (r Rule) Between(anchor, start, end time.Time) []time.Time {
	var out []time.Time
	if anchor.After(end) || (r.Until != nil && r.Until.Before(start)) {
		return out
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 1
	}

	switch r.Freq {
	case Daily, Weekly, Monthly:
	default:
		return out
	}

	emitted := 0
	for period := r.firstPeriod(anchor, start, interval); ; period++ {
		// Stop on period boundaries too: a filtered period may produce nothing.
		begin := r.periodStart(anchor, period, interval)
		if begin.After(end) || (r.Until != nil && begin.After(*r.Until)) {
			return out
		}
		for _, at := range r.periodInstants(anchor, period, interval) {
			if at.Before(anchor) {
				continue
			}
			if r.Until != nil && at.After(*r.Until) {
				return out
			}
			if r.Count > 0 && emitted >= r.Count {
				return out
			}
			emitted++
			if at.After(end) {
				return out
			}
			if !at.Before(start) {
				out = append(out, at)
			}
		}
	}
}

// firstPeriod skips whole periods before start. COUNT rules always walk from the
// anchor because earlier occurrences consume the count.
func (r Rule) firstPeriod(anchor, start time.Time, interval int) int {
	if r.Count > 0 || !start.After(anchor) {
		return 0
	}
	var p int
	switch r.Freq {
	case Daily:
		p = int(start.Sub(anchor).Hours()/24)/interval - 1
	case Weekly:
		p = int(start.Sub(anchor).Hours()/24)/(7*interval) - 1
	case Monthly:
		months := (start.Year()-anchor.Year())*12 + int(start.Month()-anchor.Month())
		p = months/interval - 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// periodStart is never later than any instant of the period.
func (r Rule) periodStart(anchor time.Time, period, interval int) time.Time {
	switch r.Freq {
	case Weekly:
		if len(r.ByDay) > 0 {
			return anchor.AddDate(0, 0, 7*period*interval-weekOffset(anchor.Weekday()))
		}
		return anchor.AddDate(0, 0, 7*period*interval)
	case Monthly:
		return time.Date(anchor.Year(), anchor.Month()+time.Month(period*interval), 1,
			anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
	default:
		return anchor.AddDate(0, 0, period*interval)
	}
}

func (r Rule) periodInstants(anchor time.Time, period, interval int) []time.Time {
	switch r.Freq {
	case Daily:
		at := anchor.AddDate(0, 0, period*interval)
		if len(r.ByDay) > 0 && !containsWeekday(r.ByDay, at.Weekday()) {
			return nil
		}
		return []time.Time{at}
	case Weekly:
		if len(r.ByDay) == 0 {
			return []time.Time{anchor.AddDate(0, 0, 7*period*interval)}
		}
		weekStart := r.periodStart(anchor, period, interval)
		out := make([]time.Time, 0, len(r.ByDay))
		for _, wd := range r.ByDay {
			out = append(out, weekStart.AddDate(0, 0, weekOffset(wd)))
		}
		return out
	case Monthly:
		first := r.periodStart(anchor, period, interval)
		day := anchor.Day()
		if last := daysInMonth(first.Month(), first.Year()); day > last {
			day = last
		}
		return []time.Time{first.AddDate(0, 0, day-1)}
	}
	return nil
}

func containsWeekday(days []time.Weekday, wd time.Weekday) bool {
	for _, d := range days {
		if d == wd {
			return true
		}
	}
	return false
}

func daysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
