package render

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timeParser returns ok=false when the input is not in its format.
type timeParser func(s string, now time.Time) (time.Time, bool)

var timeParsers = []timeParser{
	parseAbsolute,
	parseRelative,
	parseMonthDay,
	parsePlain,
}

// ParseTimestamp tries each parser in order and falls back to now.
func ParseTimestamp(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	for _, parse := range timeParsers {
		if t, ok := parse(s, now); ok {
			return t
		}
	}
	return now
}

func parseAbsolute(s string, _ time.Time) (time.Time, bool) {
	t, err := time.Parse(time.RubyDate, s)
	return t, err == nil
}

var (
	dayClockRe = regexp.MustCompile(`^(今天|昨天|today|yesterday)\s*(\d{1,2}):(\d{2})$`)
	agoRe      = regexp.MustCompile(`^(\d+)\s*(分钟前|小时前|秒前|minutes? ago|hours? ago|seconds? ago)$`)
	monthDayRe = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})\s+(\d{1,2}):(\d{2})$`)
)

func parseRelative(s string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(s)
	if lower == "刚刚" || lower == "just now" {
		return now, true
	}

	if m := dayClockRe.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[2])
		minute, _ := strconv.Atoi(m[3])
		if hour > 23 || minute > 59 {
			return time.Time{}, false
		}
		day := now
		if m[1] == "昨天" || m[1] == "yesterday" {
			day = now.AddDate(0, 0, -1)
		}
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), true
	}

	if m := agoRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		unit := time.Minute
		switch {
		case strings.HasPrefix(m[2], "小时") || strings.HasPrefix(m[2], "hour"):
			unit = time.Hour
		case strings.HasPrefix(m[2], "秒") || strings.HasPrefix(m[2], "second"):
			unit = time.Second
		}
		return now.Add(-time.Duration(n) * unit), true
	}

	return time.Time{}, false
}

// parseMonthDay handles "MM-DD HH:MM" in the current year.
func parseMonthDay(s string, now time.Time) (time.Time, bool) {
	m := monthDayRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	minute, _ := strconv.Atoi(m[4])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(now.Year(), time.Month(month), day, hour, minute, 0, 0, now.Location()), true
}

func parsePlain(s string, now time.Time) (time.Time, bool) {
	for _, layout := range []string{time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
