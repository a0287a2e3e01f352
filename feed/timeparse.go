package feed

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Clock is a local wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// clockParsers run in order; the first success wins.
var clockParsers = []func(string) (Clock, error){
	layoutParser("3:04 PM"),
	layoutParser("03:04 PM"),
	layoutParser("03:04 pm"),
	parseClockManually,
}

// ParseClock reads a 12-hour time such as "9:00 AM" or "09:00 AM".
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	failures := make([]string, 0, len(clockParsers))
	for _, parse := range clockParsers {
		c, err := parse(s)
		if err == nil {
			return c, nil
		}
		failures = append(failures, err.Error())
	}
	return Clock{}, errors.Errorf("unparseable time %q: %s", s, strings.Join(failures, "; "))
}

// ParseTimeRange splits "H:MM AM - H:MM AM" into its start and end.
func ParseTimeRange(s string) (Clock, Clock, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Clock{}, Clock{}, errors.Errorf("invalid time range %q", s)
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return Clock{}, Clock{}, err
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return Clock{}, Clock{}, err
	}
	return start, end, nil
}

func layoutParser(layout string) func(string) (Clock, error) {
	return func(s string) (Clock, error) {
		t, err := time.Parse(layout, s)
		if err != nil {
			return Clock{}, err
		}
		return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
	}
}

func parseClockManually(s string) (Clock, error) {
	clean := strings.ToUpper(strings.TrimSpace(s))
	pm := strings.HasSuffix(clean, "PM")
	if !pm && !strings.HasSuffix(clean, "AM") {
		return Clock{}, errors.Errorf("no AM/PM suffix in %q", s)
	}

	parts := strings.Split(strings.TrimSpace(clean[:len(clean)-2]), ":")
	if len(parts) != 2 {
		return Clock{}, errors.Errorf("expected H:MM in %q", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Clock{}, errors.Errorf("bad hour in %q", s)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Clock{}, errors.Errorf("bad minute in %q", s)
	}

	switch {
	case pm && hour != 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, errors.Errorf("time out of range in %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}
