package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts 5- and 6-field (with seconds) specs and @descriptors.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// NormalizeSpec turns a schedule string into a cron spec.
//
// Accepted forms:
//   - cron: "0 7 * * *", "0 30 7 * * 1-5", "@daily", "@every 55m"
//   - interval: "55m", "2h30m", or "HH:MM" meaning hours and minutes ("00:50")
//
// The prefixes "cron:" and "every:" force one interpretation.
func NormalizeSpec(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule spec required")
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		s = strings.TrimSpace(s[len("cron:"):])
		if s == "" {
			return "", fmt.Errorf("cron spec required after 'cron:'")
		}
		return s, nil
	case strings.HasPrefix(low, "every:"):
		return interval(strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return s, nil
	default:
		return interval(s)
	}
}

func interval(v string) (string, error) {
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return "", fmt.Errorf("invalid schedule %q (use cron like '0 7 * * *', HH:MM like '02:30', or a duration like '55m')", v)
		}
	}
	if d <= 0 {
		return "", fmt.Errorf("interval must be > 0")
	}
	return "@every " + d.String(), nil
}

// Validate reports whether raw is an accepted schedule.
func Validate(raw string) error {
	spec, err := NormalizeSpec(raw)
	if err != nil {
		return err
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", raw, err)
	}
	return nil
}
