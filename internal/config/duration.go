package config

import (
	"fmt"
	"strings"
	"time"
)

// parseDuration parses a non-negative Go duration string. ok is false for an
// empty value.
func parseDuration(path, raw string) (d time.Duration, ok bool, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false, nil
	}
	d, err = time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, false, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, true, nil
}

// ParseDurationOrDefault returns def for empty and zero values. Used for
// timeouts, where zero is never meant literally.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, _, err := parseDuration(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseIntervalOrDefault returns def only when raw is empty; an explicit "0s"
// is kept and means "disabled".
func ParseIntervalOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, ok, err := parseDuration(path, raw)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return d, nil
}
