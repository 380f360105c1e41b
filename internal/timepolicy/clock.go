package timepolicy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a time of day in seconds since midnight, in [0, 86400).
type ClockTime int

const day = 24 * 60 * 60

// Clock builds a ClockTime from hour/minute/second.
func Clock(h, m, s int) ClockTime { return ClockTime(h*3600 + m*60 + s) }

// ClockOf returns the wall-clock time of day of t in t's location.
func ClockOf(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return Clock(h, m, s)
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(raw string) (ClockTime, error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM[:SS]", raw)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || len(p) == 0 || len(p) > 2 {
			return 0, fmt.Errorf("invalid time of day %q", raw)
		}
		if n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q: field out of range", raw)
		}
		vals[i] = n
	}
	return Clock(vals[0], vals[1], vals[2]), nil
}

func (c ClockTime) String() string {
	v := int(c) % day
	if v < 0 {
		v += day
	}
	if v%60 == 0 {
		return fmt.Sprintf("%02d:%02d", v/3600, v/60%60)
	}
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, v/60%60, v%60)
}
