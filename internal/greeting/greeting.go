// Package greeting picks the salutation that precedes a notification, based on
// the active day segment.
package greeting

import (
	"fmt"
	"math/rand"
)

// Rand is the subset of *rand.Rand used for selection.
type Rand interface {
	Intn(n int) int
}

// Table maps a day segment name to its candidate greetings.
type Table map[string][]string

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// WithOverrides returns the table to use for a single call. Overrides may map a
// segment to a string or to a list of strings; only segments already present
// in t are replaced. t itself is never modified: when there is anything to
// override a copy is returned.
func (t Table) WithOverrides(overrides map[string]any) Table {
	if len(overrides) == 0 {
		return t
	}
	out := t.Clone()
	for seg, raw := range overrides {
		if _, ok := out[seg]; !ok {
			continue
		}
		if list, ok := toList(raw); ok {
			out[seg] = list
		}
	}
	return out
}

func toList(v any) ([]string, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		return []string{x}, true
	case []string:
		return append([]string(nil), x...), true
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			if it == nil {
				continue
			}
			out = append(out, fmt.Sprint(it))
		}
		return out, true
	default:
		return []string{fmt.Sprint(x)}, true
	}
}

// Select returns a uniformly random greeting for segment, or "" when skip is
// set or the segment has no greetings. A nil rnd uses the global source.
func (t Table) Select(segment string, skip bool, rnd Rand) string {
	if skip {
		return ""
	}
	options := t[segment]
	if len(options) == 0 {
		return ""
	}
	if rnd == nil {
		return options[rand.Intn(len(options))]
	}
	return options[rnd.Intn(len(options))]
}

// Defaults returns the built-in greeting table.
func Defaults() Table {
	return Table{
		"morning":   {"Buongiorno", "Ben alzato", "Salve", "Buondì"},
		"afternoon": {"Buon pomeriggio", "Ciao", "Ben ritrovato"},
		"evening":   {"Buonasera", "Buona serata", "Ben tornato a casa"},
		"night":     {"Buonanotte", "Sogni d'oro", "È tardi"},
	}
}
