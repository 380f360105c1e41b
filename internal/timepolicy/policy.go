// Package timepolicy resolves time-of-day policy: which named day segment is
// active (and its playback volume) and whether the do-not-disturb window applies.
package timepolicy

import (
	"fmt"
	"sort"
)

// Segment is a named span of the day starting at Start and lasting until the
// next segment's start.
type Segment struct {
	Name   string
	Start  ClockTime
	Volume float64
}

// SegmentTable is a start-ordered list of segments. The zero value resolves to
// no segment.
type SegmentTable struct {
	segs []Segment
}

// NewSegmentTable copies and sorts segs by start time. Volumes must lie in [0,1].
func NewSegmentTable(segs []Segment) (SegmentTable, error) {
	out := append([]Segment(nil), segs...)
	seen := make(map[string]struct{}, len(out))
	for _, s := range out {
		if s.Volume < 0 || s.Volume > 1 {
			return SegmentTable{}, fmt.Errorf("segment %q: volume %v out of range [0,1]", s.Name, s.Volume)
		}
		if _, dup := seen[s.Name]; dup {
			return SegmentTable{}, fmt.Errorf("segment %q defined twice", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return SegmentTable{segs: out}, nil
}

// Segments returns a copy of the ordered segments.
func (t SegmentTable) Segments() []Segment { return append([]Segment(nil), t.segs...) }

// Resolve returns the segment active at now: the latest segment whose start is
// <= now, or the last segment of the day when now precedes every start.
func (t SegmentTable) Resolve(now ClockTime) (name string, volume float64) {
	if len(t.segs) == 0 {
		return "", 0
	}
	found := -1
	for i, s := range t.segs {
		if now < s.Start {
			break
		}
		found = i
	}
	if found < 0 {
		found = len(t.segs) - 1
	}
	s := t.segs[found]
	return s.Name, s.Volume
}

// QuietHours is a do-not-disturb window. Start > End means the window spans
// midnight. Start == End never matches.
type QuietHours struct {
	Start ClockTime
	End   ClockTime
}

// Active reports whether now falls in [Start, End).
func (q QuietHours) Active(now ClockTime) bool {
	if q.Start <= q.End {
		return q.Start <= now && now < q.End
	}
	return now >= q.Start || now < q.End
}
