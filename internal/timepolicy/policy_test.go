package timepolicy

import (
	"testing"
	"time"
)

func defaultTable(t *testing.T) SegmentTable {
	t.Helper()
	tbl, err := NewSegmentTable([]Segment{
		{Name: "night", Start: Clock(22, 0, 0), Volume: 0.1},
		{Name: "morning", Start: Clock(7, 0, 0), Volume: 0.35},
		{Name: "evening", Start: Clock(19, 0, 0), Volume: 0.3},
		{Name: "afternoon", Start: Clock(12, 0, 0), Volume: 0.4},
	})
	if err != nil {
		t.Fatalf("NewSegmentTable error: %v", err)
	}
	return tbl
}

func TestResolveSegment(t *testing.T) {
	t.Parallel()
	tbl := defaultTable(t)
	tests := []struct {
		at     ClockTime
		name   string
		volume float64
	}{
		{at: Clock(0, 0, 0), name: "night", volume: 0.1},
		{at: Clock(6, 59, 59), name: "night", volume: 0.1},
		{at: Clock(7, 0, 0), name: "morning", volume: 0.35},
		{at: Clock(8, 0, 0), name: "morning", volume: 0.35},
		{at: Clock(11, 59, 59), name: "morning", volume: 0.35},
		{at: Clock(12, 0, 0), name: "afternoon", volume: 0.4},
		{at: Clock(19, 0, 0), name: "evening", volume: 0.3},
		{at: Clock(21, 59, 59), name: "evening", volume: 0.3},
		{at: Clock(22, 0, 0), name: "night", volume: 0.1},
		{at: Clock(23, 30, 0), name: "night", volume: 0.1},
	}
	for _, tt := range tests {
		name, vol := tbl.Resolve(tt.at)
		if name != tt.name || vol != tt.volume {
			t.Fatalf("Resolve(%s) = (%s, %v), want (%s, %v)", tt.at, name, vol, tt.name, tt.volume)
		}
	}
}

func TestResolveSegmentTotalAndLeftContinuous(t *testing.T) {
	t.Parallel()
	tbl := defaultTable(t)
	segs := tbl.Segments()
	starts := map[ClockTime]string{}
	for _, s := range segs {
		starts[s.Start] = s.Name
	}

	prev, _ := tbl.Resolve(ClockTime(day - 1))
	for at := ClockTime(0); at < day; at++ {
		name, _ := tbl.Resolve(at)
		if name == "" {
			t.Fatalf("Resolve(%s) returned no segment", at)
		}
		if owner, ok := starts[at]; ok {
			if name != owner {
				t.Fatalf("boundary %s resolved to %s, want %s", at, name, owner)
			}
		} else if name != prev {
			t.Fatalf("segment changed at %s (%s -> %s) without a boundary", at, prev, name)
		}
		prev = name
	}
}

func TestResolveEmptyAndSingle(t *testing.T) {
	t.Parallel()
	var empty SegmentTable
	if name, vol := empty.Resolve(Clock(9, 0, 0)); name != "" || vol != 0 {
		t.Fatalf("empty table resolved to (%s, %v)", name, vol)
	}
	one, err := NewSegmentTable([]Segment{{Name: "all", Start: Clock(10, 0, 0), Volume: 0.5}})
	if err != nil {
		t.Fatal(err)
	}
	if name, _ := one.Resolve(Clock(3, 0, 0)); name != "all" {
		t.Fatalf("single table before start resolved to %s", name)
	}
}

func TestNewSegmentTableRejectsBadVolume(t *testing.T) {
	t.Parallel()
	if _, err := NewSegmentTable([]Segment{{Name: "x", Volume: 1.5}}); err == nil {
		t.Fatal("expected error for volume > 1")
	}
	if _, err := NewSegmentTable([]Segment{{Name: "x", Volume: -0.1}}); err == nil {
		t.Fatal("expected error for volume < 0")
	}
}

func TestQuietHoursActive(t *testing.T) {
	t.Parallel()
	wrap := QuietHours{Start: Clock(23, 0, 0), End: Clock(6, 0, 0)}
	plain := QuietHours{Start: Clock(13, 0, 0), End: Clock(15, 0, 0)}
	tests := []struct {
		name string
		q    QuietHours
		at   ClockTime
		want bool
	}{
		{name: "wrap start inclusive", q: wrap, at: Clock(23, 0, 0), want: true},
		{name: "wrap before start", q: wrap, at: Clock(22, 59, 59), want: false},
		{name: "wrap midnight", q: wrap, at: Clock(0, 0, 0), want: true},
		{name: "wrap last second", q: wrap, at: Clock(5, 59, 59), want: true},
		{name: "wrap end exclusive", q: wrap, at: Clock(6, 0, 0), want: false},
		{name: "wrap 23:30", q: wrap, at: Clock(23, 30, 0), want: true},
		{name: "wrap daytime", q: wrap, at: Clock(8, 0, 0), want: false},
		{name: "plain start inclusive", q: plain, at: Clock(13, 0, 0), want: true},
		{name: "plain inside", q: plain, at: Clock(14, 0, 0), want: true},
		{name: "plain end exclusive", q: plain, at: Clock(15, 0, 0), want: false},
		{name: "plain before", q: plain, at: Clock(12, 59, 59), want: false},
		{name: "empty window", q: QuietHours{Start: Clock(1, 0, 0), End: Clock(1, 0, 0)}, at: Clock(1, 0, 0), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.q.Active(tt.at); got != tt.want {
				t.Fatalf("Active(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	good := map[string]ClockTime{
		"07:00":    Clock(7, 0, 0),
		"7:05":     Clock(7, 5, 0),
		"23:59:59": Clock(23, 59, 59),
		" 00:00 ":  0,
	}
	for raw, want := range good {
		got, err := ParseClock(raw)
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseClock(%q) = %s, want %s", raw, got, want)
		}
	}
	for _, raw := range []string{"", "24:00", "12", "12:60", "aa:bb", "1:2:3:4", "123:00"} {
		if _, err := ParseClock(raw); err == nil {
			t.Fatalf("ParseClock(%q) expected error", raw)
		}
	}
}

func TestClockOf(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 3, 1, 8, 15, 30, 0, time.UTC)
	if got := ClockOf(ts); got != Clock(8, 15, 30) {
		t.Fatalf("ClockOf = %s", got)
	}
}
