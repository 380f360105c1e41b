package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"uninotifier/internal/channel"
	"uninotifier/internal/dispatch"
	"uninotifier/internal/greeting"
	"uninotifier/internal/schedule"
	"uninotifier/internal/timepolicy"
)

// ErrInvalidConfig wraps every schema, decode and semantic config error.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultAssistantName = "Hal9000"
	DefaultDateFormat    = "%H:%M:%S"
	DefaultHTTPAddr      = "127.0.0.1:8125"

	// volume for a configured time slot that leaves it out
	defaultSlotVolume = 0.5
)

// DefaultSegments is the built-in day segment table.
func DefaultSegments() []timepolicy.Segment {
	return []timepolicy.Segment{
		{Name: "morning", Start: timepolicy.Clock(7, 0, 0), Volume: 0.35},
		{Name: "afternoon", Start: timepolicy.Clock(12, 0, 0), Volume: 0.4},
		{Name: "evening", Start: timepolicy.Clock(19, 0, 0), Volume: 0.3},
		{Name: "night", Start: timepolicy.Clock(22, 0, 0), Volume: 0.1},
	}
}

// DefaultQuietHours is 23:00-06:00.
func DefaultQuietHours() timepolicy.QuietHours {
	return timepolicy.QuietHours{Start: timepolicy.Clock(23, 0, 0), End: timepolicy.Clock(6, 0, 0)}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Compile turns the notifier section into an immutable dispatch runtime,
// applying defaults.
func Compile(cfg *Config) (*dispatch.Runtime, error) {
	if cfg == nil {
		return nil, invalid("config is nil")
	}
	n := cfg.Notifier

	rt := &dispatch.Runtime{
		AssistantName: DefaultAssistantName,
		DateFormat:    DefaultDateFormat,
		IncludeTime:   true,
	}
	if s := strings.TrimSpace(n.AssistantName); s != "" {
		rt.AssistantName = s
	}
	if n.DateFormat != "" {
		rt.DateFormat = n.DateFormat
	}
	if n.IncludeTime != nil {
		rt.IncludeTime = *n.IncludeTime
	}

	segs, err := compileSegments(n.TimeSlots)
	if err != nil {
		return nil, err
	}
	rt.Segments = segs

	if rt.Quiet, err = compileQuietHours(n.DND); err != nil {
		return nil, err
	}

	rt.Greetings = greeting.Defaults()
	for seg, list := range n.Greetings {
		rt.Greetings[seg] = append([]string(nil), list...)
	}

	if n.Channels == nil {
		return nil, invalid("notifier.channels is required")
	}
	aliases := make([]string, 0, len(n.Channels))
	for a := range n.Channels {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	chs := make([]channel.Channel, 0, len(aliases))
	for _, alias := range aliases {
		ch, err := compileChannel(alias, n.Channels[alias])
		if err != nil {
			return nil, err
		}
		chs = append(chs, ch)
	}
	reg, err := channel.NewRegistry(chs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	rt.Registry = reg
	return rt, nil
}

func compileSegments(slots map[string]TimeSlotConfig) (timepolicy.SegmentTable, error) {
	byName := map[string]timepolicy.Segment{}
	for _, s := range DefaultSegments() {
		byName[s.Name] = s
	}
	for name, slot := range slots {
		start, err := timepolicy.ParseClock(slot.Start)
		if err != nil {
			return timepolicy.SegmentTable{}, invalid("notifier.time_slots.%s.start: %v", name, err)
		}
		vol := defaultSlotVolume
		if slot.Volume != nil {
			vol = *slot.Volume
		}
		byName[name] = timepolicy.Segment{Name: name, Start: start, Volume: vol}
	}
	segs := make([]timepolicy.Segment, 0, len(byName))
	for _, s := range byName {
		segs = append(segs, s)
	}
	// map order must not leak into ties between equal start times
	sort.Slice(segs, func(i, j int) bool { return segs[i].Name < segs[j].Name })
	t, err := timepolicy.NewSegmentTable(segs)
	if err != nil {
		return timepolicy.SegmentTable{}, invalid("notifier.time_slots: %v", err)
	}
	return t, nil
}

func compileQuietHours(dnd *DNDConfig) (timepolicy.QuietHours, error) {
	q := DefaultQuietHours()
	if dnd == nil {
		return q, nil
	}
	var err error
	if dnd.Start != "" {
		if q.Start, err = timepolicy.ParseClock(dnd.Start); err != nil {
			return q, invalid("notifier.dnd.start: %v", err)
		}
	}
	if dnd.End != "" {
		if q.End, err = timepolicy.ParseClock(dnd.End); err != nil {
			return q, invalid("notifier.dnd.end: %v", err)
		}
	}
	return q, nil
}

func compileChannel(alias string, cc ChannelConfig) (channel.Channel, error) {
	if strings.TrimSpace(alias) == "" {
		return channel.Channel{}, invalid("notifier.channels: empty alias")
	}
	ch := channel.Channel{
		Alias:          alias,
		Mechanism:      channel.LoadMechanism(cc.Service),
		Voice:          cc.IsVoice,
		Defaults:       cc.ServiceData,
		Targets:        nonEmpty(cc.Target),
		EntityIDs:      nonEmpty(cc.EntityID),
		VolumeEntities: nonEmpty(cc.VolumeEntity),
	}
	if len(cc.AltServices) > 0 {
		ch.Alternates = make(map[string]channel.Alternate, len(cc.AltServices))
		for typ, alt := range cc.AltServices {
			ch.Alternates[typ] = channel.Alternate{Mechanism: channel.LoadMechanism(alt.Service), Defaults: alt.ServiceData}
		}
	}
	return ch, nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Location resolves notifier.timezone.
func (n NotifierConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(n.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, invalid("notifier.timezone: %v", err)
	}
	return loc, nil
}

// Validate runs every semantic check a load or reload must pass.
func Validate(cfg *Config) error {
	if _, err := Compile(cfg); err != nil {
		return err
	}
	if _, err := cfg.Notifier.Location(); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if ha := cfg.HomeAssistant; ha != nil {
		if _, err := ParseDurationOrDefault("homeassistant.timeout", ha.Timeout, 0); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if _, err := ParseIntervalOrDefault("homeassistant.refresh_interval", ha.RefreshInterval, 0); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if tg := cfg.Telegram; tg != nil && tg.Enabled && strings.TrimSpace(tg.Token) == "" {
		return invalid("telegram.token is required when telegram.enabled")
	}
	seen := map[string]bool{}
	for i, s := range cfg.Schedules {
		if seen[s.Name] {
			return invalid("schedules[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if err := schedule.Validate(s.Spec); err != nil {
			return invalid("schedules[%d] %q: %v", i, s.Name, err)
		}
		if err := s.Request.Validate(); err != nil {
			return invalid("schedules[%d] %q: %v", i, s.Name, err)
		}
	}
	return nil
}
