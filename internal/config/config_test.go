package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"uninotifier/internal/channel"
	"uninotifier/internal/dispatch"
	"uninotifier/internal/timepolicy"
)

const sampleYAML = `
notifier:
  assistant_name: Jarvis
  timezone: UTC
  include_time: false
  time_slots:
    morning: {start: "06:30", volume: 0.5}
    dawn: {start: "05:00"}
  dnd:
    start: "22:30"
  greetings:
    morning: Ciao
  channels:
    kitchen:
      service: tts.google_say
      is_voice: true
      entity_id: media_player.kitchen
      volume_entity: [media_player.kitchen_group]
    telegram:
      service: telegram_bot.send_message
      target: [-100123, "456"]
      alt_services:
        photo:
          service: telegram_bot.send_photo
          service_data: {disable_notification: true}
logging:
  level: debug
  console: true
schedules:
  - name: wakeup
    spec: "0 0 7 * * *"
    request: {targets: kitchen, message: Sveglia}
`

func TestParseAndCompile(t *testing.T) {
	t.Parallel()

	cfg, err := ParseBytes("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	rt, err := Compile(cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if rt.AssistantName != "Jarvis" || rt.DateFormat != DefaultDateFormat || rt.IncludeTime {
		t.Fatalf("runtime header = %q %q %v", rt.AssistantName, rt.DateFormat, rt.IncludeTime)
	}

	cases := []struct {
		at   timepolicy.ClockTime
		name string
		vol  float64
	}{
		{timepolicy.Clock(5, 30, 0), "dawn", 0.5},
		{timepolicy.Clock(6, 45, 0), "morning", 0.5},
		{timepolicy.Clock(13, 0, 0), "afternoon", 0.4},
		{timepolicy.Clock(23, 0, 0), "night", 0.1},
		{timepolicy.Clock(1, 0, 0), "night", 0.1},
	}
	for _, tc := range cases {
		name, vol := rt.Segments.Resolve(tc.at)
		if name != tc.name || vol != tc.vol {
			t.Fatalf("Resolve(%s) = %s/%v, want %s/%v", tc.at, name, vol, tc.name, tc.vol)
		}
	}

	if rt.Quiet.Start != timepolicy.Clock(22, 30, 0) || rt.Quiet.End != timepolicy.Clock(6, 0, 0) {
		t.Fatalf("quiet hours = %+v", rt.Quiet)
	}
	if got := rt.Greetings["morning"]; !reflect.DeepEqual(got, []string{"Ciao"}) {
		t.Fatalf("morning greetings = %v", got)
	}
	if len(rt.Greetings["evening"]) == 0 {
		t.Fatalf("default evening greetings missing")
	}

	kitchen, ok := rt.Registry.Lookup("kitchen")
	if !ok || !kitchen.Voice || kitchen.Mechanism.String() != "tts.google_say" {
		t.Fatalf("kitchen = %+v", kitchen)
	}
	if !reflect.DeepEqual(kitchen.VolumeControl(), []string{"media_player.kitchen_group"}) {
		t.Fatalf("kitchen volume control = %v", kitchen.VolumeControl())
	}

	tg, ok := rt.Registry.Lookup("telegram")
	if !ok {
		t.Fatal("telegram channel missing")
	}
	if !reflect.DeepEqual(tg.Targets, []string{"-100123", "456"}) {
		t.Fatalf("telegram targets = %v", tg.Targets)
	}
	res, err := rt.Registry.Resolve("telegram", "photo")
	if err != nil || !res.Alternate || res.Mechanism.Action != "send_photo" {
		t.Fatalf("photo alternate = %+v, %v", res, err)
	}
	if res.Defaults["disable_notification"] != true {
		t.Fatalf("alternate defaults = %v", res.Defaults)
	}

	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Request.Targets[0] != "kitchen" {
		t.Fatalf("schedules = %+v", cfg.Schedules)
	}
}

func TestCompileDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseBytes("c.json", []byte(`{"notifier":{"channels":{}}}`))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	rt, err := Compile(cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if rt.AssistantName != DefaultAssistantName || !rt.IncludeTime {
		t.Fatalf("defaults not applied: %+v", rt)
	}
	if !reflect.DeepEqual(rt.Segments.Segments(), DefaultSegments()) {
		t.Fatalf("segments = %+v", rt.Segments.Segments())
	}
	if rt.Quiet != DefaultQuietHours() {
		t.Fatalf("quiet = %+v", rt.Quiet)
	}
	if rt.Registry.Len() != 0 {
		t.Fatalf("registry len = %d", rt.Registry.Len())
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing notifier":    `logging: {level: info}`,
		"missing channels":    `notifier: {assistant_name: x}`,
		"missing service":     `notifier: {channels: {a: {is_voice: true}}}`,
		"volume out of range": `notifier: {time_slots: {morning: {start: "07:00", volume: 1.5}}, channels: {}}`,
		"bad clock":           `notifier: {time_slots: {morning: {start: "25:00"}}, channels: {}}`,
		"unknown top level":   `{notifier: {channels: {}}, plugins: {}}`,
		"unknown channel key": `notifier: {channels: {a: {service: notify.x, volume: 1}}}`,
		"duplicate yaml key":  "notifier:\n  channels: {}\n  channels: {}\n",
		"telegram no token":   `{notifier: {channels: {}}, telegram: {enabled: true}}`,
		"bad duration":        `{notifier: {channels: {}}, http: {read_timeout: soon}}`,
		"two documents":       "notifier: {channels: {}}\n---\nnotifier: {channels: {}}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBytes("c.yaml", []byte(doc))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestMalformedServiceLoads(t *testing.T) {
	t.Parallel()

	cfg, err := ParseBytes("c.yaml", []byte("notifier:\n  channels:\n    phone: {service: notify.mobile_app_phone}\n    broken: {service: notify}\n"))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	rt, err := Compile(cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if rt.Registry.Len() != 2 {
		t.Fatalf("registry len = %d", rt.Registry.Len())
	}
	if got := rt.Registry.Malformed(); len(got) != 1 || got[0] != "broken" {
		t.Fatalf("Malformed = %v", got)
	}
	c, _ := rt.Registry.Lookup("broken")
	if !errors.Is(c.Mechanism.Err, channel.ErrMalformedMechanism) {
		t.Fatalf("mechanism err = %v", c.Mechanism.Err)
	}
}

func TestValidateSemantic(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{Notifier: NotifierConfig{Channels: map[string]ChannelConfig{"a": {Service: "notify.a"}}}}
	}

	cfg := base()
	cfg.Notifier.Timezone = "Mars/Olympus"
	if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("bad timezone: %v", err)
	}

	req := dispatch.Request{Message: "hi", Targets: dispatch.Targets{"a"}}
	cfg = base()
	cfg.Schedules = []ScheduleConfig{{Name: "x", Spec: "@daily", Request: req}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid schedule: %v", err)
	}
	cfg.Schedules = append(cfg.Schedules, ScheduleConfig{Name: "x", Spec: "@hourly", Request: req})
	if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("duplicate schedule: %v", err)
	}
	cfg.Schedules = []ScheduleConfig{{Name: "y", Spec: "whenever", Request: req}}
	if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("bad spec: %v", err)
	}
	cfg.Schedules = []ScheduleConfig{{Name: "z", Spec: "1h", Request: dispatch.Request{Message: "hi"}}}
	if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("schedule without targets: %v", err)
	}

	cfg = base()
	cfg.Notifier.Channels["b"] = ChannelConfig{Service: "broken"}
	if _, err := Compile(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("malformed mechanism: %v", err)
	}

	cfg = base()
	cfg.Notifier.Channels = nil
	if _, err := Compile(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil channels: %v", err)
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("x", "", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("empty: %v %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "0s", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("zero: %v %v", d, err)
	}
	if d, err := ParseIntervalOrDefault("x", "0s", time.Minute); err != nil || d != 0 {
		t.Fatalf("interval zero: %v %v", d, err)
	}
	if d, err := ParseIntervalOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("interval empty: %v %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", 0); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestManagerLoadAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "uninotifier.yaml")
	writeFile(t, path, "notifier:\n  channels:\n    a: {service: notify.a}\n")

	m := NewConfigManager(path)
	var reloads []error
	m.OnReload(func(_ *Config, err error) { reloads = append(reloads, err) })

	ctx := context.Background()
	cfg, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// unchanged content: nothing published
	if err := m.Reload(ctx); err != nil {
		t.Fatalf("Reload unchanged: %v", err)
	}
	if len(sub) != 0 || len(reloads) != 0 {
		t.Fatalf("unchanged reload published")
	}

	writeFile(t, path, "notifier:\n  channels:\n    a: {service: notify.a}\n    b: {service: notify.b}\n")
	if err := m.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	select {
	case got := <-sub:
		if len(got.Notifier.Channels) != 2 {
			t.Fatalf("published config has %d channels", len(got.Notifier.Channels))
		}
	default:
		t.Fatal("no config published")
	}

	writeFile(t, path, "notifier:\n  channels:\n    a: {service: notify.a, volume: 1}\n")
	if err := m.Reload(ctx); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("invalid reload err = %v", err)
	}
	if len(m.Get().Notifier.Channels) != 2 {
		t.Fatal("invalid reload replaced the committed config")
	}
	if len(reloads) != 2 || reloads[0] != nil || reloads[1] == nil {
		t.Fatalf("reload hook calls = %v", reloads)
	}
}

func TestManagerValidatorHook(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.json")
	writeFile(t, path, `{"notifier":{"channels":{}}}`)

	m := NewConfigManager(path)
	m.SetValidator(func(context.Context, *Config) error { return errors.New("nope") })
	if _, err := m.Load(context.Background()); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load err = %v", err)
	}
	if m.Get() != nil {
		t.Fatal("rejected config committed")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Notifier: NotifierConfig{Channels: map[string]ChannelConfig{
		"a": {Service: "notify.a"},
		"b": {Service: "notify.b"},
	}}}
	newCfg := &Config{
		Notifier: NotifierConfig{Channels: map[string]ChannelConfig{
			"a": {Service: "notify.a"},
			"b": {Service: "notify.b", IsVoice: true},
			"c": {Service: "notify.c"},
		}},
		Logging:  LoggingConfig{Level: "debug"},
		Telegram: &TelegramConfig{Enabled: true, Token: "secret"},
	}

	sections, attrs, channels := SummarizeConfigChange(oldCfg, newCfg)
	if !reflect.DeepEqual(sections, []string{"logging", "notifier", "telegram"}) {
		t.Fatalf("sections = %v", sections)
	}
	if !reflect.DeepEqual(channels, []string{"b", "c"}) {
		t.Fatalf("channels = %v", channels)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}

	sections, _, channels = SummarizeConfigChange(newCfg, newCfg)
	if len(sections) != 0 || len(channels) != 0 {
		t.Fatalf("identical configs reported changes: %v %v", sections, channels)
	}
}

func TestManagerWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "notifier:\n  channels:\n    a: {service: notify.a}\n")
	m := NewConfigManager(path)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(600 * time.Millisecond)
	defer tick.Stop()
	for n := 0; ; n++ {
		// rewrite until the watcher, which may still be starting, sees it;
		// the interval stays above the reload debounce
		writeFile(t, path, fmt.Sprintf("notifier:\n  assistant_name: v%d\n  channels:\n    a: {service: notify.a}\n", n))
		select {
		case got := <-sub:
			if !strings.HasPrefix(got.Notifier.AssistantName, "v") {
				t.Fatalf("published %q", got.Notifier.AssistantName)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch = %v", err)
			}
			return
		case <-tick.C:
		case <-deadline:
			cancel()
			t.Fatal("no reload after write")
		}
	}
}
