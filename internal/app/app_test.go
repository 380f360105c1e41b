package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uninotifier/internal/config"
	"uninotifier/internal/dispatch"
	"uninotifier/internal/eventbus"
	logx "uninotifier/pkg/logx"
)

type fakeHA struct {
	mu         sync.Mutex
	calls      map[string]map[string]any
	components int
	auth       string
}

func newFakeHA(t *testing.T) (*fakeHA, *httptest.Server) {
	f := &fakeHA{calls: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = r.Header.Get("Authorization")
		if r.URL.Path == "/api/components" {
			f.components++
			_ = json.NewEncoder(w).Encode([]string{"notify", "tts", "media_player"})
			return
		}
		b, _ := io.ReadAll(r.Body)
		var p map[string]any
		_ = json.Unmarshal(b, &p)
		f.calls[r.URL.Path] = p
		w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeHA) call(path string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.calls[path]
	return p, ok
}

func (f *fakeHA) refreshed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.components
}

const appConfig = `
notifier:
  assistant_name: %s
  timezone: UTC
  channels:
    phone:
      service: notify.mobile_app_phone
%s
http:
  enabled: false
homeassistant:
  base_url: %s
  token: secret
logging:
  level: error
  console: true
`

func writeConfig(t *testing.T, path, name, extra, baseURL string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(appConfig, name, extra, baseURL)), 0o600))
}

func TestAppLifecycle(t *testing.T) {
	ha, srv := newFakeHA(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "Hal", "", srv.URL)

	a, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ChannelCount())

	reloaded := make(chan []string, 4)
	a.OnReload = func(sections []string) { reloaded <- sections }
	cfgEvents, unsub := a.Bus().Subscribe(8, "config.")
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool { return ha.refreshed() > 0 }, 5*time.Second, 20*time.Millisecond)

	rep := a.Dispatcher().Send(ctx, dispatch.Request{
		Message:      "ciao",
		Targets:      dispatch.Targets{"phone"},
		SkipGreeting: true,
	})
	assert.Equal(t, 1, rep.Succeeded, "%+v", rep)
	p, ok := ha.call("/api/services/notify/mobile_app_phone")
	require.True(t, ok)
	assert.Contains(t, p["message"], "ciao")
	assert.Equal(t, "Bearer secret", ha.auth)

	// a valid change is applied
	writeConfig(t, path, "Jarvis", "    kitchen:\n      service: tts.speak\n      is_voice: true\n      entity_id: media_player.kitchen", srv.URL)
	require.NoError(t, a.cfgm.Reload(ctx))
	select {
	case sections := <-reloaded:
		assert.Contains(t, sections, "notifier")
	case <-time.After(5 * time.Second):
		t.Fatal("reload not applied")
	}
	assert.Equal(t, 2, a.ChannelCount())
	assert.Equal(t, "Jarvis", a.Dispatcher().Runtime().AssistantName)

	// an invalid change is rejected and the runtime stays
	writeConfig(t, path, "Broken", "    bad:\n      service: notify.bad\n      volume: 1", srv.URL)
	require.ErrorIs(t, a.cfgm.Reload(ctx), config.ErrInvalidConfig)
	deadline := time.After(5 * time.Second)
	for rejected := false; !rejected; {
		select {
		case e := <-cfgEvents:
			rejected = e.Type == eventbus.TypeConfigRejected
		case <-deadline:
			t.Fatal("no rejection event")
		}
	}
	assert.Equal(t, 2, a.ChannelCount())
	assert.Equal(t, "Jarvis", a.Dispatcher().Runtime().AssistantName)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSIGTERM))
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	assert.NoError(t, a.Err())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notifier:\n  channels:\n    x: {service: notify.x, volume: 1}\n"), 0o600))
	_, err := New(path)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewClosesLogFileOnError(t *testing.T) {
	t.Parallel()

	if _, err := os.ReadDir("/proc/self/fd"); err != nil {
		t.Skip("no /proc/self/fd")
	}
	dir := t.TempDir()
	logPath := filepath.Join(dir, "notifier.log")
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
notifier:
  channels:
    phone: {service: notify.mobile_app_phone}
http: {enabled: false}
homeassistant: {base_url: "http://", token: secret}
logging:
  level: info
  file: {enabled: true, path: %q}
`, logPath)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := New(path)
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	fds, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	for _, fd := range fds {
		target, _ := os.Readlink(filepath.Join("/proc/self/fd", fd.Name()))
		assert.NotEqual(t, logPath, target, "log file left open")
	}
}

func TestRejectedApplyKeepsBackends(t *testing.T) {
	t.Parallel()

	_, srv := newFakeHA(t)
	_, other := newFakeHA(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "Hal", "", srv.URL)

	a, err := New(path)
	require.NoError(t, err)
	before := a.ha.Load()
	require.NotNil(t, before)

	oldCfg := a.cfgm.Get()
	newCfg := *oldCfg
	ha := *oldCfg.HomeAssistant
	ha.BaseURL = other.URL
	newCfg.HomeAssistant = &ha
	req := dispatch.Request{Message: "x", Targets: dispatch.Targets{"phone"}}
	newCfg.Schedules = []config.ScheduleConfig{
		{Name: "dup", Spec: "@daily", Request: req},
		{Name: "dup", Spec: "@hourly", Request: req},
	}

	require.Error(t, a.apply(oldCfg, &newCfg))
	assert.Same(t, before, a.ha.Load())
	assert.Empty(t, a.sched.Entries())
}

func TestNewDispatcherDryRun(t *testing.T) {
	t.Parallel()

	cfg, err := config.ParseBytes("config.yaml", []byte(`
notifier:
  timezone: Europe/Rome
  channels:
    phone: {service: notify.mobile_app_phone}
`))
	require.NoError(t, err)
	inv, err := NewInvoker(cfg, logx.Nop())
	require.NoError(t, err)
	assert.False(t, inv.Available("notify"))

	d, err := NewDispatcher(cfg, inv, logx.Nop())
	require.NoError(t, err)
	p := d.Plan(dispatch.Request{Message: "hi", Targets: dispatch.Targets{"phone"}})
	require.Len(t, p.Calls, 1)
	assert.Equal(t, "Europe/Rome", p.At.Location().String())

	rep := d.Send(context.Background(), dispatch.Request{Message: "hi", Targets: dispatch.Targets{"phone"}})
	assert.Equal(t, 1, rep.Unavailable)
}

func TestMapAPIConfig(t *testing.T) {
	t.Parallel()

	off := false
	_, ok, err := mapAPIConfig(&config.Config{HTTP: config.HTTPConfig{Enabled: &off}})
	require.NoError(t, err)
	assert.False(t, ok)

	c, ok, err := mapAPIConfig(&config.Config{HTTP: config.HTTPConfig{WriteTimeout: "5s"}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, config.DefaultHTTPAddr, c.Addr)
	assert.Equal(t, 30*time.Second, c.ReadTimeout)
	assert.Equal(t, 5*time.Second, c.WriteTimeout)

	_, _, err = mapAPIConfig(&config.Config{HTTP: config.HTTPConfig{ReadTimeout: "soon"}})
	assert.Error(t, err)
}

func TestScheduleJobsSkipsDisabled(t *testing.T) {
	t.Parallel()

	jobs := scheduleJobs(&config.Config{Schedules: []config.ScheduleConfig{
		{Name: "a", Spec: "1h"},
		{Name: "b", Spec: "1h", Disabled: true},
	}})
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
}

