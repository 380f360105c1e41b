package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"uninotifier/internal/api"
	"uninotifier/internal/config"
	"uninotifier/internal/dispatch"
	"uninotifier/internal/eventbus"
	"uninotifier/internal/invoke"
	"uninotifier/internal/invoke/homeassistant"
	"uninotifier/internal/invoke/telegram"
	"uninotifier/internal/metrics"
	"uninotifier/internal/runtime/supervisor"
	"uninotifier/internal/schedule"
	logx "uninotifier/pkg/logx"
)

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
)

// haRefreshTick is how often the refresh loop checks whether a components
// refresh is due.
const haRefreshTick = 5 * time.Second

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	prom *prometheus.Registry
	met  *metrics.Metrics

	router *invoke.Router
	ha     atomic.Pointer[homeassistant.Client]
	// haEvery is the components refresh interval; 0 refreshes only once per
	// client.
	haEvery atomic.Int64
	loc     atomic.Pointer[time.Location]

	disp  *dispatch.Dispatcher
	sched *schedule.Service
	api   *api.Server

	// OnReload, when set, runs after every applied config reload.
	OnReload func(sections []string)
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string) (_ *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm: cfgm,
		log:  log.With(logx.String("comp", "app")),
		logs: logSvc,
		bus:  eventbus.New(),
		prom: prometheus.NewRegistry(),
	}
	a.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.met = metrics.New(a.prom)

	rt, err := config.Compile(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Notifier.Location()
	if err != nil {
		return nil, err
	}
	a.loc.Store(loc)

	a.router = invoke.NewRouter(cfg.Notifier.RatePerSec)
	be, err := a.buildBackends(cfg)
	if err != nil {
		return nil, err
	}
	a.installBackends(be)
	if bad := rt.Registry.Malformed(); len(bad) > 0 {
		a.log.Warn("channels with a malformed service; their deliveries will be skipped", logx.Strings("channels", bad))
	}

	a.disp = dispatch.New(rt, dispatch.Options{
		Invoker: a.router,
		Logger:  log,
		Bus:     a.bus,
		Metrics: a.met,
		Now:     a.now,
	})

	a.sched = schedule.New(a.disp, log)
	if err := a.sched.Apply(scheduleJobs(cfg), loc); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	apiCfg, enabled, err := mapAPIConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if enabled {
		apiCfg.Status = a.status
		a.api = api.New(apiCfg, a.disp, a.sched, a.prom, log)
	}

	// accepted reloads are counted once applied, in apply
	cfgm.OnReload(func(_ *config.Config, err error) {
		if err != nil {
			a.met.Reload(false)
			a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigRejected, Data: err.Error()})
		}
	})

	a.log.Info("app ready",
		logx.String("config", cfgPath),
		logx.Int("channels", rt.Registry.Len()),
		logx.Int("schedules", len(a.sched.Entries())),
		logx.String("tz", loc.String()),
		logx.Bool("http", enabled),
	)
	return a, nil
}

// Status is what GET /api/status reports.
type Status struct {
	Channels int                    `json:"channels"`
	Timezone string                 `json:"timezone"`
	Loops    []supervisor.LoopStats `json:"loops"`
}

func (a *App) status() any {
	st := Status{Channels: a.ChannelCount(), Timezone: a.loc.Load().String()}
	if a.sup != nil {
		st.Loops = a.sup.Snapshot()
	}
	return st
}

func (a *App) now() time.Time { return time.Now().In(a.loc.Load()) }

func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

func (a *App) Bus() eventbus.Bus { return a.bus }

// ChannelCount is the number of channels in the active registry.
func (a *App) ChannelCount() int { return a.disp.Runtime().Registry.Len() }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// backendSet is a built but not yet installed set of delivery backends.
type backendSet struct {
	ha    *homeassistant.Client
	every time.Duration
	tg    *telegram.Invoker
}

func (a *App) buildBackends(cfg *config.Config) (backendSet, error) {
	ha, every, tg, err := buildBackends(cfg, a.log)
	if err != nil {
		return backendSet{}, err
	}
	return backendSet{ha: ha, every: every, tg: tg}, nil
}

// installBackends points the router at be. It cannot fail.
func (a *App) installBackends(be backendSet) {
	install(a.router, be.ha, be.tg)
	a.ha.Store(be.ha)
	a.haEvery.Store(int64(be.every))
	if be.ha == nil && be.tg == nil {
		a.log.Warn("no delivery backend configured; every call will be reported unavailable")
	}
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.RestartPolicy{
		MinBackoff: 250 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
	})
	a.sup.Go("scheduler", a.sched.Run)
	a.sup.GoRestart("homeassistant.refresh", a.refreshLoop, supervisor.RestartPolicy{
		MinBackoff: time.Second,
		MaxBackoff: time.Minute,
	})
	if a.api != nil {
		a.sup.Go("http", a.api.Run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.String("dispatch_id", e.DispatchID))
			}
		}
	})

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// only the latest pending config matters
		drain:
			for {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			if err := a.apply(lastApplied, newCfg); err != nil {
				a.met.Reload(false)
				a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigRejected, Data: err.Error()})
				a.log.Warn("config reload not applied; keeping previous runtime", logx.Err(err))
				continue
			}
			lastApplied = newCfg
		}
	}
}

// apply moves every component to newCfg. Nothing is installed until every
// step that can fail has succeeded, so a rejected reload leaves the previous
// backends, schedules and runtime in place.
func (a *App) apply(oldCfg, newCfg *config.Config) error {
	sections, attrs, channels := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return nil
	}

	rt, err := config.Compile(newCfg)
	if err != nil {
		return err
	}
	loc, err := newCfg.Notifier.Location()
	if err != nil {
		return err
	}

	var be *backendSet
	if slices.Contains(sections, "homeassistant") || slices.Contains(sections, "telegram") {
		built, err := a.buildBackends(newCfg)
		if err != nil {
			return fmt.Errorf("delivery backends: %w", err)
		}
		be = &built
	}
	if err := a.sched.Apply(scheduleJobs(newCfg), loc); err != nil {
		return fmt.Errorf("schedules: %w", err)
	}

	if be != nil {
		a.installBackends(*be)
	}
	if bad := rt.Registry.Malformed(); len(bad) > 0 {
		a.log.Warn("channels with a malformed service; their deliveries will be skipped", logx.Strings("channels", bad))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.router.SetRate(newCfg.Notifier.RatePerSec)
	a.loc.Store(loc)
	a.disp.Swap(rt)

	if slices.Contains(sections, "http") {
		a.log.Warn("http config changed; restart required for changes to take effect")
	}

	a.met.Reload(true)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	if len(channels) > 0 {
		fields = append(fields, logx.Strings("channels_changed", channels))
	}
	a.log.Info("config applied", fields...)
	if a.OnReload != nil {
		a.OnReload(sections)
	}
	return nil
}

// refreshLoop re-reads the Home Assistant component list whenever the client
// is replaced and then every haEvery.
func (a *App) refreshLoop(ctx context.Context) error {
	var (
		last   *homeassistant.Client
		lastAt time.Time
	)
	t := time.NewTicker(haRefreshTick)
	defer t.Stop()
	for {
		ha := a.ha.Load()
		every := time.Duration(a.haEvery.Load())
		if ha != nil && (ha != last || (every > 0 && time.Since(lastAt) >= every)) {
			if err := ha.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.log.Warn("home assistant components refresh failed", logx.Err(err))
			}
			last, lastAt = ha, time.Now()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Stop cancels every loop and waits for them, bounded by ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	err := a.sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("stop deadline reached; some loops are still running")
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
