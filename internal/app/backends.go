package app

import (
	"fmt"
	"time"

	"uninotifier/internal/config"
	"uninotifier/internal/dispatch"
	"uninotifier/internal/invoke"
	"uninotifier/internal/invoke/homeassistant"
	"uninotifier/internal/invoke/telegram"
	logx "uninotifier/pkg/logx"
)

// telegramDomain is the mechanism domain served by the native Telegram backend.
const telegramDomain = "telegram_bot"

// buildBackends creates the configured delivery backends. Both may be nil.
func buildBackends(cfg *config.Config, log logx.Logger) (*homeassistant.Client, time.Duration, *telegram.Invoker, error) {
	var (
		ha    *homeassistant.Client
		every time.Duration
		tg    *telegram.Invoker
	)
	hc, refresh, ok, err := mapHomeAssistant(cfg)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if ok {
		if ha, err = homeassistant.New(hc, log.With(logx.String("comp", "homeassistant"))); err != nil {
			return nil, 0, nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		every = refresh
	}
	if tc, ok := mapTelegram(cfg); ok {
		if tg, err = telegram.New(tc, log.With(logx.String("comp", "telegram"))); err != nil {
			return nil, 0, nil, fmt.Errorf("telegram: %w", err)
		}
	}
	return ha, every, tg, nil
}

// install points r at the given backends. Home Assistant serves every domain
// without a native backend.
func install(r *invoke.Router, ha *homeassistant.Client, tg *telegram.Invoker) {
	if tg != nil {
		r.Handle(telegramDomain, tg)
	} else {
		r.Handle(telegramDomain, nil)
	}
	if ha != nil {
		r.Fallback(ha)
	} else {
		r.Fallback(nil)
	}
}

// NewInvoker builds a router with the backends configured in cfg, for
// one-shot use outside a running App.
func NewInvoker(cfg *config.Config, log logx.Logger) (*invoke.Router, error) {
	ha, _, tg, err := buildBackends(cfg, log)
	if err != nil {
		return nil, err
	}
	r := invoke.NewRouter(cfg.Notifier.RatePerSec)
	install(r, ha, tg)
	return r, nil
}

// NewDispatcher compiles cfg into a dispatcher using inv and the configured
// timezone.
func NewDispatcher(cfg *config.Config, inv invoke.Invoker, log logx.Logger) (*dispatch.Dispatcher, error) {
	rt, err := config.Compile(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Notifier.Location()
	if err != nil {
		return nil, err
	}
	return dispatch.New(rt, dispatch.Options{
		Invoker: inv,
		Logger:  log,
		Now:     func() time.Time { return time.Now().In(loc) },
	}), nil
}
