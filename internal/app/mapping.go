package app

import (
	"strings"
	"time"

	"uninotifier/internal/api"
	"uninotifier/internal/config"
	"uninotifier/internal/invoke/homeassistant"
	"uninotifier/internal/invoke/telegram"
	"uninotifier/internal/schedule"
	logx "uninotifier/pkg/logx"
)

const defaultRefreshInterval = 10 * time.Minute

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapAPIConfig returns ok=false when the HTTP server is disabled.
func mapAPIConfig(cfg *config.Config) (api.Config, bool, error) {
	h := cfg.HTTP
	if h.Enabled != nil && !*h.Enabled {
		return api.Config{}, false, nil
	}
	addr := strings.TrimSpace(h.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	rt, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 30*time.Second)
	if err != nil {
		return api.Config{}, false, err
	}
	wt, err := config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 60*time.Second)
	if err != nil {
		return api.Config{}, false, err
	}
	return api.Config{
		Addr:         addr,
		CORSOrigins:  h.CORSOrigins,
		ReadTimeout:  rt,
		WriteTimeout: wt,
		Pprof:        h.Pprof,
	}, true, nil
}

// mapHomeAssistant returns ok=false when the section is absent.
func mapHomeAssistant(cfg *config.Config) (hc homeassistant.Config, refresh time.Duration, ok bool, err error) {
	ha := cfg.HomeAssistant
	if ha == nil {
		return homeassistant.Config{}, 0, false, nil
	}
	timeout, err := config.ParseDurationOrDefault("homeassistant.timeout", ha.Timeout, 0)
	if err != nil {
		return homeassistant.Config{}, 0, false, err
	}
	refresh, err = config.ParseIntervalOrDefault("homeassistant.refresh_interval", ha.RefreshInterval, defaultRefreshInterval)
	if err != nil {
		return homeassistant.Config{}, 0, false, err
	}
	return homeassistant.Config{
		BaseURL: ha.BaseURL,
		Token:   ha.Token,
		Timeout: timeout,
		Domains: ha.Domains,
	}, refresh, true, nil
}

// mapTelegram returns ok=false when the native backend is disabled.
func mapTelegram(cfg *config.Config) (telegram.Config, bool) {
	tg := cfg.Telegram
	if tg == nil || !tg.Enabled {
		return telegram.Config{}, false
	}
	return telegram.Config{
		Token:       tg.Token,
		APIURL:      tg.APIURL,
		DefaultChat: tg.DefaultChat,
		PerChatRate: tg.PerChatRate,
	}, true
}

func scheduleJobs(cfg *config.Config) []schedule.Job {
	jobs := make([]schedule.Job, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		if s.Disabled {
			continue
		}
		jobs = append(jobs, schedule.Job{Name: s.Name, Spec: s.Spec, Request: s.Request})
	}
	return jobs
}
