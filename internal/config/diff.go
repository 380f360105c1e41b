package config

import (
	"encoding/json"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "uninotifier/pkg/logx"
)

// hashBytes returns a stable 64-bit hash of b. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func hashJSON(v any) uint64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// SummarizeConfigChange returns the changed top-level sections, log fields
// describing the new values (never tokens), and the channel aliases that were
// added, removed or modified.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	on, nn := oldCfg.Notifier, newCfg.Notifier
	channels := diffChannels(on.Channels, nn.Channels)
	on.Channels, nn.Channels = nil, nil
	if len(channels) > 0 || hashJSON(on) != hashJSON(nn) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.channels", len(newCfg.Notifier.Channels)),
			logx.Int("notifier.channels_changed", len(channels)),
			logx.String("notifier.timezone", strings.TrimSpace(nn.Timezone)),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.Addr))
	}

	if !reflect.DeepEqual(oldCfg.HomeAssistant, newCfg.HomeAssistant) {
		changed = append(changed, "homeassistant")
		if ha := newCfg.HomeAssistant; ha != nil {
			attrs = append(attrs,
				logx.String("homeassistant.base_url", ha.BaseURL),
				logx.Bool("homeassistant.token_set", strings.TrimSpace(ha.Token) != ""),
				logx.Strings("homeassistant.domains", ha.Domains),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		if tg := newCfg.Telegram; tg != nil {
			attrs = append(attrs,
				logx.Bool("telegram.enabled", tg.Enabled),
				logx.Bool("telegram.token_set", strings.TrimSpace(tg.Token) != ""),
				logx.Bool("telegram.default_chat_set", strings.TrimSpace(tg.DefaultChat) != ""),
			)
		}
	}

	if hashJSON(oldCfg.Schedules) != hashJSON(newCfg.Schedules) {
		changed = append(changed, "schedules")
		attrs = append(attrs, logx.Int("schedules.count", len(newCfg.Schedules)))
	}

	sort.Strings(changed)
	return changed, attrs, channels
}

func diffChannels(oldM, newM map[string]ChannelConfig) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for alias := range set {
		o, inOld := oldM[alias]
		n, inNew := newM[alias]
		if inOld != inNew || hashJSON(o) != hashJSON(n) {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}
