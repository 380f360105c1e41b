package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"uninotifier/internal/dispatch"
)

type Config struct {
	Notifier      NotifierConfig       `json:"notifier"`
	Logging       LoggingConfig        `json:"logging"`
	HTTP          HTTPConfig           `json:"http"`
	HomeAssistant *HomeAssistantConfig `json:"homeassistant,omitempty"`
	Telegram      *TelegramConfig      `json:"telegram,omitempty"`
	Schedules     []ScheduleConfig     `json:"schedules,omitempty"`
}

// NotifierConfig is the channel registry and the time-of-day policy.
//
// Omitted policy fields fall back to the built-in defaults: assistant
// "Hal9000", date format "%H:%M:%S", timestamps on, the four standard day
// segments, quiet hours 23:00-06:00 and the default greetings. Segments and
// greetings given in the file are merged over the defaults by name.
type NotifierConfig struct {
	AssistantName string `json:"assistant_name,omitempty"`
	DateFormat    string `json:"date_format,omitempty"`
	IncludeTime   *bool  `json:"include_time,omitempty"`
	// Timezone is an IANA name used for segment and quiet-hours lookups.
	// Empty means the process local time.
	Timezone string `json:"timezone,omitempty"`

	Greetings map[string]StringList     `json:"greetings,omitempty"`
	TimeSlots map[string]TimeSlotConfig `json:"time_slots,omitempty"`
	DND       *DNDConfig                `json:"dnd,omitempty"`

	// RatePerSec caps invocations per mechanism domain. 0 disables limiting.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	Channels map[string]ChannelConfig `json:"channels"`
}

type TimeSlotConfig struct {
	Start string `json:"start"`
	// Volume defaults to 0.5.
	Volume *float64 `json:"volume,omitempty"`
}

type DNDConfig struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type ChannelConfig struct {
	// Service is the primary mechanism, "domain.action".
	Service      string         `json:"service"`
	IsVoice      bool           `json:"is_voice,omitempty"`
	EntityID     StringList     `json:"entity_id,omitempty"`
	VolumeEntity StringList     `json:"volume_entity,omitempty"`
	Target       StringList     `json:"target,omitempty"`
	ServiceData  map[string]any `json:"service_data,omitempty"`

	AltServices map[string]AltServiceConfig `json:"alt_services,omitempty"`
}

type AltServiceConfig struct {
	Service     string         `json:"service"`
	ServiceData map[string]any `json:"service_data,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the inbound API server.
type HTTPConfig struct {
	// Addr defaults to "127.0.0.1:8125". Set enabled=false to run without the API.
	Enabled     *bool    `json:"enabled,omitempty"`
	Addr        string   `json:"addr,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
	// Go duration strings.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	// Pprof exposes /debug/pprof on the API listener. Keep addr on loopback
	// when enabling it.
	Pprof bool `json:"pprof,omitempty"`
}

// HomeAssistantConfig enables the REST backend that serves every mechanism
// family not handled natively.
type HomeAssistantConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
	Timeout string `json:"timeout,omitempty"`
	// Domains restricts the families considered available. Empty means the
	// components reported by /api/components.
	Domains []string `json:"domains,omitempty"`
	// RefreshInterval re-reads /api/components. "0s" disables refreshing.
	RefreshInterval string `json:"refresh_interval,omitempty"`
}

// TelegramConfig enables the native telegram_bot backend.
type TelegramConfig struct {
	Enabled     bool    `json:"enabled"`
	Token       string  `json:"token"`
	APIURL      string  `json:"api_url,omitempty"`
	DefaultChat string  `json:"default_chat,omitempty"`
	PerChatRate float64 `json:"per_chat_rate,omitempty"`
}

// ScheduleConfig sends a fixed request on a cron spec.
type ScheduleConfig struct {
	Name     string           `json:"name"`
	Spec     string           `json:"spec"`
	Disabled bool             `json:"disabled,omitempty"`
	Request  dispatch.Request `json:"request"`
}

// StringList accepts a single string or number, or a list of them.
type StringList []string

func (s *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if b[0] != '[' {
		v, err := scalarString(b)
		if err != nil {
			return err
		}
		*s = StringList{v}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(StringList, 0, len(raw))
	for _, r := range raw {
		v, err := scalarString(r)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	*s = out
	return nil
}

func scalarString(b []byte) (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("want string or number, got %s", string(b))
	}
}
