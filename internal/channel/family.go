package channel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedMechanism is returned when a mechanism identifier is not of the
// form "family.action".
var ErrMalformedMechanism = errors.New("malformed mechanism identifier")

// Family is the closed set of delivery mechanism families the dispatcher knows
// how to shape payloads for. Unknown domains fall into FamilyGeneric.
type Family int

const (
	FamilyGeneric Family = iota
	FamilyTelegramBot
	FamilyNotify
	FamilyMediaPlayer
	FamilyTTS
)

func (f Family) String() string {
	switch f {
	case FamilyTelegramBot:
		return "telegram_bot"
	case FamilyNotify:
		return "notify"
	case FamilyMediaPlayer:
		return "media_player"
	case FamilyTTS:
		return "tts"
	default:
		return "generic"
	}
}

func familyOf(domain string) Family {
	switch domain {
	case "telegram_bot":
		return FamilyTelegramBot
	case "notify":
		return FamilyNotify
	case "media_player":
		return FamilyMediaPlayer
	case "tts":
		return FamilyTTS
	default:
		return FamilyGeneric
	}
}

// Payload field names.
const (
	FieldMessage   = "message"
	FieldCaption   = "caption"
	FieldTitle     = "title"
	FieldTarget    = "target"
	FieldEntityID  = "entity_id"
	FieldData      = "data"
	FieldParseMode = "parse_mode"
)

// captionTypes are message types a chat bot sends as media with a caption.
var captionTypes = map[string]bool{"photo": true, "video": true}

// TextField returns the payload field that carries the composed text for a
// message of the given type.
func (f Family) TextField(msgType string) string {
	if f == FamilyTelegramBot && captionTypes[msgType] {
		return FieldCaption
	}
	return FieldMessage
}

// RecipientField is where an explicit recipient goes: broadcast-style families
// take a "target", everything else an "entity_id".
func (f Family) RecipientField() string {
	switch f {
	case FamilyTelegramBot, FamilyNotify:
		return FieldTarget
	default:
		return FieldEntityID
	}
}

// NestsExtras reports whether accessory data is nested under "data" instead of
// being merged into the top-level payload.
func (f Family) NestsExtras() bool { return f == FamilyNotify }

// DefaultDialect is the markup dialect assumed when neither the destination
// nor the request names one.
func (f Family) DefaultDialect() string {
	if f == FamilyTelegramBot {
		return "html"
	}
	return ""
}

// SetsParseMode reports whether the resolved dialect is written into the
// payload as parse_mode.
func (f Family) SetsParseMode() bool { return f == FamilyTelegramBot }

// Mechanism is a parsed "domain.action" identifier, e.g. "notify.mobile_app_phone".
// A mechanism loaded from config that failed to parse keeps the raw text and
// the parse error; deliveries on it are skipped.
type Mechanism struct {
	Family Family
	Domain string
	Action string

	Raw string
	Err error
}

// ParseMechanism splits raw at the first dot. Both parts must be non-empty.
func ParseMechanism(raw string) (Mechanism, error) {
	s := strings.TrimSpace(raw)
	domain, action, ok := strings.Cut(s, ".")
	if !ok || domain == "" || action == "" {
		return Mechanism{}, fmt.Errorf("%w: %q", ErrMalformedMechanism, raw)
	}
	return Mechanism{Family: familyOf(domain), Domain: domain, Action: action}, nil
}

// LoadMechanism is ParseMechanism for configured channels: the error is kept
// in Err instead of being returned.
func LoadMechanism(raw string) Mechanism {
	m, err := ParseMechanism(raw)
	if err != nil {
		return Mechanism{Raw: raw, Err: err}
	}
	return m
}

// MustMechanism is ParseMechanism for constants; it panics on error.
func MustMechanism(raw string) Mechanism {
	m, err := ParseMechanism(raw)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Mechanism) String() string {
	if m.Err != nil {
		return m.Raw
	}
	if m.Domain == "" {
		return ""
	}
	return m.Domain + "." + m.Action
}

// MarshalText renders the "domain.action" form.
func (m Mechanism) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// VolumeSet is the mechanism used for volume arbitration on voice channels.
var VolumeSet = MustMechanism("media_player.volume_set")
