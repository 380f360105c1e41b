// Package compose builds the final per-channel text from the raw message, the
// selected greeting and the visual "[assistant - time]" prefix.
package compose

import (
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"uninotifier/internal/channel"
	"uninotifier/internal/sanitize"
)

// commands are companion-app control messages delivered verbatim.
var commands = map[string]struct{}{
	"TTS":                     {},
	"request_location_update": {},
	"clear_badge":             {},
	"ble_write":               {},
	"close_notifications":     {},
	"clear_notification":      {},
	"remove_channel":          {},
	"stop_tts":                {},
	"app_launch":              {},
	"update_sensors":          {},
}

// CommandPrefix marks any message as a passthrough command.
const CommandPrefix = "command_"

// IsCommand reports whether msg is a control signal rather than text.
func IsCommand(msg string) bool {
	if _, ok := commands[msg]; ok {
		return true
	}
	return strings.HasPrefix(msg, CommandPrefix)
}

// BuildPrefix renders "[name] " or "[name - <time>] " where the time uses the
// strftime-style dateFormat (e.g. "%H:%M:%S").
func BuildPrefix(name string, includeTime bool, now time.Time, dateFormat string) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(name)
	if includeTime {
		b.WriteString(" - ")
		b.WriteString(strftime.Format(dateFormat, now))
	}
	b.WriteString("] ")
	return b.String()
}

// Input is everything Compose needs for one destination.
type Input struct {
	Message  string
	Greeting string
	Prefix   string
	Voice    bool
	Dialect  string
	Command  bool
}

// Compose returns the text to deliver.
//
//   - commands pass through untouched
//   - voice: "<greeting>. <message>" cleaned for TTS, no prefix
//   - visual: "<prefix><greeting>. <message>" escaped for the dialect
func Compose(in Input) string {
	if in.Command {
		return in.Message
	}
	if in.Voice {
		msg := sanitize.CleanForVoice(in.Message)
		greet := sanitize.CleanForVoice(in.Greeting)
		if greet != "" {
			return greet + ". " + msg
		}
		return msg
	}

	prefix := sanitize.EscapeForMarkup(in.Prefix, in.Dialect)
	msg := sanitize.EscapeForMarkup(in.Message, in.Dialect)
	greet := sanitize.EscapeForMarkup(in.Greeting, in.Dialect)
	if greet != "" {
		return prefix + greet + ". " + msg
	}
	return prefix + msg
}

// Dialect picks the markup dialect: the destination's explicit choice, then
// the request-wide one, then the mechanism family's default.
func Dialect(explicit, request string, family channel.Family) string {
	if explicit != "" {
		return explicit
	}
	if request != "" {
		return request
	}
	return family.DefaultDialect()
}
