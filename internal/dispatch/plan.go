package dispatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"uninotifier/internal/channel"
	"uninotifier/internal/compose"
	"uninotifier/internal/greeting"
	"uninotifier/internal/invoke"
	"uninotifier/internal/timepolicy"
	logx "uninotifier/pkg/logx"
)

// PriorityVolume is used for priority requests without an explicit volume.
const PriorityVolume = 0.9

// Keys consumed by the dispatcher and never forwarded as accessory data.
const (
	keyMessage = "message"
	keyType    = "type"
	keyVolume  = "volume"
)

// Runtime is the policy snapshot a dispatch runs against. It is built once per
// config load and never modified afterwards.
type Runtime struct {
	Registry  *channel.Registry
	Segments  timepolicy.SegmentTable
	Quiet     timepolicy.QuietHours
	Greetings greeting.Table

	AssistantName string
	DateFormat    string
	IncludeTime   bool
}

// Skip reasons.
const (
	ReasonUnknownDestination = "unknown_destination"
	ReasonQuietHours         = "quiet_hours"
	ReasonMalformedMechanism = "malformed_mechanism"
)

// Skip records a destination or recipient left out of the plan.
type Skip struct {
	Alias     string `json:"alias"`
	Recipient string `json:"recipient,omitempty"`
	Reason    string `json:"reason"`
}

// Plan is the sequential part of a dispatch: every call that will be issued,
// in order, plus what was skipped.
type Plan struct {
	At            time.Time     `json:"at"`
	Segment       string        `json:"segment"`
	SegmentVolume float64       `json:"segment_volume"`
	Quiet         bool          `json:"quiet_hours"`
	Greeting      string        `json:"greeting,omitempty"`
	Calls         []invoke.Call `json:"calls"`
	Skipped       []Skip        `json:"skipped,omitempty"`
}

type volumeChoice struct {
	level    float64
	explicit bool
}

func (d *Dispatcher) plan(rt *Runtime, req Request, now time.Time) Plan {
	if rt == nil {
		rt = &Runtime{}
	}
	clock := timepolicy.ClockOf(now)
	segment, segVol := rt.Segments.Resolve(clock)
	p := Plan{
		At:            now,
		Segment:       segment,
		SegmentVolume: segVol,
		Quiet:         rt.Quiet.Active(clock),
	}

	greetings := rt.Greetings.WithOverrides(req.OverrideGreetings)
	p.Greeting = greetings.Select(segment, req.SkipGreeting, d.rnd)

	name := rt.AssistantName
	if req.AssistantName != "" {
		name = req.AssistantName
	}
	includeTime := rt.IncludeTime
	if req.IncludeTime != nil {
		includeTime = *req.IncludeTime
	}
	prefix := compose.BuildPrefix(name, includeTime, now, rt.DateFormat)

	for _, alias := range req.Targets {
		specific := copyMap(req.TargetData[alias])
		msgType := str(popOr(specific, keyType, req.Data[keyType]))

		res, err := rt.Registry.Resolve(alias, msgType)
		if err != nil {
			d.log.Warn("destination skipped", logx.String("alias", alias), logx.Err(err))
			p.Skipped = append(p.Skipped, Skip{Alias: alias, Reason: ReasonUnknownDestination})
			continue
		}

		raw := str(popOr(specific, keyMessage, req.Message))
		family := res.Mechanism.Family
		dialect := compose.Dialect(str(specific[channel.FieldParseMode]), str(req.Data[channel.FieldParseMode]), family)
		text := compose.Compose(compose.Input{
			Message:  raw,
			Greeting: p.Greeting,
			Prefix:   prefix,
			Voice:    res.Voice,
			Dialect:  dialect,
			Command:  compose.IsCommand(raw),
		})

		vol := d.volumeFor(alias, specific, req, segVol)

		recipients := res.Channel.Targets
		if len(recipients) == 0 {
			recipients = []string{""}
		}
		for _, rcpt := range recipients {
			if res.Voice {
				if p.Quiet && !req.Priority && !vol.explicit {
					d.log.Info("voice delivery skipped during quiet hours", logx.String("alias", alias))
					p.Skipped = append(p.Skipped, Skip{Alias: alias, Recipient: rcpt, Reason: ReasonQuietHours})
					continue
				}
				if ents := res.Channel.VolumeControl(); len(ents) > 0 {
					p.Calls = append(p.Calls, invoke.Call{
						Kind:      invoke.KindVolume,
						Mechanism: channel.VolumeSet,
						Payload: map[string]any{
							channel.FieldEntityID: entityValue(ents),
							"volume_level":        vol.level,
						},
						Alias:     alias,
						Recipient: rcpt,
					})
				}
			}

			if err := res.Mechanism.Err; err != nil {
				d.log.Warn("delivery skipped", logx.String("alias", alias), logx.Err(err))
				p.Skipped = append(p.Skipped, Skip{Alias: alias, Recipient: rcpt, Reason: ReasonMalformedMechanism})
				continue
			}
			p.Calls = append(p.Calls, invoke.Call{
				Kind:      invoke.KindDelivery,
				Mechanism: res.Mechanism,
				Payload:   buildPayload(res, req, specific, msgType, dialect, text, rcpt),
				Alias:     alias,
				Recipient: rcpt,
			})
		}
	}
	return p
}

// volumeFor applies the override → priority → segment precedence. An override
// that does not parse still counts as explicit for quiet-hours purposes.
func (d *Dispatcher) volumeFor(alias string, specific map[string]any, req Request, segVol float64) volumeChoice {
	raw, ok := specific[keyVolume]
	if !ok {
		raw = req.Data[keyVolume]
	}
	if raw != nil {
		v, err := parseVolume(raw)
		if err != nil {
			d.log.Debug("volume override ignored", logx.String("alias", alias), logx.Err(err))
			return volumeChoice{level: segVol, explicit: true}
		}
		return volumeChoice{level: clamp01(v), explicit: true}
	}
	if req.Priority {
		return volumeChoice{level: PriorityVolume}
	}
	return volumeChoice{level: segVol}
}

func buildPayload(res channel.Resolution, req Request, specific map[string]any, msgType, dialect, text, rcpt string) map[string]any {
	family := res.Mechanism.Family
	payload := copyMap(res.Defaults)
	if payload == nil {
		payload = map[string]any{}
	}

	if family.SetsParseMode() && dialect != "" {
		if _, ok := payload[channel.FieldParseMode]; !ok {
			payload[channel.FieldParseMode] = dialect
		}
	}
	payload[family.TextField(msgType)] = text
	if req.Title != "" {
		payload[channel.FieldTitle] = req.Title
	}

	switch {
	case rcpt != "":
		payload[family.RecipientField()] = rcpt
	case len(res.Channel.EntityIDs) > 0:
		payload[channel.FieldEntityID] = entityValue(res.Channel.EntityIDs)
	}

	extras := make(map[string]any, len(req.Data)+len(specific))
	for k, v := range req.Data {
		extras[k] = v
	}
	for k, v := range specific {
		extras[k] = v
	}
	delete(extras, keyVolume)
	delete(extras, keyType)
	delete(extras, channel.FieldParseMode)
	if len(extras) == 0 {
		return payload
	}

	if family.NestsExtras() {
		nested, _ := payload[channel.FieldData].(map[string]any)
		if nested == nil {
			nested = map[string]any{}
		}
		for k, v := range extras {
			nested[k] = v
		}
		payload[channel.FieldData] = nested
		return payload
	}
	for k, v := range extras {
		payload[k] = v
	}
	return payload
}

// entityValue keeps single entities as a plain string.
func entityValue(ids []string) any {
	if len(ids) == 1 {
		return ids[0]
	}
	return append([]string(nil), ids...)
}

func parseVolume(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("volume %v: unsupported type %T", v, v)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func popOr(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok {
		delete(m, key)
		return v
	}
	return def
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// copyMap copies m and any nested maps so payload shaping never writes into
// configured defaults or the caller's request.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = copyMap(nested)
		}
		out[k] = v
	}
	return out
}
