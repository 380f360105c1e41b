package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned by Request.Validate.
var ErrInvalidRequest = errors.New("invalid send request")

// Targets is a list of destination aliases. In JSON it may be a single string
// or a list of strings.
type Targets []string

func (t *Targets) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Targets{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("targets: want string or list of strings: %w", err)
	}
	*t = list
	return nil
}

// Request is one call of the send operation.
type Request struct {
	Message string         `json:"message"`
	Title   string         `json:"title,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	// TargetData holds per-alias overrides: message, type, volume,
	// parse_mode, and any accessory payload fields.
	TargetData map[string]map[string]any `json:"target_data,omitempty"`
	Targets    Targets                   `json:"targets"`

	AssistantName     string         `json:"assistant_name,omitempty"`
	SkipGreeting      bool           `json:"skip_greeting,omitempty"`
	IncludeTime       *bool          `json:"include_time,omitempty"`
	Priority          bool           `json:"priority,omitempty"`
	OverrideGreetings map[string]any `json:"override_greetings,omitempty"`
}

// DecodeRequest strictly decodes a JSON send request.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}

// Validate checks the inbound contract: at least one target, and a message
// for every target unless that target's override carries one.
func (r Request) Validate() error {
	if len(r.Targets) == 0 {
		return fmt.Errorf("%w: targets is required", ErrInvalidRequest)
	}
	for _, alias := range r.Targets {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("%w: empty target alias", ErrInvalidRequest)
		}
		if r.Message != "" {
			continue
		}
		if _, ok := r.TargetData[alias]["message"]; !ok {
			return fmt.Errorf("%w: no message for target %q", ErrInvalidRequest, alias)
		}
	}
	return nil
}
