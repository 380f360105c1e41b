// Package channel holds the static channel registry: the mapping from a
// user-facing destination alias to the mechanism that delivers it.
package channel

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownDestination is returned by Resolve for aliases not in the registry.
var ErrUnknownDestination = errors.New("unknown destination")

// Alternate is a mechanism used instead of the primary one when a message of
// a given type is sent (e.g. "photo" → telegram_bot.send_photo).
type Alternate struct {
	Mechanism Mechanism
	Defaults  map[string]any
}

// Channel is one registry entry. Channels are immutable once registered.
type Channel struct {
	Alias     string
	Mechanism Mechanism
	Voice     bool
	Defaults  map[string]any

	// Targets are explicit recipients; delivery is repeated once per target.
	Targets []string
	// EntityIDs is the statically configured default recipient, also used as
	// the volume control when VolumeEntities is empty.
	EntityIDs      []string
	VolumeEntities []string

	Alternates map[string]Alternate
}

// VolumeControl returns the entities whose volume is set before speaking.
func (c *Channel) VolumeControl() []string {
	if len(c.VolumeEntities) > 0 {
		return c.VolumeEntities
	}
	return c.EntityIDs
}

// Registry maps aliases to channels. Build it with NewRegistry; it is
// read-only afterwards and safe for concurrent use.
type Registry struct {
	channels map[string]*Channel
}

// NewRegistry validates and indexes channels. Aliases must be unique and
// non-empty.
func NewRegistry(chs []Channel) (*Registry, error) {
	r := &Registry{channels: make(map[string]*Channel, len(chs))}
	for i := range chs {
		c := chs[i]
		if c.Alias == "" {
			return nil, errors.New("channel alias is empty")
		}
		if _, dup := r.channels[c.Alias]; dup {
			return nil, fmt.Errorf("channel %q defined twice", c.Alias)
		}
		if c.Mechanism.Domain == "" && c.Mechanism.Err == nil {
			return nil, fmt.Errorf("channel %q has no mechanism", c.Alias)
		}
		r.channels[c.Alias] = &c
	}
	return r, nil
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.channels)
}

// Aliases returns the registered aliases in sorted order.
func (r *Registry) Aliases() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.channels))
	for a := range r.channels {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Malformed lists, sorted, the aliases whose primary or alternate mechanism
// failed to parse.
func (r *Registry) Malformed() []string {
	var out []string
	for _, a := range r.Aliases() {
		c := r.channels[a]
		bad := c.Mechanism.Err != nil
		for _, alt := range c.Alternates {
			bad = bad || alt.Mechanism.Err != nil
		}
		if bad {
			out = append(out, a)
		}
	}
	return out
}

// Lookup returns the channel for alias.
func (r *Registry) Lookup(alias string) (*Channel, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.channels[alias]
	return c, ok
}

// Resolution is the outcome of resolving an alias for one message.
type Resolution struct {
	Channel   *Channel
	Mechanism Mechanism
	Defaults  map[string]any
	// Voice is false whenever an alternate mechanism was picked.
	Voice bool
	// Alternate is set when Mechanism came from Channel.Alternates.
	Alternate bool
}

// Resolve picks the mechanism for alias. A non-empty msgType that names one of
// the channel's alternates selects that alternate; alternates are always
// treated as visual.
func (r *Registry) Resolve(alias, msgType string) (Resolution, error) {
	c, ok := r.Lookup(alias)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownDestination, alias)
	}
	if msgType != "" {
		if alt, ok := c.Alternates[msgType]; ok {
			return Resolution{Channel: c, Mechanism: alt.Mechanism, Defaults: alt.Defaults, Alternate: true}, nil
		}
	}
	return Resolution{Channel: c, Mechanism: c.Mechanism, Defaults: c.Defaults, Voice: c.Voice}, nil
}
