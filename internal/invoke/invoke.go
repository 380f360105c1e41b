// Package invoke is the outbound side of the dispatcher: a Call names a
// mechanism ("domain.action") and carries the payload; an Invoker performs it.
//
// The Router fans calls out to the backend that serves each domain (Home
// Assistant's REST API, the native Telegram client, ...) and applies a
// per-domain rate limit.
package invoke

import (
	"context"
	"errors"

	"uninotifier/internal/channel"
)

var (
	// ErrUnavailableFamily means no backend currently serves the call's domain.
	ErrUnavailableFamily = errors.New("mechanism family unavailable")
	// ErrUnsupportedAction is returned by backends for actions they can't perform.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Kind distinguishes volume arbitration calls from deliveries.
type Kind string

const (
	KindVolume   Kind = "volume"
	KindDelivery Kind = "delivery"
)

// Call is one resolved invocation.
type Call struct {
	Kind      Kind              `json:"kind"`
	Mechanism channel.Mechanism `json:"mechanism"`
	Payload   map[string]any    `json:"payload"`
	// Alias and Recipient are informational (logging, events).
	Alias     string `json:"alias,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// Invoker performs a call.
type Invoker interface {
	Invoke(ctx context.Context, call Call) error
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, call Call) error

func (f InvokerFunc) Invoke(ctx context.Context, call Call) error { return f(ctx, call) }

// Availability is implemented by backends that know which domains they can
// currently serve (e.g. Home Assistant's loaded components).
type Availability interface {
	Available(domain string) bool
}
