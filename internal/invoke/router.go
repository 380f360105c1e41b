package invoke

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Router routes calls to per-domain backends with an optional fallback.
//
// It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	byDomain map[string]Invoker
	fallback Invoker

	ratePerSec int
	limiters   map[string]*rate.Limiter
}

// NewRouter returns an empty router. ratePerSec <= 0 disables rate limiting.
func NewRouter(ratePerSec int) *Router {
	return &Router{
		byDomain:   map[string]Invoker{},
		ratePerSec: ratePerSec,
		limiters:   map[string]*rate.Limiter{},
	}
}

// Handle registers inv for a domain, replacing any previous backend.
func (r *Router) Handle(domain string, inv Invoker) {
	r.mu.Lock()
	if inv == nil {
		delete(r.byDomain, domain)
	} else {
		r.byDomain[domain] = inv
	}
	r.mu.Unlock()
}

// Fallback registers the backend used for domains without a dedicated one.
func (r *Router) Fallback(inv Invoker) {
	r.mu.Lock()
	r.fallback = inv
	r.mu.Unlock()
}

func (r *Router) backend(domain string) Invoker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if inv, ok := r.byDomain[domain]; ok {
		return inv
	}
	return r.fallback
}

// Available reports whether a call on domain would be attempted.
func (r *Router) Available(domain string) bool {
	inv := r.backend(domain)
	if inv == nil {
		return false
	}
	if av, ok := inv.(Availability); ok {
		return av.Available(domain)
	}
	return true
}

// SetRate changes the per-domain limit. Existing limiters are dropped.
func (r *Router) SetRate(ratePerSec int) {
	r.mu.Lock()
	r.ratePerSec = ratePerSec
	r.limiters = map[string]*rate.Limiter{}
	r.mu.Unlock()
}

func (r *Router) limiter(domain string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ratePerSec <= 0 {
		return nil
	}
	lim, ok := r.limiters[domain]
	if !ok {
		// burst = rate so short spikes pass without waiting
		lim = rate.NewLimiter(rate.Limit(r.ratePerSec), r.ratePerSec)
		r.limiters[domain] = lim
	}
	return lim
}

// Invoke sends call to its backend. Calls on unserved domains fail with
// ErrUnavailableFamily without reaching any backend.
func (r *Router) Invoke(ctx context.Context, call Call) error {
	domain := call.Mechanism.Domain
	if !r.Available(domain) {
		return fmt.Errorf("%w: %s", ErrUnavailableFamily, domain)
	}
	if lim := r.limiter(domain); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	return r.backend(domain).Invoke(ctx, call)
}
