// Package dispatch is the notifier's entry point: it turns one send request
// into a plan of volume and delivery calls and issues them concurrently.
//
// Nothing in a dispatch is surfaced to the caller as an error. Unknown
// aliases, quiet hours, unavailable mechanism families and failed calls are
// logged, counted and reported, and every other destination still goes out.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"uninotifier/internal/eventbus"
	"uninotifier/internal/greeting"
	"uninotifier/internal/invoke"
	"uninotifier/internal/metrics"
	logx "uninotifier/pkg/logx"
)

// Options are the Dispatcher's collaborators. Only Invoker is required.
type Options struct {
	Invoker invoke.Invoker
	Logger  logx.Logger
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
	// Now defaults to time.Now. Segment and quiet-hours lookups use the
	// wall clock of the returned time's location.
	Now func() time.Time
	// Rand picks greetings; nil uses math/rand's global source.
	Rand greeting.Rand
}

// Dispatcher sends requests against the current Runtime snapshot.
type Dispatcher struct {
	inv     invoke.Invoker
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	now     func() time.Time
	rnd     greeting.Rand

	rt atomic.Pointer[Runtime]
}

// New returns a dispatcher serving rt.
func New(rt *Runtime, opts Options) *Dispatcher {
	d := &Dispatcher{
		inv:     opts.Invoker,
		log:     opts.Logger,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	d.log = d.log.With(logx.String("comp", "dispatch"))
	if d.bus == nil {
		d.bus = eventbus.Discard
	}
	if d.now == nil {
		d.now = time.Now
	}
	if opts.Rand != nil {
		d.rnd = &lockedRand{r: opts.Rand}
	}
	d.rt.Store(rt)
	return d
}

// Swap installs a new runtime snapshot. Dispatches already running keep the
// one they started with.
func (d *Dispatcher) Swap(rt *Runtime) { d.rt.Store(rt) }

// Runtime returns the current snapshot.
func (d *Dispatcher) Runtime() *Runtime { return d.rt.Load() }

// Plan computes the calls a Send would issue at this moment, without issuing
// them.
func (d *Dispatcher) Plan(req Request) Plan {
	return d.plan(d.rt.Load(), req, d.now())
}

// CallResult is the outcome of one issued call.
type CallResult struct {
	Call  invoke.Call
	Err   error
	Took  time.Duration
	Index int
}

// Report summarizes a Send.
type Report struct {
	ID          string        `json:"id"`
	Segment     string        `json:"segment"`
	Quiet       bool          `json:"quiet_hours"`
	Planned     int           `json:"planned"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Unavailable int           `json:"unavailable"`
	Skipped     []Skip        `json:"skipped,omitempty"`
	Took        time.Duration `json:"-"`

	Results []CallResult `json:"-"`
}

// Send plans req and issues every call concurrently, returning once all of
// them have finished. Failures are isolated per call. Canceling ctx does not
// abort calls; only its values reach the invokers, which bound their own
// transport time.
func (d *Dispatcher) Send(ctx context.Context, req Request) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	id := uuid.NewString()
	log := d.log.With(logx.String("dispatch_id", id))

	p := d.plan(d.rt.Load(), req, d.now())
	d.metrics.Dispatch()
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchStarted, DispatchID: id, Data: p})
	for _, s := range p.Skipped {
		d.metrics.Skipped(s.Reason)
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchSkipped, DispatchID: id, Data: s})
	}

	results := d.issue(ctx, p.Calls)

	rep := Report{
		ID:      id,
		Segment: p.Segment,
		Quiet:   p.Quiet,
		Planned: len(p.Calls),
		Skipped: p.Skipped,
		Results: results,
	}
	for _, r := range results {
		outcome := metrics.OutcomeOK
		switch {
		case r.Err == nil:
			rep.Succeeded++
			log.Debug("call done", callFields(r)...)
		case errors.Is(r.Err, invoke.ErrUnavailableFamily):
			outcome = metrics.OutcomeUnavailable
			rep.Unavailable++
			log.Warn("call skipped", append(callFields(r), logx.Err(r.Err))...)
		default:
			outcome = metrics.OutcomeFailed
			rep.Failed++
			log.Warn("call failed", append(callFields(r), logx.Err(r.Err))...)
		}
		d.metrics.Call(r.Call.Mechanism.Domain, string(r.Call.Kind), outcome, r.Took)
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchCall, DispatchID: id, Data: r})
	}
	rep.Took = time.Since(start)

	d.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchCompleted, DispatchID: id, Data: rep})
	log.Info("dispatch completed",
		logx.String("segment", p.Segment),
		logx.Float64("segment_volume", p.SegmentVolume),
		logx.Int("targets", len(req.Targets)),
		logx.Int("planned", rep.Planned),
		logx.Int("failed", rep.Failed),
		logx.Int("unavailable", rep.Unavailable),
		logx.Int("skipped", len(rep.Skipped)),
		logx.Duration("took", rep.Took),
	)
	return rep
}

// issue runs every call on its own goroutine and waits for all of them. Each
// goroutine writes only its own result slot.
func (d *Dispatcher) issue(ctx context.Context, calls []invoke.Call) []CallResult {
	results := make([]CallResult, len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i := range calls {
		go func(i int) {
			defer wg.Done()
			results[i] = d.invokeOne(ctx, i, calls[i])
		}(i)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) invokeOne(ctx context.Context, i int, call invoke.Call) (res CallResult) {
	res = CallResult{Call: call, Index: i}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("invoker panic: %v", r)
		}
		res.Took = time.Since(start)
	}()
	if d.inv == nil {
		res.Err = fmt.Errorf("%w: no invoker", invoke.ErrUnavailableFamily)
		return res
	}
	res.Err = d.inv.Invoke(ctx, call)
	return res
}

func callFields(r CallResult) []logx.Field {
	return []logx.Field{
		logx.String("alias", r.Call.Alias),
		logx.String("kind", string(r.Call.Kind)),
		logx.String("mechanism", r.Call.Mechanism.String()),
		logx.String("recipient", r.Call.Recipient),
		logx.Duration("took", r.Took),
	}
}

// lockedRand serializes access to a caller-supplied source; *rand.Rand is not
// safe for concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  greeting.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
