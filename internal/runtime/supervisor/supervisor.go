// Package supervisor runs the notifier's long-lived loops (HTTP server,
// config watcher, scheduler, Home Assistant component refresh) under one
// cancelable context, with panic recovery and restart-on-failure.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "uninotifier/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg       sync.WaitGroup
	errOnce  sync.Once
	firstErr atomic.Value // error
	doneOnce sync.Once
	doneCh   chan struct{}

	mu    sync.Mutex
	stats map[string]*LoopStats
}

// LoopStats is a best-effort view of one named loop.
type LoopStats struct {
	Name     string    `json:"name"`
	Active   int       `json:"active"`
	Starts   int       `json:"starts"`
	Restarts int       `json:"restarts"`
	Panics   int       `json:"panics"`
	LastErr  string    `json:"last_err,omitempty"`
	LastStop time.Time `json:"last_stop,omitempty"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels every loop when any Go loop fails.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    logx.Nop(),
		doneCh: make(chan struct{}),
		stats:  map[string]*LoopStats{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first error recorded by any loop.
func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (s *Supervisor) setErr(err error) {
	if err != nil {
		s.errOnce.Do(func() { s.firstErr.Store(err) })
	}
}

func (s *Supervisor) fail(err error) {
	s.setErr(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

// Snapshot returns per-loop stats sorted by name.
func (s *Supervisor) Snapshot() []LoopStats {
	s.mu.Lock()
	out := make([]LoopStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Supervisor) note(name string, fn func(st *LoopStats)) {
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &LoopStats{Name: name}
		s.stats[name] = st
	}
	fn(st)
	s.mu.Unlock()
}

// runOnce calls fn, converting a panic into an error.
func (s *Supervisor) runOnce(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.note(name, func(st *LoopStats) { st.Panics++ })
			s.log.Error("loop panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

func (s *Supervisor) stopped(name string, err error) {
	s.note(name, func(st *LoopStats) {
		st.Active--
		st.LastStop = time.Now()
		if err != nil {
			st.LastErr = err.Error()
		}
	})
}

// Go runs fn once. A non-nil error other than context cancellation is
// recorded as the supervisor's error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	s.note(name, func(st *LoopStats) { st.Active++; st.Starts++ })
	go func() {
		defer s.wg.Done()
		s.log.Debug("loop started", logx.String("name", name))
		err := s.runOnce(name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s: %w", name, err)
			s.stopped(name, err)
			s.log.Error("loop failed", logx.String("name", name), logx.Err(err))
			s.fail(err)
			return
		}
		s.stopped(name, nil)
		s.log.Debug("loop stopped", logx.String("name", name))
	}()
}

// RestartPolicy bounds GoRestart's backoff. Zero values use 250ms..30s,
// unlimited restarts.
type RestartPolicy struct {
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	MaxRestarts int
}

// GoRestart runs fn until it returns nil or the context ends, restarting it
// with jittered exponential backoff after errors and panics.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, pol RestartPolicy) {
	if fn == nil {
		return
	}
	if pol.MinBackoff <= 0 {
		pol.MinBackoff = 250 * time.Millisecond
	}
	if pol.MaxBackoff < pol.MinBackoff {
		pol.MaxBackoff = max(pol.MinBackoff, 30*time.Second)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := pol.MinBackoff
		for restarts := 0; ; restarts++ {
			if s.ctx.Err() != nil {
				return
			}
			started := time.Now()
			s.note(name, func(st *LoopStats) {
				st.Active++
				st.Starts++
				if restarts > 0 {
					st.Restarts++
				}
			})
			err := s.runOnce(name, fn)
			if err == nil || s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.stopped(name, nil)
				return
			}
			err = fmt.Errorf("%s: %w", name, err)
			s.stopped(name, err)

			if pol.MaxRestarts > 0 && restarts >= pol.MaxRestarts {
				s.log.Error("loop gave up", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(err)
				return
			}
			// a loop that ran for a while starts over from the minimum
			if time.Since(started) >= 30*time.Second {
				backoff = pol.MinBackoff
			}
			wait := backoff + time.Duration(time.Now().UnixNano()%int64(backoff/5+1))
			s.log.Warn("loop restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, pol.MaxBackoff)
		}
	}()
}

// Stop cancels every loop and waits for them to exit.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every loop has exited or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
