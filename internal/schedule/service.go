// Package schedule sends configured requests on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"uninotifier/internal/dispatch"
	logx "uninotifier/pkg/logx"
)

// ErrUnknownJob is returned by Trigger for names that are not scheduled.
var ErrUnknownJob = errors.New("unknown schedule")

// Sender is the dispatcher side of a scheduled job.
type Sender interface {
	Send(ctx context.Context, req dispatch.Request) dispatch.Report
}

// Job is one scheduled send.
type Job struct {
	Name    string
	Spec    string
	Request dispatch.Request
}

// EntryInfo describes a registered job.
type EntryInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

type entry struct {
	job Job
	id  cron.EntryID
}

// Service owns a cron runner. Apply may be called at any time, before or
// after Start, to replace the job set.
type Service struct {
	send Sender
	log  logx.Logger

	mu      sync.Mutex
	loc     *time.Location
	c       *cron.Cron
	ctx     context.Context
	entries map[string]*entry
}

func New(send Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		send:    send,
		log:     log.With(logx.String("comp", "schedule")),
		loc:     time.Local,
		ctx:     context.Background(),
		entries: map[string]*entry{},
	}
}

// Apply replaces every job. Invalid specs fail the whole call and leave the
// previous jobs in place. A changed location restarts the runner.
func (s *Service) Apply(jobs []Job, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	seen := make(map[string]bool, len(jobs))
	for i, j := range jobs {
		if j.Name == "" {
			return fmt.Errorf("schedule %d: name required", i)
		}
		if seen[j.Name] {
			return fmt.Errorf("schedule %q defined twice", j.Name)
		}
		seen[j.Name] = true
		if err := Validate(j.Spec); err != nil {
			return fmt.Errorf("schedule %q: %w", j.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil && loc.String() != s.loc.String() {
		s.loc = loc
		s.restartLocked()
	}
	s.loc = loc

	for _, e := range s.entries {
		if s.c != nil {
			s.c.Remove(e.id)
		}
	}
	s.entries = make(map[string]*entry, len(jobs))
	for _, j := range jobs {
		e := &entry{job: j}
		s.entries[j.Name] = e
		if s.c != nil {
			s.addLocked(e)
		}
	}
	s.log.Debug("schedules applied", logx.Int("count", len(jobs)), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) addLocked(e *entry) {
	spec, _ := NormalizeSpec(e.job.Spec)
	job := e.job
	id, err := s.c.AddFunc(spec, func() { s.run(s.ctx, job) })
	if err != nil {
		// Apply validated the spec, so this only fires on parser drift.
		s.log.Error("schedule registration failed", logx.String("name", job.Name), logx.Err(err))
		return
	}
	e.id = id
}

func (s *Service) newCronLocked() *cron.Cron {
	l := cronLogger{s.log}
	return cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
}

func (s *Service) restartLocked() {
	old := s.c
	s.c = s.newCronLocked()
	for _, e := range s.entries {
		s.addLocked(e)
	}
	s.c.Start()
	if old != nil {
		old.Stop()
	}
}

func (s *Service) run(ctx context.Context, job Job) dispatch.Report {
	s.log.Info("scheduled send", logx.String("name", job.Name))
	return s.send.Send(ctx, job.Request)
}

// Start begins triggering. ctx is passed to every scheduled send.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.c = s.newCronLocked()
	for _, e := range s.entries {
		s.addLocked(e)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("schedules", len(s.entries)), logx.String("tz", s.loc.String()))
}

// Stop stops triggering and waits for running sends, or until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Run starts the scheduler and blocks until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}

// Trigger runs the named job now, outside its schedule.
func (s *Service) Trigger(ctx context.Context, name string) (dispatch.Report, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return dispatch.Report{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return s.run(ctx, e.job), nil
}

// Entries lists registered jobs by name. Next is zero until the scheduler
// has started.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := EntryInfo{Name: e.job.Name, Spec: e.job.Spec}
		if s.c != nil && e.id != 0 {
			ce := s.c.Entry(e.id)
			info.Next, info.Prev = ce.Next, ce.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger routes cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Trace("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
