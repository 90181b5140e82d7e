package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/blackwell-systems/zsnap/internal/config"
	"github.com/blackwell-systems/zsnap/internal/retention"
)

// Job is one scheduled create for a dataset and class.
type Job struct {
	Dataset string
	Class   retention.Class
	Policy  retention.Policy
	Spec    string
}

// Name identifies the job in logs.
func (j Job) Name() string {
	return j.Dataset + "/" + string(j.Class)
}

// RunFunc executes a job and reports whether it failed.
type RunFunc func(ctx context.Context, job Job) bool

// JobsFromConfig expands every managed class of every dataset into a job,
// in config order and class order. Jobs always create, whatever the
// dataset's action.
func JobsFromConfig(cfg *config.Config) ([]Job, error) {
	var jobs []Job
	for _, ds := range cfg.Datasets {
		policy, err := ds.PolicyFor(retention.ActionCreate)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		specs, err := ds.Schedules(policy)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		for _, class := range policy.Managed() {
			jobs = append(jobs, Job{Dataset: ds.Name, Class: class, Policy: policy, Spec: specs[class]})
		}
	}
	return jobs, nil
}

// Entry is a scheduled job and its next activation.
type Entry struct {
	Job  Job
	Next time.Time
}

// Scheduler runs jobs on their cron schedules, one at a time.
type Scheduler struct {
	run      RunFunc
	log      *slog.Logger
	location *time.Location

	maintenanceSpec string
	maintenance     func(ctx context.Context)

	runMu sync.Mutex // held while a job or maintenance runs

	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[cron.EntryID]Job
	ctx     context.Context
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLocation sets the time zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithMaintenance schedules fn alongside the jobs, under the same lock.
func WithMaintenance(spec string, fn func(ctx context.Context)) Option {
	return func(s *Scheduler) {
		s.maintenanceSpec = spec
		s.maintenance = fn
	}
}

// New returns a stopped Scheduler with no jobs.
func New(run RunFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		run:      run,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		location: time.Local,
		jobs:     make(map[cron.EntryID]Job),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) newCron() *cron.Cron {
	logger := cronLogger{log: s.log}
	return cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
}

// Apply replaces the scheduled jobs. When the scheduler is running the new
// schedule takes effect immediately; a job already in progress finishes
// first. On error the previous schedule is kept.
func (s *Scheduler) Apply(jobs []Job) error {
	c := s.newCron()
	ids := make(map[cron.EntryID]Job, len(jobs))

	for _, job := range jobs {
		job := job
		id, err := c.AddFunc(job.Spec, func() { s.execute(job) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", job.Name(), job.Spec, err)
		}
		ids[id] = job
	}

	if s.maintenance != nil {
		if _, err := c.AddFunc(s.maintenanceSpec, s.runMaintenance); err != nil {
			return fmt.Errorf("failed to schedule maintenance (%q): %w", s.maintenanceSpec, err)
		}
	}

	s.mu.Lock()
	old := s.cron
	s.cron = c
	s.jobs = ids
	running := s.running
	s.mu.Unlock()

	if running {
		c.Start()
		if old != nil {
			old.Stop()
		}
	}

	s.log.Info("schedule applied", "jobs", len(jobs))
	return nil
}

// Start begins running jobs. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	if s.cron == nil {
		s.cron = s.newCron()
	}
	s.ctx = ctx
	s.running = true
	s.cron.Start()
}

// Stop halts scheduling and waits for a job in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if c != nil && wasRunning {
		<-c.Stop().Done()
	}
	// a job started by a replaced cron may still hold the lock
	s.runMu.Lock()
	s.runMu.Unlock()
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// Entries lists scheduled jobs ordered by next activation, then name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	var entries []Entry
	for _, e := range s.cron.Entries() {
		job, ok := s.jobs[e.ID]
		if !ok {
			continue
		}
		next := e.Next
		if next.IsZero() {
			next = e.Schedule.Next(time.Now().In(s.location))
		}
		entries = append(entries, Entry{Job: job, Next: next})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Next.Equal(entries[j].Next) {
			return entries[i].Next.Before(entries[j].Next)
		}
		return entries[i].Job.Name() < entries[j].Job.Name()
	})
	return entries
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// execute runs job under the run lock.
func (s *Scheduler) execute(job Job) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx := s.jobContext()
	if ctx.Err() != nil {
		return false
	}

	start := time.Now()
	s.log.Debug("job started", "dataset", job.Dataset, "class", job.Class)

	failed := s.run(ctx, job)

	attrs := []any{"dataset", job.Dataset, "class", job.Class, "duration", time.Since(start).Round(time.Millisecond)}
	if failed {
		s.log.Warn("job failed", attrs...)
	} else {
		s.log.Info("job finished", attrs...)
	}
	return failed
}

func (s *Scheduler) runMaintenance() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx := s.jobContext()
	if ctx.Err() != nil {
		return
	}
	s.maintenance(ctx)
}

// cronLogger adapts slog to cron.Logger. Cron's own info messages are
// noisy, so they are logged at debug level.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
