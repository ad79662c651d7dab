// Package scheduler runs the queue's periodic background work: expiry
// sweeps, rebalancing and position/stats broadcasts. Jobs run on independent
// schedules; a failing run is logged and counted, never fatal.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Description() string

	// Run is called with a context cancelled on Stop.
	Run(ctx context.Context) error
}

// Schedule yields activation times.
type Schedule interface {
	// Next returns the first activation strictly after t.
	Next(t time.Time) time.Time
	String() string
}

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Logger *logger.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// TickInterval is how often due jobs are looked for (default: 1s).
	TickInterval time.Duration

	// FailureLog caps the recent failures kept for Stats (default: 20).
	FailureLog int
}

// Scheduler fires registered jobs on their schedules. A job never overlaps
// with itself; a run still in flight when its next activation passes skips
// that activation.
type Scheduler struct {
	log      *logger.Logger
	tz       *time.Location
	tick     time.Duration
	keepFail int

	mu       sync.Mutex
	jobs     map[string]*entry
	failures []Failure
	onError  func(job string, err error)
	running  bool
	started  time.Time
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

type entry struct {
	job      Job
	schedule Schedule
	busy     bool
	next     time.Time
	stats    JobStats
	total    time.Duration
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.FailureLog <= 0 {
		cfg.FailureLog = 20
	}
	return &Scheduler{
		log:      cfg.Logger.With(logger.Component("scheduler")),
		tz:       cfg.Timezone,
		tick:     cfg.TickInterval,
		keepFail: cfg.FailureLog,
		jobs:     make(map[string]*entry),
	}
}

// Register adds job under its name.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, next: schedule.Next(time.Now().In(s.tz))}
	s.jobs[name] = e

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.Time("next_run", e.next),
	)
	return nil
}

// OnJobError sets a callback run after every failed job.
func (s *Scheduler) OnJobError(fn func(job string, err error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Start launches the tick loop. Cancelling ctx has the same effect on running
// jobs as Stop, but only Stop waits for them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	ctx, s.stop = context.WithCancel(ctx)
	s.running = true
	s.started = time.Now()

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info("scheduler started", logger.Int("jobs_count", len(s.jobs)))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.stop()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped", logger.Duration("uptime", time.Since(s.started)))
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.dispatch(ctx)
		}
	}
}

// dispatch claims due jobs and advances their next activation in one
// critical section, so an activation is launched at most once.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := time.Now().In(s.tz)

	s.mu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if e.busy || now.Before(e.next) {
			continue
		}
		e.busy = true
		e.next = e.schedule.Next(now)
		e.stats.LastRun = now
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.run(ctx, e)
		}(e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	start := time.Now()
	err := safeRun(ctx, e.job)
	took := time.Since(start)

	name := e.job.Name()
	s.mu.Lock()
	e.busy = false
	e.stats.Runs++
	e.total += took
	e.stats.LastDuration = took
	if err == nil {
		e.stats.ConsecutiveFailures = 0
		e.stats.LastError = ""
	} else {
		e.stats.Failures++
		e.stats.ConsecutiveFailures++
		e.stats.LastError = err.Error()
		s.failures = append(s.failures, Failure{Job: name, At: start, Error: err.Error()})
		if over := len(s.failures) - s.keepFail; over > 0 {
			s.failures = s.failures[over:]
		}
	}
	onError := s.onError
	s.mu.Unlock()

	if err == nil {
		s.log.Debug("job completed", logger.String("job", name), logger.Latency(took))
		return
	}
	s.log.Error("job failed", logger.String("job", name), logger.Latency(took), logger.Err(err))
	if onError != nil {
		onError(name, err)
	}
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// JobStats describes one registered job.
type JobStats struct {
	Name                string
	Description         string
	Schedule            string
	LastRun             time.Time
	NextRun             time.Time
	Runs                int64
	Failures            int64
	ConsecutiveFailures int
	LastError           string
	LastDuration        time.Duration
	AverageDuration     time.Duration
}

// Failure is one failed run.
type Failure struct {
	Job   string
	At    time.Time
	Error string
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Running  bool
	Uptime   time.Duration
	Runs     int64
	Failures int64
	Jobs     []JobStats
	Recent   []Failure
}

// ListJobs returns every registered job ordered by name.
func (s *Scheduler) ListJobs() []JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobStats()
}

// Stats snapshots run counters and the recent failures, oldest first.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Running: s.running, Jobs: s.jobStats(), Recent: append([]Failure(nil), s.failures...)}
	if s.running {
		st.Uptime = time.Since(s.started)
	}
	for _, j := range st.Jobs {
		st.Runs += j.Runs
		st.Failures += j.Failures
	}
	return st
}

func (s *Scheduler) jobStats() []JobStats {
	out := make([]JobStats, 0, len(s.jobs))
	for name, e := range s.jobs {
		js := e.stats
		js.Name = name
		js.Description = e.job.Description()
		js.Schedule = e.schedule.String()
		js.NextRun = e.next
		if js.Runs > 0 {
			js.AverageDuration = e.total / time.Duration(js.Runs)
		}
		out = append(out, js)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
