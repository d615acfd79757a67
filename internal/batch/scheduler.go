package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler states.
const (
	StateStopped = "STOPPED"
	StateRunning = "RUNNING"
)

// Job is a first-class scheduled task. Exactly one of Every or At must be
// set: Every runs on a fixed period, At runs daily at "HH:MM" (local time).
// A job missed while the scheduler was unavailable still runs once within
// Grace of its scheduled time, otherwise it is skipped until the next
// occurrence.
type Job struct {
	Name  string
	Every time.Duration
	At    string
	Grace time.Duration
	Run   func(ctx context.Context) error
}

// JobStatus reports one job's scheduling state.
type JobStatus struct {
	Name      string     `json:"name"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   time.Time  `json:"next_run"`
	Runs      int        `json:"runs"`
	LastError string     `json:"last_error,omitempty"`
}

type jobEntry struct {
	job     Job
	nextRun time.Time
	lastRun *time.Time
	runs    int
	lastErr string
}

// Scheduler drives time-triggered jobs from a single ticker loop.
// Start and Stop are idempotent.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []*jobEntry
	state  string
	tick   time.Duration
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a stopped scheduler with the given tick resolution.
func NewScheduler(tick time.Duration, logger *zap.Logger) *Scheduler {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Scheduler{
		state:  StateStopped,
		tick:   tick,
		logger: logger,
		now:    time.Now,
	}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job has empty name")
	}
	if (job.Every <= 0) == (job.At == "") {
		return fmt.Errorf("job %q must set exactly one of Every or At", job.Name)
	}
	if job.At != "" {
		if _, err := time.Parse("15:04", job.At); err != nil {
			return fmt.Errorf("job %q: invalid At %q: %w", job.Name, job.At, err)
		}
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no Run function", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.jobs {
		if e.job.Name == job.Name {
			return fmt.Errorf("job %q already registered", job.Name)
		}
	}
	s.jobs = append(s.jobs, &jobEntry{
		job:     job,
		nextRun: s.nextOccurrence(job, s.now()),
	})
	return nil
}

// Start moves the scheduler to RUNNING and begins the ticker loop.
// Starting a running scheduler logs a warning and is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		s.logger.Warn("scheduler already running")
		return
	}
	s.state = StateRunning
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop moves the scheduler to STOPPED and waits for the loop to exit.
// Stopping a stopped scheduler logs a warning and is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		s.logger.Warn("scheduler already stopped")
		return
	}
	s.state = StateStopped
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// State returns STOPPED or RUNNING.
func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status reports per-job scheduling state.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		statuses = append(statuses, JobStatus{
			Name:      e.job.Name,
			LastRun:   e.lastRun,
			NextRun:   e.nextRun,
			Runs:      e.runs,
			LastError: e.lastErr,
		})
	}
	return statuses
}

// RunNow executes a job immediately, outside its schedule. The regular
// schedule is unaffected.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var entry *jobEntry
	for _, e := range s.jobs {
		if e.job.Name == name {
			entry = e
			break
		}
	}
	s.mu.Unlock()

	if entry == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	s.execute(ctx, entry)
	return nil
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue()
		}
	}
}

// dispatchDue runs every job whose scheduled time has arrived. A job past
// its grace window is skipped and rescheduled for the next occurrence.
func (s *Scheduler) dispatchDue() {
	now := s.now()

	s.mu.Lock()
	var due []*jobEntry
	for _, e := range s.jobs {
		if now.Before(e.nextRun) {
			continue
		}
		if e.job.Grace > 0 && now.After(e.nextRun.Add(e.job.Grace)) {
			s.logger.Warn("job missed its grace window, skipping",
				zap.String("job", e.job.Name),
				zap.Time("scheduled", e.nextRun),
			)
		} else {
			due = append(due, e)
		}
		e.nextRun = s.nextOccurrence(e.job, now)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.execute(s.ctx, e)
	}
}

// execute runs one job, recording its outcome. Job failures are isolated:
// they are logged and never affect the scheduler or sibling jobs.
func (s *Scheduler) execute(ctx context.Context, e *jobEntry) {
	start := s.now()
	s.logger.Info("job starting", zap.String("job", e.job.Name))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return e.job.Run(ctx)
	}()

	s.mu.Lock()
	t := s.now()
	e.lastRun = &t
	e.runs++
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			zap.String("job", e.job.Name),
			zap.Duration("duration", s.now().Sub(start)),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("job finished",
		zap.String("job", e.job.Name),
		zap.Duration("duration", s.now().Sub(start)),
	)
}

// nextOccurrence computes when the job should next run after the given time.
func (s *Scheduler) nextOccurrence(job Job, after time.Time) time.Time {
	if job.Every > 0 {
		return after.Add(job.Every)
	}

	at, _ := time.Parse("15:04", job.At)
	next := time.Date(after.Year(), after.Month(), after.Day(),
		at.Hour(), at.Minute(), 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
