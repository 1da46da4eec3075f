// Package scheduler runs the periodic oracle refreshes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named refresh executed every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns the cron instance and the context handed to jobs.
type Scheduler struct {
	cron   *cron.Cron
	chain  cron.Chain
	jobs   []entry
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	initial sync.WaitGroup
}

// entry is a registered job wrapped once, so the run on Start and the cron ticks share
// the same skip-if-still-running guard.
type entry struct {
	job     Job
	wrapped cron.Job
}

// New creates a scheduler. Overlapping runs of the same job are skipped.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	cl := cronLogger{l: logger.Sugar()}

	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl)),
		chain:  cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		logger: logger,
	}
}

// Register adds a job. Jobs must be registered before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Run == nil {
		return errors.Errorf("job %q has no run function", job.Name)
	}
	if job.Interval <= 0 {
		return errors.Errorf("job %q: interval must be positive, got %s", job.Name, job.Interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Errorf("job %q registered after start", job.Name)
	}

	wrapped := s.chain.Then(cron.FuncJob(func() { s.run(job) }))
	if _, err := s.cron.AddJob(fmt.Sprintf("@every %s", job.Interval), wrapped); err != nil {
		return errors.Wrapf(err, "register job %q", job.Name)
	}
	s.jobs = append(s.jobs, entry{job: job, wrapped: wrapped})

	return nil
}

// Start runs every job once right away and then on its interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, e := range s.jobs {
		s.initial.Add(1)
		go func() {
			defer s.initial.Done()
			e.wrapped.Run()
		}()
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.initial.Wait()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Warn("job failed", zap.String("job", job.Name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}

	s.logger.Debug("job done", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
