// Package schedule wraps the quartz scheduler for extension-registered
// recurring tasks.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/reugn/go-quartz/job"
	quartzlogger "github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// Task is a scheduled unit of work. A returned error is logged, never
// propagated; the recurring task keeps firing on schedule.
type Task func(ctx context.Context) error

// Scheduler runs cron-triggered extension tasks. Whether task handlers are
// actually invoked is gated by the enabled flag, fixed at construction; the
// underlying triggers fire either way.
type Scheduler struct {
	mu      sync.Mutex
	quartz  quartz.Scheduler
	enabled bool
	logger  *zap.Logger
	started bool
	keys    map[string]*quartz.JobKey
}

// New creates a scheduler. Tasks only invoke their handlers while enabled is
// true.
func New(enabled bool, logger *zap.Logger) (*Scheduler, error) {
	q, err := quartz.NewStdScheduler(quartz.WithLogger(quartzlogger.NewSimpleLogger(nil, quartzlogger.LevelOff)))
	if err != nil {
		return nil, fmt.Errorf("create quartz scheduler: %w", err)
	}
	return &Scheduler{
		quartz:  q,
		enabled: enabled,
		logger:  logger,
		keys:    make(map[string]*quartz.JobKey),
	}, nil
}

// Validate checks a cron expression without scheduling anything.
func Validate(expression string) error {
	_, err := quartz.NewCronTrigger(normalize(expression))
	return err
}

// Start begins trigger evaluation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.quartz.Start(ctx)
	s.started = s.quartz.IsStarted()
}

// Stop clears all jobs and shuts the scheduler down.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	_ = s.quartz.Clear()
	s.quartz.Stop()
	s.quartz.Wait(ctx)
	s.started = false
	s.keys = make(map[string]*quartz.JobKey)
}

// Schedule registers a recurring task under id. The expression is a standard
// five-field crontab string; it is validated before anything is registered.
func (s *Scheduler) Schedule(id, expression string, task Task) error {
	trigger, err := quartz.NewCronTrigger(normalize(expression))
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fnJob := job.NewFunctionJob[bool](func(ctx context.Context) (bool, error) {
		s.run(id, task)
		return true, nil
	})

	key := quartz.NewJobKey(id)
	detail := quartz.NewJobDetail(fnJob, key)
	if err := s.quartz.ScheduleJob(detail, trigger); err != nil {
		return fmt.Errorf("schedule %q: %w", id, err)
	}
	s.keys[id] = key
	return nil
}

// Unschedule stops the recurring task registered under id.
func (s *Scheduler) Unschedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return nil
	}
	delete(s.keys, id)
	if err := s.quartz.DeleteJob(key); err != nil {
		return fmt.Errorf("unschedule %q: %w", id, err)
	}
	return nil
}

// Count returns the number of registered tasks.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// run invokes the task handler, honoring the enabled gate and catching
// handler failures.
func (s *Scheduler) run(id string, task Task) {
	if !s.enabled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("scheduled task panicked",
				zap.String("task", id),
				zap.Any("panic", r))
		}
	}()
	if err := task(context.Background()); err != nil {
		s.logger.Warn("scheduled task failed",
			zap.String("task", id),
			zap.Error(err))
	}
}

// normalize converts a five-field crontab expression to the six-field form
// quartz expects by prepending a zero seconds field. Expressions already
// carrying a seconds field pass through unchanged.
func normalize(expression string) string {
	if len(strings.Fields(expression)) == 5 {
		return "0 " + expression
	}
	return expression
}
