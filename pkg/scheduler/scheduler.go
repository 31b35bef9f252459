package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/types"
)

// Job is one recurring task.
type Job struct {
	Name    string
	Cadence Cadence
	Run     func(ctx context.Context) error
}

// Scheduler fires jobs on their cadences. Edge-triggered: a job's next
// firing is computed from the wall clock when it fires, so ticks missed
// while the process was down or the job was still running are not
// replayed. A job never overlaps itself.
type Scheduler struct {
	elog   *eventlog.Logger
	logger zerolog.Logger
	now    func() time.Time
	tick   time.Duration

	mu   sync.Mutex
	jobs []*jobState
}

type jobState struct {
	Job
	next    time.Time
	running bool
}

// New creates an empty scheduler. elog may be nil.
func New(elog *eventlog.Logger) *Scheduler {
	return &Scheduler{
		elog:   elog,
		logger: log.WithActor("scheduler"),
		now:    time.Now,
		tick:   time.Second,
	}
}

// Add registers a job. The first firing is one full cadence after Run
// starts, never immediately.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &jobState{Job: job})
}

// Run drives the job table until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.now()
	s.mu.Lock()
	for _, j := range s.jobs {
		j.next = j.Cadence.Next(start)
		s.logger.Info().Str("job", j.Name).Str("cadence", j.Cadence.String()).Time("next", j.next).Msg("job scheduled")
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

// fireDue launches every due, idle job.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.running || now.Before(j.next) {
			continue
		}
		j.running = true
		j.next = j.Cadence.Next(now)
		go s.runJob(ctx, j)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *jobState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", j.Name).Interface("panic", r).Msg("job panicked")
			metrics.ScheduledRuns.WithLabelValues(j.Name, "panic").Inc()
		}
		s.mu.Lock()
		j.running = false
		s.mu.Unlock()
	}()

	start := s.now()
	err := j.Run(ctx)
	result := "ok"
	if err != nil {
		result = types.KindOf(err).String()
		s.logger.Error().Err(err).Str("job", j.Name).Msg("job failed")
	}
	metrics.ScheduledRuns.WithLabelValues(j.Name, result).Inc()
	if s.elog != nil {
		s.elog.Record(types.LogRecord{
			EventType: "scheduled_run",
			Action:    j.Name,
			Result:    result,
			Detail:    map[string]any{"duration_ms": s.now().Sub(start).Milliseconds()},
		})
	}
}
