// Package scheduler runs the assistant's recurring background jobs.
//
// Each Job ticks on its own goroutine and interval. A run gets a bounded
// context, is timed and counted, and recovers panics, so one failing job
// never stops its siblings or its own future ticks.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_scheduler_runs_total",
			Help: "Scheduler job runs by job and result.",
		},
		[]string{"job", "result"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenda_scheduler_duration_seconds",
			Help:    "Scheduler job run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration)
}

// Job is one recurring task.
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the job once immediately instead of waiting a full
	// interval for the first tick.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Scheduler owns the job goroutines.
type Scheduler struct {
	jobs    []Job
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New returns a Scheduler. timeout bounds each run; <= 0 means one interval.
func New(timeout time.Duration, log zerolog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:    jobs,
		timeout: timeout,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches one goroutine per job. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		if j.Interval <= 0 || j.Run == nil {
			s.log.Warn().Str("job", j.Name).Msg("job disabled")
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop cancels all loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()

	if j.RunOnStart {
		_ = s.RunJob(ctx, j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.RunJob(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

// RunJob executes one run of j with timeout, metrics, logging and panic
// recovery. The returned error has already been logged.
func (s *Scheduler) RunJob(ctx context.Context, j Job) (err error) {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer("scheduler").Start(ctx, j.Name,
		trace.WithAttributes(attribute.String("job", j.Name)),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
		runDuration.WithLabelValues(j.Name).Observe(time.Since(start).Seconds())
		if err != nil {
			runsTotal.WithLabelValues(j.Name, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "job failed")
			s.log.Error().Err(err).Str("job", j.Name).Msg("job failed")
		} else {
			runsTotal.WithLabelValues(j.Name, "ok").Inc()
			s.log.Debug().Str("job", j.Name).Dur("took", time.Since(start)).Msg("job done")
		}
		span.End()
	}()

	return j.Run(ctx)
}
