package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/metrics"
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Location evaluates cron specs; defaults to UTC.
	Location *time.Location
}

// Service executes registered jobs on their cron specs. Each run takes the
// job's distributed lock first, so replicas never sweep the same batch at once.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	location *time.Location
	now      func() time.Time
}

// NewService builds a cron service and rejects invalid specs up front.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	for _, entry := range registry.Entries() {
		if _, err := robfig.ParseStandard(entry.Spec); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", entry.Spec, entry.Job.Name(), err)
		}
	}
	location := params.Location
	if location == nil {
		location = time.UTC
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		location: location,
		now:      time.Now,
	}, nil
}

// Run schedules every registered job and blocks until the context is
// canceled, then waits for in-flight jobs to finish.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cronLog := cronLogger{logg: s.logg}
	scheduler := robfig.New(
		robfig.WithLocation(s.location),
		robfig.WithLogger(cronLog),
		robfig.WithChain(robfig.Recover(cronLog), robfig.SkipIfStillRunning(cronLog)),
	)
	for _, entry := range s.registry.Entries() {
		job := entry.Job
		if _, err := scheduler.AddFunc(entry.Spec, func() {
			_ = s.runJob(ctx, job)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name(), err)
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "schedule": entry.Spec}), "job scheduled")
	}

	scheduler.Start()
	<-ctx.Done()
	s.logg.Info(ctx, "cron service context canceled")
	<-scheduler.Stop().Done()
	return ctx.Err()
}

// RunNow executes one registered job immediately, honoring its lock.
func (s *Service) RunNow(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.runJob(ctx, job)
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")

	token, locked, err := s.lock.Acquire(jobCtx, job.Name())
	if err != nil {
		s.logg.Error(jobCtx, "job lock acquire failed", err)
		s.metrics.IncFailure(job.Name())
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(jobCtx, "another worker holds the job lock; skipping")
		s.metrics.IncLockSkipped(job.Name())
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(jobCtx, job.Name(), token); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	s.logg.Info(jobCtx, "job start")
	start := s.now()
	err = job.Run(jobCtx)
	duration := s.now().Sub(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
	return nil
}

// cronLogger routes robfig/cron's own logging through the service logger.
type cronLogger struct {
	logg *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logg.Debug(l.fields(keysAndValues), "cron: "+msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logg.Error(l.fields(keysAndValues), "cron: "+msg, err)
}

func (l cronLogger) fields(keysAndValues []any) context.Context {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return l.logg.WithFields(context.Background(), fields)
}
