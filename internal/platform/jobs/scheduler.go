package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/platform/lock"
)

// tickLockTTL outlives clock skew between replicas. Tick locks are never
// released so a late replica cannot take the same minute.
const tickLockTTL = 5 * time.Minute

// Scheduler triggers periodic work on cron expressions. A run that is still
// going when its next tick fires is skipped. Every replica runs a scheduler;
// the locker lets one of them run each tick.
type Scheduler struct {
	cron   *cron.Cron
	locker lock.Locker
	logger zerolog.Logger
	ctx    context.Context
	now    func() time.Time
}

func NewScheduler(locker lock.Locker, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		locker: locker,
		logger: logger,
		ctx:    context.Background(),
		now:    time.Now,
	}
}

// Every registers fn under name. Register before Run.
func (s *Scheduler) Every(spec, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() { s.tick(s.ctx, name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// tick runs fn unless another replica already claimed this minute for name.
// It reports whether fn ran. A failing locker does not stop the run.
func (s *Scheduler) tick(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	log := s.logger.With().Str("schedule", name).Logger()
	at := s.now().UTC().Truncate(time.Minute)
	_, ok, err := s.locker.Acquire(ctx, fmt.Sprintf("cron:%s:%d", name, at.Unix()), tickLockTTL)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("cron lock unavailable, running anyway")
	case !ok:
		log.Debug().Time("tick", at).Msg("tick taken by another replica")
		return false
	}

	start := time.Now()
	if err := fn(ctx); err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("scheduled run failed")
		return true
	}
	log.Info().Dur("duration", time.Since(start)).Msg("scheduled run completed")
	return true
}

// EnqueueEvery schedules a job of jobType to be enqueued on spec.
func (s *Scheduler) EnqueueEvery(spec string, q Queue, jobType string, payload any) error {
	return s.Every(spec, jobType, func(ctx context.Context) error {
		return q.Enqueue(ctx, jobType, payload)
	})
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
