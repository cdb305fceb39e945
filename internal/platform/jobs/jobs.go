// Package jobs runs background work outside the request path. Producers enqueue
// typed jobs with a JSON payload; a worker dispatches them to the handler
// registered for the type, retrying failures a bounded number of times.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/platform/metrics"
)

const (
	// MaxAttempts is the number of times a job runs before it is dropped.
	MaxAttempts = 3
	// RetryBackoff times the failed attempt number is the delay before the
	// next attempt.
	RetryBackoff = 15 * time.Second
	// MaxDeferrals bounds how often RetryAfter can put a job back without
	// consuming an attempt.
	MaxDeferrals = 20
)

var ErrUnknownJobType = errors.New("unknown job type")

type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	// NotBefore is zero for jobs that may run immediately.
	NotBefore  time.Time       `json:"not_before"`
	Deferrals  int             `json:"deferrals,omitempty"`
}

func (j Job) due(now time.Time) bool {
	return !now.Before(j.NotBefore)
}

// DeferError reports that a job cannot run yet, for example because a job it
// depends on has not finished. The job is retried after the delay without
// using up an attempt.
type DeferError struct {
	Err   error
	After time.Duration
}

func (e *DeferError) Error() string { return e.Err.Error() }
func (e *DeferError) Unwrap() error { return e.Err }

// RetryAfter wraps err so the job runs again after d.
func RetryAfter(err error, d time.Duration) error {
	return &DeferError{Err: err, After: d}
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
}

// NewJob builds the first attempt of a job.
func NewJob(jobType string, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	return Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    raw,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

type HandlerFunc func(ctx context.Context, job Job) error

// Dispatcher maps job types to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   zerolog.Logger
	now      func() time.Time
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc), logger: logger, now: time.Now}
}

func (d *Dispatcher) Handle(jobType string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = fn
}

func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	d.mu.RLock()
	fn, ok := d.handlers[job.Type]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}

	start := time.Now()
	err := fn(ctx, job)
	metrics.RecordJob(job.Type, time.Since(start), err)
	return err
}

// process runs job once and decides its fate. requeue is called with the
// next run of the job when it failed and may still succeed.
func (d *Dispatcher) process(ctx context.Context, job Job, requeue func(Job) error) {
	log := d.logger.With().Str("job", job.Type).Str("job_id", job.ID.String()).Int("attempt", job.Attempt).Logger()

	err := d.Dispatch(ctx, job)
	var deferred *DeferError
	next := job
	switch {
	case err == nil:
		log.Debug().Msg("job completed")
		return
	case errors.Is(err, ErrUnknownJobType):
		log.Error().Err(err).Msg("dropping job with no handler")
		return
	case errors.As(err, &deferred) && job.Deferrals < MaxDeferrals:
		log.Info().Err(err).Dur("after", deferred.After).Int("deferrals", job.Deferrals+1).Msg("job deferred")
		next.Deferrals++
		next.NotBefore = d.now().Add(deferred.After)
	case job.Attempt >= MaxAttempts:
		log.Error().Err(err).Msg("job failed permanently")
		return
	default:
		log.Warn().Err(err).Msg("job failed, retrying")
		next.Attempt++
		next.NotBefore = d.now().Add(time.Duration(job.Attempt) * RetryBackoff)
	}
	if rqErr := requeue(next); rqErr != nil {
		log.Error().Err(rqErr).Msg("failed to requeue job")
	}
}
