// Package jobs provides the background job collaborator used by the claims
// engine: typed job creation with an optional run-at time, a handler registry,
// and an in-process runner that executes due jobs. Delivery is at-least-once;
// handlers must tolerate being invoked more than once for the same payload.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimflow/claimflow/internal/platform/notification"
)

// Job statuses.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Job is a single unit of scheduled work.
type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RunAt     time.Time       `json:"run_at"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Handler executes a job payload. A returned error marks the attempt failed;
// the runner retries up to its attempt budget.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Scheduler is the narrow interface domain services depend on. The runner
// implements it; tests substitute a recording fake.
type Scheduler interface {
	CreateJob(ctx context.Context, jobType string, payload interface{}, runAt time.Time) (string, error)
}

// Runner is an in-process Scheduler with delayed execution. Jobs are held in
// memory; a deployment that needs durable jobs swaps this for a queue-backed
// implementation of the same interfaces.
type Runner struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	order    []string
	handlers map[string]Handler

	logger      zerolog.Logger
	notifier    notification.Notifier
	maxAttempts int
	poll        time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxAttempts sets the per-job attempt budget (default 3).
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) { r.maxAttempts = n }
}

// WithPollInterval sets the due-job polling interval (default 5s).
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.poll = d }
}

// NewRunner creates a Runner. The notifier receives a critical notification
// whenever a job exhausts its attempt budget.
func NewRunner(logger zerolog.Logger, notifier notification.Notifier, opts ...RunnerOption) *Runner {
	r := &Runner{
		jobs:        make(map[string]*Job),
		handlers:    make(map[string]Handler),
		logger:      logger,
		notifier:    notifier,
		maxAttempts: 3,
		poll:        5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterHandler binds a handler to a job type. Registering twice for the
// same type replaces the previous handler.
func (r *Runner) RegisterHandler(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// CreateJob enqueues a job of the given type. A zero runAt means "as soon as
// possible". Returns the job id.
func (r *Runner) CreateJob(_ context.Context, jobType string, payload interface{}, runAt time.Time) (string, error) {
	if jobType == "" {
		return "", fmt.Errorf("job type is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}
	if runAt.IsZero() {
		runAt = time.Now()
	}

	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   raw,
		RunAt:     runAt,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.mu.Unlock()

	r.logger.Info().Str("job_id", job.ID).Str("job_type", jobType).Time("run_at", runAt).Msg("job queued")
	return job.ID, nil
}

// Start runs the polling loop until the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunDue(ctx)
		}
	}
}

// RunDue executes every queued job whose run-at time has passed. It is
// exported so tests and the worker command can drive the runner without a
// ticker.
func (r *Runner) RunDue(ctx context.Context) int {
	now := time.Now()

	r.mu.Lock()
	var due []*Job
	for _, id := range r.order {
		job := r.jobs[id]
		if job.Status == StatusQueued && !job.RunAt.After(now) {
			job.Status = StatusRunning
			due = append(due, job)
		}
	}
	r.mu.Unlock()

	for _, job := range due {
		r.execute(ctx, job)
	}
	return len(due)
}

func (r *Runner) execute(ctx context.Context, job *Job) {
	r.mu.Lock()
	handler, ok := r.handlers[job.Type]
	r.mu.Unlock()

	if !ok {
		r.fail(ctx, job, fmt.Errorf("no handler registered for job type %q", job.Type))
		return
	}

	err := r.invoke(ctx, handler, job)

	r.mu.Lock()
	job.Attempts++
	r.mu.Unlock()

	if err == nil {
		r.mu.Lock()
		job.Status = StatusDone
		r.mu.Unlock()
		r.logger.Info().Str("job_id", job.ID).Str("job_type", job.Type).Int("attempts", job.Attempts).Msg("job completed")
		return
	}

	r.mu.Lock()
	exhausted := job.Attempts >= r.maxAttempts
	if exhausted {
		job.Status = StatusFailed
		job.LastError = err.Error()
	} else {
		// Requeue for the next poll.
		job.Status = StatusQueued
		job.LastError = err.Error()
	}
	r.mu.Unlock()

	if exhausted {
		r.fail(ctx, job, err)
		return
	}
	r.logger.Warn().Err(err).Str("job_id", job.ID).Str("job_type", job.Type).Int("attempts", job.Attempts).Msg("job attempt failed, requeued")
}

// invoke runs the handler, converting a panic into an error so one bad
// payload cannot take down the runner.
func (r *Runner) invoke(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job handler panicked: %v", rec)
		}
	}()
	return handler(ctx, job.Payload)
}

func (r *Runner) fail(ctx context.Context, job *Job, err error) {
	r.mu.Lock()
	job.Status = StatusFailed
	job.LastError = err.Error()
	r.mu.Unlock()

	r.logger.Error().Err(err).Str("job_id", job.ID).Str("job_type", job.Type).Msg("job failed")
	if r.notifier != nil {
		r.notifier.SendSystemNotification(ctx, "jobs", notification.SeverityCritical, "background job failed", map[string]string{
			"job_id":   job.ID,
			"job_type": job.Type,
			"error":    err.Error(),
		})
	}
}

// Get returns a snapshot of a job by id.
func (r *Runner) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// List returns snapshots of all jobs in creation order, optionally filtered
// by status.
func (r *Runner) List(status string) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Job
	for _, id := range r.order {
		job := r.jobs[id]
		if status != "" && job.Status != status {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
