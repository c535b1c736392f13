package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = errors.New("provisioning job not found")

// JobStatus is the state of one provisioning attempt, distinct from the
// request's lifecycle status.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is the durable record of one provisioning attempt. Persisting jobs
// before they run means a process restart can recover work instead of
// stranding requests in provisioning forever.
type Job struct {
	ID              string
	RequestID       string
	Status          JobStatus
	PercentComplete int
	CurrentStep     string
	Error           string
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// JobStore persists provisioning jobs.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error

	// ListUnfinished returns queued and running jobs, oldest first. Used
	// on startup to re-enter interrupted work.
	ListUnfinished(ctx context.Context) ([]Job, error)
}

// MemJobStore is the in-memory JobStore for development and tests.
type MemJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemJobStore() *MemJobStore {
	return &MemJobStore{jobs: make(map[string]*Job)}
}

func (s *MemJobStore) Create(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemJobStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *MemJobStore) Update(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemJobStore) ListUnfinished(ctx context.Context) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Job
	for _, job := range s.jobs {
		if job.Status == JobQueued || job.Status == JobRunning {
			result = append(result, *job)
		}
	}
	return result, nil
}

// PostgresJobStore is the production JobStore.
type PostgresJobStore struct {
	pool *pgxpool.Pool
}

func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{pool: pool}
}

func (s *PostgresJobStore) Create(ctx context.Context, job *Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provisioning_jobs (id, request_id, status, percent_complete, current_step, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.RequestID, job.Status, job.PercentComplete, job.CurrentStep, job.Error, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, request_id, status, percent_complete, current_step, error, created_at, started_at, finished_at
		FROM provisioning_jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) Update(ctx context.Context, job *Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE provisioning_jobs
		SET status = $2, percent_complete = $3, current_step = $4, error = $5, started_at = $6, finished_at = $7
		WHERE id = $1`,
		job.ID, job.Status, job.PercentComplete, job.CurrentStep, job.Error, job.StartedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresJobStore) ListUnfinished(ctx context.Context) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, status, percent_complete, current_step, error, created_at, started_at, finished_at
		FROM provisioning_jobs WHERE status IN ('queued', 'running') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query unfinished jobs: %w", err)
	}
	defer rows.Close()

	var result []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		result = append(result, *job)
	}
	return result, rows.Err()
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	var status string
	var startedAt, finishedAt pgtype.Timestamptz

	err := row.Scan(&job.ID, &job.RequestID, &status, &job.PercentComplete,
		&job.CurrentStep, &job.Error, &job.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	job.Status = JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
