package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mferrill/workherald/internal/workmeta"
)

// JobStore implements workmeta.JobStore on Postgres. The jobs table is the
// queue: the dispatcher claims pending rows oldest-submitted-first.
type JobStore struct {
	pool pgxIface
}

// NewJobStore connects a JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(pool pgxIface) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	s.pool.Close()
}

const jobColumns = `id, url, state, fast_path, batch_kind, requesters, result, failure_reason, stuck, notes, extra_tags, submitted_at, updated_at`

// CreateJob inserts a new job row. A second active job for the same URL
// fails with workmeta.ErrDuplicateURL.
func (s *JobStore) CreateJob(ctx context.Context, job workmeta.Job) error {
	query := `
		INSERT INTO jobs (id, url, state, fast_path, batch_kind, requesters, notes, extra_tags, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	state := job.State
	if state == "" {
		state = workmeta.StatePending
	}
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.URL,
		string(state),
		job.FastPath,
		nullable(string(job.BatchKind)),
		strings.Join(job.Requesters, ","),
		nullable(job.Notes),
		nullable(job.ExtraTags),
		job.SubmittedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return workmeta.ErrDuplicateURL
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by its ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (workmeta.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	return s.scanJob(s.pool.QueryRow(ctx, query, jobID))
}

// GetJobByURL retrieves the active job for a URL.
func (s *JobStore) GetJobByURL(ctx context.Context, url string) (workmeta.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE url = $1;`
	return s.scanJob(s.pool.QueryRow(ctx, query, url))
}

// ListJobsInState returns jobs in the given state ordered
// oldest-submitted-first.
func (s *JobStore) ListJobsInState(ctx context.Context, state workmeta.JobState, limit int) ([]workmeta.Job, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE state = $1
		ORDER BY submitted_at ASC
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, query, string(state), nullableLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return s.collectJobs(rows)
}

// MarkProcessing claims a pending job for the dispatcher.
func (s *JobStore) MarkProcessing(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs SET state = $2, updated_at = NOW()
		WHERE id = $1 AND state = $3;
	`
	tag, err := s.pool.Exec(ctx, query, jobID, string(workmeta.StateProcessing), string(workmeta.StatePending))
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workmeta.ErrNotFound
	}
	return nil
}

// CompleteJob writes a terminal success state with its result payload.
func (s *JobStore) CompleteJob(ctx context.Context, jobID string, state workmeta.JobState, result []byte) error {
	if !workmeta.StateProcessing.CanTransition(state) {
		return fmt.Errorf("illegal terminal state %s", state)
	}
	query := `
		UPDATE jobs SET state = $2, result = $3, updated_at = NOW()
		WHERE id = $1 AND state = $4;
	`
	tag, err := s.pool.Exec(ctx, query, jobID, string(state), result, string(workmeta.StateProcessing))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workmeta.ErrNotFound
	}
	return nil
}

// FailJob writes error or rejection with the failure reason. Rejections
// persist the extracted metadata as the detail payload so the moderation
// notice can name the work.
func (s *JobStore) FailJob(ctx context.Context, jobID string, state workmeta.JobState, reason string, detail []byte) error {
	if state != workmeta.StateError && state != workmeta.StateRejected {
		return fmt.Errorf("illegal failure state %s", state)
	}
	query := `
		UPDATE jobs SET state = $2, failure_reason = $3, result = $4, updated_at = NOW()
		WHERE id = $1 AND state IN ($5, $6);
	`
	tag, err := s.pool.Exec(ctx, query, jobID, string(state), reason, detail,
		string(workmeta.StatePending), string(workmeta.StateProcessing))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workmeta.ErrNotFound
	}
	return nil
}

// ReclaimStale forces non-terminal jobs untouched since the cutoff to error
// with the stuck flag set.
func (s *JobStore) ReclaimStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	query := `
		UPDATE jobs SET state = $1, stuck = TRUE, failure_reason = $2, updated_at = NOW()
		WHERE state IN ($3, $4) AND updated_at < $5;
	`
	tag, err := s.pool.Exec(ctx, query,
		string(workmeta.StateError),
		reason,
		string(workmeta.StatePending),
		string(workmeta.StateProcessing),
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListStuck returns error-state jobs flagged as stuck, oldest first.
func (s *JobStore) ListStuck(ctx context.Context, limit int) ([]workmeta.Job, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE state = $1 AND stuck
		ORDER BY submitted_at ASC
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, query, string(workmeta.StateError), nullableLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	defer rows.Close()
	return s.collectJobs(rows)
}

// DeleteJob removes the job row; subscriber rows cascade.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workmeta.ErrNotFound
	}
	return nil
}

func (s *JobStore) collectJobs(rows pgx.Rows) ([]workmeta.Job, error) {
	var jobs []workmeta.Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) scanJob(row pgx.Row) (workmeta.Job, error) {
	var (
		job           workmeta.Job
		state         string
		batchKind     *string
		requesters    string
		failureReason *string
		notes         *string
		extraTags     *string
	)
	err := row.Scan(
		&job.ID,
		&job.URL,
		&state,
		&job.FastPath,
		&batchKind,
		&requesters,
		&job.Result,
		&failureReason,
		&job.Stuck,
		&notes,
		&extraTags,
		&job.SubmittedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workmeta.Job{}, workmeta.ErrNotFound
		}
		return workmeta.Job{}, fmt.Errorf("scan job row: %w", err)
	}
	job.State = workmeta.JobState(state)
	if !job.State.Valid() {
		return workmeta.Job{}, fmt.Errorf("unknown job state %q for job %s", state, job.ID)
	}
	if requesters != "" {
		job.Requesters = strings.Split(requesters, ",")
	}
	if batchKind != nil {
		job.BatchKind = workmeta.BatchKind(*batchKind)
	}
	if failureReason != nil {
		job.FailureReason = *failureReason
	}
	if notes != nil {
		job.Notes = *notes
	}
	if extraTags != nil {
		job.ExtraTags = *extraTags
	}
	return job, nil
}
