// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mferrill/workherald/internal/workmeta"
)

// JobStore is an in-memory workmeta.JobStore.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]workmeta.Job
	byURL map[string]string
	clock workmeta.Clock
}

// NewJobStore constructs a JobStore. The clock stamps updated_at on every
// mutation.
func NewJobStore(clock workmeta.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]workmeta.Job),
		byURL: make(map[string]string),
		clock: clock,
	}
}

// CreateJob stores a new job, enforcing one active job per URL.
func (s *JobStore) CreateJob(_ context.Context, job workmeta.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byURL[job.URL]; exists {
		return workmeta.ErrDuplicateURL
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if job.State == "" {
		job.State = workmeta.StatePending
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = s.clock.Now()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.SubmittedAt
	}
	s.jobs[job.ID] = job
	s.byURL[job.URL] = job.ID
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (workmeta.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return workmeta.Job{}, workmeta.ErrNotFound
	}
	return job, nil
}

// GetJobByURL fetches the active job for a URL.
func (s *JobStore) GetJobByURL(_ context.Context, url string) (workmeta.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	if !ok {
		return workmeta.Job{}, workmeta.ErrNotFound
	}
	return s.jobs[id], nil
}

// ListJobsInState returns jobs in the given state, oldest submitted first.
func (s *JobStore) ListJobsInState(_ context.Context, state workmeta.JobState, limit int) ([]workmeta.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workmeta.Job
	for _, job := range s.jobs {
		if job.State == state {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkProcessing claims a pending job.
func (s *JobStore) MarkProcessing(_ context.Context, jobID string) error {
	return s.transition(jobID, workmeta.StateProcessing, func(job *workmeta.Job) {})
}

// CompleteJob writes a terminal success state with its result payload.
func (s *JobStore) CompleteJob(_ context.Context, jobID string, state workmeta.JobState, result []byte) error {
	return s.transition(jobID, state, func(job *workmeta.Job) {
		job.Result = result
	})
}

// FailJob writes error or rejection with the failure reason, keeping any
// detail payload alongside it.
func (s *JobStore) FailJob(_ context.Context, jobID string, state workmeta.JobState, reason string, detail []byte) error {
	return s.transition(jobID, state, func(job *workmeta.Job) {
		job.FailureReason = reason
		job.Result = detail
	})
}

// ReclaimStale forces pending/processing jobs untouched since the cutoff to
// error with the stuck flag set.
func (s *JobStore) ReclaimStale(_ context.Context, cutoff time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reclaimed int64
	now := s.clock.Now()
	for id, job := range s.jobs {
		if job.State.Terminal() || !job.UpdatedAt.Before(cutoff) {
			continue
		}
		job.State = workmeta.StateError
		job.Stuck = true
		job.FailureReason = reason
		job.UpdatedAt = now
		s.jobs[id] = job
		reclaimed++
	}
	return reclaimed, nil
}

// ListStuck returns error-state jobs flagged as stuck, oldest first.
func (s *JobStore) ListStuck(_ context.Context, limit int) ([]workmeta.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workmeta.Job
	for _, job := range s.jobs {
		if job.State == workmeta.StateError && job.Stuck {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteJob removes the job.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return workmeta.ErrNotFound
	}
	delete(s.jobs, jobID)
	delete(s.byURL, job.URL)
	return nil
}

func (s *JobStore) transition(jobID string, to workmeta.JobState, mutate func(*workmeta.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return workmeta.ErrNotFound
	}
	if !job.State.CanTransition(to) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.State, to, jobID)
	}
	job.State = to
	mutate(&job)
	job.UpdatedAt = s.clock.Now()
	s.jobs[jobID] = job
	return nil
}
