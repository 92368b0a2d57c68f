// Package submit implements the submission interface: enqueue a content URL
// and subscribe requesters to its outcome.
package submit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/mferrill/workherald/internal/workmeta"
)

// Service creates jobs and subscriptions. It never mutates job state after
// creation; that is the dispatcher's job.
type Service struct {
	jobs   workmeta.JobStore
	subs   workmeta.SubscriberStore
	idGen  workmeta.IDGenerator
	clock  workmeta.Clock
	logger *zap.Logger
}

// New constructs a Service.
func New(jobs workmeta.JobStore, subs workmeta.SubscriberStore, idGen workmeta.IDGenerator, clock workmeta.Clock, logger *zap.Logger) *Service {
	return &Service{
		jobs:   jobs,
		subs:   subs,
		idGen:  idGen,
		clock:  clock,
		logger: logger,
	}
}

// Request carries one submission.
type Request struct {
	URL         string
	RequesterID string
	FastPath    bool
	Notes       string
	ExtraTags   string
}

// Enqueue creates a job for the URL and subscribes the requester to it. A
// second submission of an in-flight URL coalesces: the requester is added as
// a subscriber of the existing job and its id is returned.
func (s *Service) Enqueue(ctx context.Context, req Request) (string, error) {
	target, err := validateURL(req.URL)
	if err != nil {
		return "", err
	}
	if req.RequesterID == "" {
		return "", errors.New("requester id is required")
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := workmeta.Job{
		ID:          jobID,
		URL:         target,
		State:       workmeta.StatePending,
		FastPath:    req.FastPath,
		BatchKind:   batchKindOf(target),
		Requesters:  []string{req.RequesterID},
		Notes:       req.Notes,
		ExtraTags:   req.ExtraTags,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		if errors.Is(err, workmeta.ErrDuplicateURL) {
			return s.coalesce(ctx, target, req.RequesterID)
		}
		return "", fmt.Errorf("create job: %w", err)
	}

	if err := s.subs.AddSubscriber(ctx, workmeta.Subscriber{
		JobID:       jobID,
		RequesterID: req.RequesterID,
		Mention:     true,
	}); err != nil {
		return "", fmt.Errorf("subscribe submitter: %w", err)
	}

	s.logger.Info("job enqueued",
		zap.String("job_id", jobID),
		zap.String("url", target),
		zap.Bool("fast_path", req.FastPath),
		zap.String("batch_kind", string(job.BatchKind)),
	)
	return jobID, nil
}

// coalesce attaches the requester to the job already in flight for the URL.
func (s *Service) coalesce(ctx context.Context, target, requesterID string) (string, error) {
	existing, err := s.jobs.GetJobByURL(ctx, target)
	if err != nil {
		return "", fmt.Errorf("lookup existing job: %w", err)
	}
	if err := s.subs.AddSubscriber(ctx, workmeta.Subscriber{
		JobID:       existing.ID,
		RequesterID: requesterID,
		Mention:     true,
	}); err != nil {
		return "", fmt.Errorf("subscribe to existing job: %w", err)
	}
	s.logger.Info("submission coalesced",
		zap.String("job_id", existing.ID),
		zap.String("url", target),
		zap.String("requester_id", requesterID),
	)
	return existing.ID, nil
}

// Subscribe registers a requester's interest in an existing job. Repeat
// subscriptions update the channel and mention preference in place.
func (s *Service) Subscribe(ctx context.Context, jobID, requesterID, channelID string, mention bool) error {
	if requesterID == "" {
		return errors.New("requester id is required")
	}
	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		return fmt.Errorf("lookup job: %w", err)
	}
	if err := s.subs.AddSubscriber(ctx, workmeta.Subscriber{
		JobID:       jobID,
		RequesterID: requesterID,
		ChannelID:   channelID,
		Mention:     mention,
	}); err != nil {
		return fmt.Errorf("add subscriber: %w", err)
	}
	return nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", raw)
	}
	return parsed.String(), nil
}

// batchKindOf classifies the submission from its URL path: collection pages
// live under a /series/ segment.
func batchKindOf(target string) workmeta.BatchKind {
	parsed, err := url.Parse(target)
	if err != nil {
		return workmeta.BatchSingle
	}
	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment == "series" {
			return workmeta.BatchCollection
		}
	}
	return workmeta.BatchSingle
}
