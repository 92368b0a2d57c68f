package workmeta

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by store implementations.
var (
	// ErrNotFound signals a missing job, subscriber, or setting.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateURL signals a submission for a URL that already has an
	// active job. Callers coalesce by subscribing to the existing job.
	ErrDuplicateURL = errors.New("active job exists for url")
)

// JobStore persists jobs and drives the state machine. All mutations after
// creation come from the dispatcher.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	GetJobByURL(ctx context.Context, url string) (Job, error)
	// ListJobsInState returns jobs in the given state ordered
	// oldest-submitted-first.
	ListJobsInState(ctx context.Context, state JobState, limit int) ([]Job, error)
	MarkProcessing(ctx context.Context, jobID string) error
	// CompleteJob writes a terminal success state with its result payload.
	CompleteJob(ctx context.Context, jobID string, state JobState, result []byte) error
	// FailJob writes error or nOTP with the failure reason. A non-nil detail
	// payload is kept alongside; rejections use it to carry the extracted
	// metadata into the moderation notice.
	FailJob(ctx context.Context, jobID string, state JobState, reason string, detail []byte) error
	// ReclaimStale forces pending/processing jobs untouched since the cutoff
	// to error with the stuck flag set, returning how many were reclaimed.
	ReclaimStale(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	// ListStuck returns error-state jobs flagged as stuck, oldest first.
	ListStuck(ctx context.Context, limit int) ([]Job, error)
	// DeleteJob removes the job; subscriber rows cascade.
	DeleteJob(ctx context.Context, jobID string) error
}

// SubscriberStore persists the many-to-one requester/job mapping.
type SubscriberStore interface {
	AddSubscriber(ctx context.Context, sub Subscriber) error
	ListSubscribers(ctx context.Context, jobID string) ([]Subscriber, error)
	DeleteSubscribers(ctx context.Context, jobID string) error
}

// SettingsStore is the external key-value configuration store resolved at
// dispatch time (channel ids live here, not in static config).
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Fetcher retrieves a URL's HTML without JavaScript execution.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Renderer retrieves a URL's HTML after full browser rendering.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// RenderDetector decides whether static HTML is sufficient or a browser
// render is required.
type RenderDetector interface {
	NeedsRender(html string) bool
}

// Notifier delivers the three notification shapes to the presentation layer.
// Implementations must treat each call as at-least-once: the dispatcher
// deletes the job only after a nil return.
type Notifier interface {
	PostRejection(ctx context.Context, notice RejectionNotice) error
	PostCompletion(ctx context.Context, notice CompletionNotice) error
	SendStuckNotice(ctx context.Context, requesterID string, notice StuckNotice) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
