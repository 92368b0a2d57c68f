// Package workmeta defines core types shared across subsystems.
package workmeta

import "time"

// BatchKind distinguishes single-work submissions from collection submissions.
type BatchKind string

// Batch kinds persisted on the job row.
const (
	BatchSingle     BatchKind = "single"
	BatchCollection BatchKind = "collection"
)

// Job represents one queued request to fetch and parse a content URL.
// Jobs are keyed by URL: at most one row exists per URL at a time.
type Job struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	State         JobState   `json:"state"`
	FastPath      bool       `json:"fast_path"`
	BatchKind     BatchKind  `json:"batch_kind,omitempty"`
	Requesters    []string   `json:"requesters"`
	Result        []byte     `json:"result,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Stuck         bool       `json:"stuck"`
	Notes         string     `json:"notes,omitempty"`
	ExtraTags     string     `json:"extra_tags,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Submitter returns the first requester, the user who originally submitted the
// URL. Collection submissions may carry several requester ids.
func (j Job) Submitter() string {
	if len(j.Requesters) == 0 {
		return ""
	}
	return j.Requesters[0]
}

// Subscriber is a party wishing to be notified of a job's outcome.
type Subscriber struct {
	JobID       string `json:"job_id"`
	RequesterID string `json:"requester_id"`
	ChannelID   string `json:"channel_id,omitempty"`
	Mention     bool   `json:"mention"`
}

// ExtractedMetadata is the raw record produced by the extractor before
// normalization. Recognized labels land in Fields or TagFields under their
// canonical key; everything else is preserved under Unknown. Structural
// anomalies are appended to Warnings, never raised as errors.
type ExtractedMetadata struct {
	Title     string              `json:"title"`
	Authors   []string            `json:"authors"`
	Summary   string              `json:"summary"`
	Fields    map[string]string   `json:"fields"`
	TagFields map[string][]string `json:"tag_fields"`
	Unknown   map[string]string   `json:"unknown,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// WorkMetadata is the normalized result payload for a single work.
type WorkMetadata struct {
	Title         string              `json:"title"`
	Authors       []string            `json:"authors"`
	Summary       string              `json:"summary,omitempty"`
	Rating        []string            `json:"rating,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
	Categories    []string            `json:"categories,omitempty"`
	Fandoms       []string            `json:"fandoms,omitempty"`
	Relationships []string            `json:"relationships,omitempty"`
	Characters    []string            `json:"characters,omitempty"`
	FreeformTags  []string            `json:"freeform_tags,omitempty"`
	Language      string              `json:"language,omitempty"`
	Series        string              `json:"series,omitempty"`
	Chapters      string              `json:"chapters,omitempty"`
	Words         int                 `json:"words,omitempty"`
	Comments      int                 `json:"comments,omitempty"`
	Kudos         int                 `json:"kudos,omitempty"`
	Bookmarks     int                 `json:"bookmarks,omitempty"`
	Hits          int                 `json:"hits,omitempty"`
	Complete      bool                `json:"complete"`
	Published     string              `json:"published,omitempty"`
	Updated       string              `json:"updated,omitempty"`
	Unknown       map[string]string   `json:"unknown,omitempty"`
	ParseWarnings []string            `json:"parse_warnings,omitempty"`
}

// SeriesWork is one member entry of a collection result.
type SeriesWork struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Words   int      `json:"words,omitempty"`
	URL     string   `json:"url,omitempty"`
}

// SeriesMetadata is the result payload for a collection submission.
type SeriesMetadata struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Works       []SeriesWork `json:"works"`
}

// RejectionNotice is routed to the moderation channel for screened-out works.
type RejectionNotice struct {
	JobID       string   `json:"job_id"`
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Reason      string   `json:"reason"`
	ChannelID   string   `json:"channel_id"`
	ThreadTitle string   `json:"thread_title"`
	Mentions    []string `json:"mentions"`
}

// CompletionNotice is routed to the results channel when a work is ready.
// Exactly one of Work or Series is set, matching the job's batch kind.
type CompletionNotice struct {
	JobID     string          `json:"job_id"`
	URL       string          `json:"url"`
	ChannelID string          `json:"channel_id"`
	Work      *WorkMetadata   `json:"work,omitempty"`
	Series    *SeriesMetadata `json:"series,omitempty"`
	Mentions  []string        `json:"mentions,omitempty"`
}

// StuckNotice is delivered directly to each subscriber of a reclaimed job.
type StuckNotice struct {
	JobID  string `json:"job_id"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}
