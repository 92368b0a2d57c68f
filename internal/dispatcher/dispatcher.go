// Package dispatcher drives the job queue: it claims pending work, runs the
// fetch-and-parse pipeline, and fans terminal states out as notifications.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mferrill/workherald/internal/extract"
	"github.com/mferrill/workherald/internal/metrics"
	"github.com/mferrill/workherald/internal/policy"
	"github.com/mferrill/workherald/internal/workmeta"
)

// Settings keys resolved against the external KV store on every tick so
// operators can repoint channels without a restart.
const (
	settingModerationChannel = "channel.moderation"
	settingResultsChannel    = "channel.results"
)

// Config controls Dispatcher behavior.
type Config struct {
	TickInterval time.Duration
	ClaimLimit   int
	StaleAfter   time.Duration
}

// Dispatcher owns job mutation after submission. One instance runs at a time.
type Dispatcher struct {
	jobs     workmeta.JobStore
	subs     workmeta.SubscriberStore
	settings workmeta.SettingsStore
	fetcher  workmeta.Fetcher
	detector workmeta.RenderDetector
	renderer workmeta.Renderer
	screener *policy.Screener
	notifier workmeta.Notifier
	clock    workmeta.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Dispatcher.
func New(
	jobs workmeta.JobStore,
	subs workmeta.SubscriberStore,
	settings workmeta.SettingsStore,
	fetcher workmeta.Fetcher,
	detector workmeta.RenderDetector,
	renderer workmeta.Renderer,
	screener *policy.Screener,
	notifier workmeta.Notifier,
	clock workmeta.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 20 * time.Minute
	}
	return &Dispatcher{
		jobs:     jobs,
		subs:     subs,
		settings: settings,
		fetcher:  fetcher,
		detector: detector,
		renderer: renderer,
		screener: screener,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run ticks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs the four passes in order. Each pass snapshots its eligible rows;
// a failure on one row is logged and does not stop the others.
func (d *Dispatcher) Tick(ctx context.Context) {
	start := time.Now()
	d.runPendingPass(ctx)
	d.runRejectionPass(ctx)
	d.runCompletionPass(ctx)
	d.runReclamationPass(ctx)
	metrics.ObserveTick(time.Since(start))
}

func (d *Dispatcher) runPendingPass(ctx context.Context) {
	jobs, err := d.jobs.ListJobsInState(ctx, workmeta.StatePending, d.cfg.ClaimLimit)
	if err != nil {
		d.logger.Error("list pending jobs failed", zap.Error(err))
		return
	}
	for _, job := range jobs {
		if err := d.jobs.MarkProcessing(ctx, job.ID); err != nil {
			if !errors.Is(err, workmeta.ErrNotFound) {
				d.logger.Error("claim job failed", zap.String("job_id", job.ID), zap.Error(err))
			}
			continue
		}
		d.processJob(ctx, job)
	}
}

func (d *Dispatcher) processJob(ctx context.Context, job workmeta.Job) {
	html, err := d.fetchHTML(ctx, job)
	if err != nil {
		d.failJob(ctx, job, workmeta.StateError, fmt.Sprintf("fetch failed: %v", err), nil)
		return
	}

	if job.BatchKind == workmeta.BatchCollection {
		d.processSeries(ctx, job, html)
		return
	}
	d.processWork(ctx, job, html)
}

// fetchHTML probes the URL statically first; a browser render happens only
// when the static document lacks the metadata block.
func (d *Dispatcher) fetchHTML(ctx context.Context, job workmeta.Job) (string, error) {
	html, err := d.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		return "", err
	}
	if !d.detector.NeedsRender(html) {
		return html, nil
	}
	d.logger.Debug("static fetch insufficient, rendering", zap.String("job_id", job.ID), zap.String("url", job.URL))
	return d.renderer.Render(ctx, job.URL)
}

func (d *Dispatcher) processWork(ctx context.Context, job workmeta.Job, html string) {
	meta, err := extract.Extract(html)
	if err != nil {
		d.failJob(ctx, job, workmeta.StateError, fmt.Sprintf("extract failed: %v", err), nil)
		return
	}
	metrics.ObserveExtractWarnings(len(meta.Warnings))

	work, err := extract.Normalize(meta)
	if err != nil {
		d.failJob(ctx, job, workmeta.StateError, fmt.Sprintf("validation failed: %v", err), nil)
		return
	}

	if ok, reason := d.screener.Screen(work); !ok {
		// Keep the extracted metadata with the rejection so the moderation
		// notice can carry the work's title.
		detail, _ := json.Marshal(work)
		d.failJob(ctx, job, workmeta.StateRejected, reason, detail)
		return
	}

	payload, err := json.Marshal(work)
	if err != nil {
		d.failJob(ctx, job, workmeta.StateError, fmt.Sprintf("encode result: %v", err), nil)
		return
	}
	d.completeJob(ctx, job, workmeta.StateDone, payload)
}

func (d *Dispatcher) processSeries(ctx context.Context, job workmeta.Job, html string) {
	series, err := extract.ExtractSeries(html)
	if err != nil {
		d.failJob(ctx, job, workmeta.StateError, fmt.Sprintf("series extract failed: %v", err), nil)
		return
	}
	payload, err := json.Marshal(series)
	if err != nil {
		d.failJob(ctx, job, workmeta.StateError, fmt.Sprintf("encode result: %v", err), nil)
		return
	}
	d.completeJob(ctx, job, workmeta.StateSeriesDone, payload)
}

func (d *Dispatcher) completeJob(ctx context.Context, job workmeta.Job, state workmeta.JobState, payload []byte) {
	if err := d.jobs.CompleteJob(ctx, job.ID, state, payload); err != nil {
		d.logger.Error("complete job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(state))
	d.logger.Info("job completed", zap.String("job_id", job.ID), zap.String("state", string(state)))
}

func (d *Dispatcher) failJob(ctx context.Context, job workmeta.Job, state workmeta.JobState, reason string, detail []byte) {
	if err := d.jobs.FailJob(ctx, job.ID, state, reason, detail); err != nil {
		d.logger.Error("fail job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(state))
	d.logger.Warn("job failed",
		zap.String("job_id", job.ID),
		zap.String("state", string(state)),
		zap.String("reason", reason),
	)
}

// runRejectionPass routes nOTP jobs to the moderation channel and deletes
// them once the notice lands. An unset moderation channel skips the whole
// pass without side effects so jobs retry next tick.
func (d *Dispatcher) runRejectionPass(ctx context.Context) {
	jobs, err := d.jobs.ListJobsInState(ctx, workmeta.StateRejected, 0)
	if err != nil {
		d.logger.Error("list rejected jobs failed", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	channel, err := d.settings.Get(ctx, settingModerationChannel)
	if err != nil {
		if errors.Is(err, workmeta.ErrNotFound) {
			d.logger.Warn("moderation channel not configured, deferring rejected jobs")
		} else {
			d.logger.Error("resolve moderation channel failed", zap.Error(err))
		}
		return
	}

	for _, job := range jobs {
		subs, err := d.subs.ListSubscribers(ctx, job.ID)
		if err != nil {
			d.logger.Error("list subscribers failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		notice := workmeta.RejectionNotice{
			JobID:       job.ID,
			URL:         job.URL,
			Title:       rejectedTitle(job),
			Reason:      job.FailureReason,
			ChannelID:   channel,
			ThreadTitle: "Review: " + job.URL,
			Mentions:    mentionList(job, subs, false),
		}
		if err := d.notifier.PostRejection(ctx, notice); err != nil {
			d.logger.Error("post rejection failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		metrics.ObserveNotification("rejection")
		d.finishJob(ctx, job.ID)
	}
}

// rejectedTitle recovers the work title from a rejection's detail payload.
// Jobs rejected before extraction succeeded have none.
func rejectedTitle(job workmeta.Job) string {
	if len(job.Result) == 0 {
		return ""
	}
	var work workmeta.WorkMetadata
	if err := json.Unmarshal(job.Result, &work); err != nil {
		return ""
	}
	return work.Title
}

// runCompletionPass posts done and series-done results and deletes the jobs.
func (d *Dispatcher) runCompletionPass(ctx context.Context) {
	var jobs []workmeta.Job
	for _, state := range []workmeta.JobState{workmeta.StateDone, workmeta.StateSeriesDone} {
		batch, err := d.jobs.ListJobsInState(ctx, state, 0)
		if err != nil {
			d.logger.Error("list completed jobs failed", zap.String("state", string(state)), zap.Error(err))
			return
		}
		jobs = append(jobs, batch...)
	}
	if len(jobs) == 0 {
		return
	}
	// The two per-state lists are each oldest-first; the merged list must be
	// too, so work and series results interleave by submission time.
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].SubmittedAt.Before(jobs[j].SubmittedAt)
	})

	channel, err := d.settings.Get(ctx, settingResultsChannel)
	if err != nil {
		if errors.Is(err, workmeta.ErrNotFound) {
			d.logger.Warn("results channel not configured, deferring completed jobs")
		} else {
			d.logger.Error("resolve results channel failed", zap.Error(err))
		}
		return
	}

	for _, job := range jobs {
		notice, err := d.buildCompletionNotice(job, channel)
		if err != nil {
			// Leave the job in place for manual inspection rather than
			// notifying with an empty payload.
			d.logger.Error("unusable result payload", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		subs, err := d.subs.ListSubscribers(ctx, job.ID)
		if err != nil {
			d.logger.Error("list subscribers failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		notice.Mentions = mentionList(job, subs, true)
		if err := d.notifier.PostCompletion(ctx, *notice); err != nil {
			d.logger.Error("post completion failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		metrics.ObserveNotification("completion")
		d.finishJob(ctx, job.ID)
	}
}

func (d *Dispatcher) buildCompletionNotice(job workmeta.Job, channel string) (*workmeta.CompletionNotice, error) {
	if len(job.Result) == 0 {
		return nil, errors.New("result payload missing")
	}
	notice := workmeta.CompletionNotice{
		JobID:     job.ID,
		URL:       job.URL,
		ChannelID: channel,
	}
	switch job.State {
	case workmeta.StateSeriesDone:
		var series workmeta.SeriesMetadata
		if err := json.Unmarshal(job.Result, &series); err != nil {
			return nil, fmt.Errorf("decode series result: %w", err)
		}
		notice.Series = &series
	default:
		var work workmeta.WorkMetadata
		if err := json.Unmarshal(job.Result, &work); err != nil {
			return nil, fmt.Errorf("decode work result: %w", err)
		}
		notice.Work = &work
	}
	return &notice, nil
}

// runReclamationPass forces stale pending/processing jobs to error+stuck,
// then drains already-stuck jobs with per-subscriber direct notices.
func (d *Dispatcher) runReclamationPass(ctx context.Context) {
	cutoff := d.clock.Now().Add(-d.cfg.StaleAfter)
	n, err := d.jobs.ReclaimStale(ctx, cutoff, workmeta.StuckMarker)
	if err != nil {
		d.logger.Error("reclaim stale jobs failed", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.ObserveReclaimed(n)
		d.logger.Warn("reclaimed stale jobs", zap.Int64("count", n))
	}

	stuck, err := d.jobs.ListStuck(ctx, 0)
	if err != nil {
		d.logger.Error("list stuck jobs failed", zap.Error(err))
		return
	}
	for _, job := range stuck {
		subs, err := d.subs.ListSubscribers(ctx, job.ID)
		if err != nil {
			d.logger.Error("list subscribers failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		notice := workmeta.StuckNotice{
			JobID:  job.ID,
			URL:    job.URL,
			Reason: job.FailureReason,
		}
		delivered := true
		for _, sub := range subs {
			if err := d.notifier.SendStuckNotice(ctx, sub.RequesterID, notice); err != nil {
				d.logger.Error("send stuck notice failed",
					zap.String("job_id", job.ID),
					zap.String("requester_id", sub.RequesterID),
					zap.Error(err),
				)
				delivered = false
				break
			}
		}
		if !delivered {
			continue
		}
		metrics.ObserveNotification("stuck")
		d.finishJob(ctx, job.ID)
	}
}

// finishJob deletes subscribers then the job row. Deletion after delivery is
// what makes notification idempotent: a deleted job can never notify again.
func (d *Dispatcher) finishJob(ctx context.Context, jobID string) {
	if err := d.subs.DeleteSubscribers(ctx, jobID); err != nil {
		d.logger.Error("delete subscribers failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if err := d.jobs.DeleteJob(ctx, jobID); err != nil && !errors.Is(err, workmeta.ErrNotFound) {
		d.logger.Error("delete job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// mentionList builds the mention set for a notice: the submitter first, then
// subscribers who opted in, deduplicated. Fast-path jobs get no mentions on
// completion notices.
func mentionList(job workmeta.Job, subs []workmeta.Subscriber, honorFastPath bool) []string {
	if honorFastPath && job.FastPath {
		return nil
	}
	seen := make(map[string]struct{})
	var mentions []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		mentions = append(mentions, id)
	}
	add(job.Submitter())
	for _, sub := range subs {
		if sub.Mention {
			add(sub.RequesterID)
		}
	}
	return mentions
}
