package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/mferrill/workherald/internal/workmeta"
)

// logNotifier emits notices as structured log lines. It stands in for a real
// presentation integration, which consumes the same workmeta.Notifier
// interface.
type logNotifier struct {
	logger *zap.Logger
}

func newLogNotifier(logger *zap.Logger) *logNotifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) PostRejection(_ context.Context, notice workmeta.RejectionNotice) error {
	n.logger.Info("rejection notice",
		zap.String("job_id", notice.JobID),
		zap.String("url", notice.URL),
		zap.String("channel_id", notice.ChannelID),
		zap.String("reason", notice.Reason),
		zap.Strings("mentions", notice.Mentions),
	)
	return nil
}

func (n *logNotifier) PostCompletion(_ context.Context, notice workmeta.CompletionNotice) error {
	fields := []zap.Field{
		zap.String("job_id", notice.JobID),
		zap.String("url", notice.URL),
		zap.String("channel_id", notice.ChannelID),
		zap.Strings("mentions", notice.Mentions),
	}
	if notice.Work != nil {
		fields = append(fields, zap.String("title", notice.Work.Title))
	}
	if notice.Series != nil {
		fields = append(fields, zap.String("title", notice.Series.Title), zap.Int("works", len(notice.Series.Works)))
	}
	n.logger.Info("completion notice", fields...)
	return nil
}

func (n *logNotifier) SendStuckNotice(_ context.Context, requesterID string, notice workmeta.StuckNotice) error {
	n.logger.Info("stuck notice",
		zap.String("requester_id", requesterID),
		zap.String("job_id", notice.JobID),
		zap.String("url", notice.URL),
		zap.String("reason", notice.Reason),
	)
	return nil
}
