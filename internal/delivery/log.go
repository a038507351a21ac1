package delivery

import (
	"context"

	"go.uber.org/zap"

	"creatorreminder/pkg/logger"
)

// LogSender only logs the message. Used for local runs.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(l *zap.Logger) *LogSender {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogSender{logger: l}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	logger.WithTrace(ctx, s.logger).Info("Dry-run reminder",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	return nil
}
