package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier пишет события в лог, когда брокер не настроен
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event string, recipients []uuid.UUID, payload map[string]any) error {
	ids := make([]string, len(recipients))
	for i, id := range recipients {
		ids[i] = id.String()
	}
	n.logger.Info("Notification",
		zap.String("event", event),
		zap.Strings("recipients", ids),
		zap.Any("payload", payload),
	)
	return nil
}
