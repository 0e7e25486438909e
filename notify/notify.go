package notify

import (
	"context"
	"log"
)

// Notifier delivers one message to one user. Implementations must tolerate
// redelivery; the outbox worker retries on failure.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload map[string]any) error
}

// LogNotifier writes notifications to the process log. The default delivery
// path until a real channel (email, push) is wired in.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	n.logger.Printf("notify %s: %s %v", userID, kind, payload)
	return nil
}
