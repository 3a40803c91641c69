package notify

import (
	"context"

	"github.com/MrEthical07/dramauth"
	"go.uber.org/zap"
)

// LogNotifier logs each rendered message instead of sending it. The
// log line carries the live link, so it must not be used in production.
type LogNotifier struct {
	logger   *zap.Logger
	renderer Renderer
}

var _ dramauth.Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a notifier writing to logger.
func NewLogNotifier(logger *zap.Logger, baseURL string) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger, renderer: Renderer{BaseURL: baseURL}}
}

func (l *LogNotifier) Send(_ context.Context, n dramauth.Notification) error {
	msg, err := l.renderer.Render(n)
	if err != nil {
		return err
	}
	l.logger.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("link", msg.Link),
	)
	return nil
}
