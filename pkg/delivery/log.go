package delivery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogProvider is a development sink that records sends instead of
// delivering them.
type LogProvider struct {
	logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{
		logger: logger.With("provider", "log"),
	}
}

func (p *LogProvider) Send(_ context.Context, message Message) (string, error) {
	messageID := "log-" + uuid.New().String()

	p.logger.Info("Message delivered",
		"to", message.To,
		"subject", message.Subject,
		"body_length", len(message.Body),
		"message_id", messageID)

	return messageID, nil
}
