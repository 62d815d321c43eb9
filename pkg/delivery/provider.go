// Package delivery abstracts the external message delivery provider and
// classifies its failures into transient and permanent.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Message is one delivery request. Content is already rendered; the engine
// treats it as opaque from here on.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Provider sends a message and returns the provider's id for it. A Provider
// is assumed non-cancellable once invoked: the context governs dialing and
// waiting, not recalling an accepted message.
type Provider interface {
	Send(ctx context.Context, message Message) (string, error)
}

// NewProvider builds a provider from a URL-style configuration string.
// Supported schemes: smtp:// (gomail) and log:// (development sink).
func NewProvider(providerURL string, logger *slog.Logger) (Provider, error) {
	scheme, _, found := strings.Cut(providerURL, "://")
	if !found {
		return nil, fmt.Errorf("invalid delivery provider URL: %s", providerURL)
	}

	switch scheme {
	case "smtp":
		return NewSMTPProvider(providerURL)
	case "log":
		return NewLogProvider(logger), nil
	default:
		return nil, errors.New("unsupported delivery provider scheme: " + scheme + " (supported: smtp://, log://)")
	}
}
