// Package notify delivers trade alerts through the Pushover messages API.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lukaw/swingbot/shared"
	"github.com/rs/zerolog"
)

const (
	// BaseURL is the pushover api base url.
	BaseURL = "https://api.pushover.net"
)

// PushoverConfig represents the configuration for the pushover notifier.
type PushoverConfig struct {
	// BaseURL is the api base url.
	BaseURL string
	// Token is the pushover application token.
	Token string
	// UserKey is the pushover user key.
	UserKey string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Pushover sends alerts through the pushover messages api. When no token is
// configured the notifier degrades to logging the alert instead.
type Pushover struct {
	cfg    *PushoverConfig
	client *resty.Client
}

// Ensure the pushover notifier implements the Notifier interface.
var _ shared.Notifier = (*Pushover)(nil)

// NewPushover initializes a new pushover notifier.
func NewPushover(cfg *PushoverConfig) (*Pushover, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pushover base url cannot be an empty string")
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Second * 10)

	notifier := &Pushover{
		cfg:    cfg,
		client: client,
	}

	return notifier, nil
}

// Configured reports whether pushover delivery credentials are present.
func (p *Pushover) Configured() bool {
	return p.cfg.Token != "" && p.cfg.UserKey != ""
}

// Notify sends the provided alert message.
func (p *Pushover) Notify(ctx context.Context, title string, message string) error {
	if !p.Configured() {
		p.cfg.Logger.Info().Msgf("notification (undelivered): %s: %s", title, message)
		return nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"token":   p.cfg.Token,
			"user":    p.cfg.UserKey,
			"title":   title,
			"message": message,
		}).
		Post("/1/messages.json")
	if err != nil {
		return fmt.Errorf("sending pushover notification: %v: %w", err, shared.ErrUnavailable)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("sending pushover notification: unexpected status %d", resp.StatusCode())
	}

	return nil
}
