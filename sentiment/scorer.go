// Package sentiment retrieves the market Fear & Greed score used to gate
// trading decisions.
package sentiment

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lukaw/swingbot/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the fear & greed index api base url.
	BaseURL = "https://api.alternative.me"
)

// ScorerConfig represents the configuration for the sentiment scorer.
type ScorerConfig struct {
	// BaseURL is the api base url.
	BaseURL string
	// CacheTTL bounds how long a fetched score is served from cache.
	CacheTTL time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Scorer fetches Fear & Greed scores, serving cached readings inside the
// configured ttl and falling back to the last good reading on transient
// failures. Callers judge staleness against their own tolerance window.
type Scorer struct {
	cfg    *ScorerConfig
	client *resty.Client
	mtx    sync.Mutex
	cached *shared.SentimentScore
}

// Ensure the scorer implements the SentimentSource interface.
var _ shared.SentimentSource = (*Scorer)(nil)

// NewScorer initializes a new sentiment scorer.
func NewScorer(cfg *ScorerConfig) (*Scorer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sentiment base url cannot be an empty string")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("sentiment cache ttl must be positive, got %s", cfg.CacheTTL)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Second * 10)

	scorer := &Scorer{
		cfg:    cfg,
		client: client,
	}

	return scorer, nil
}

// Score returns the current Fear & Greed score. A cached reading inside the
// ttl is returned without network I/O; on transient fetch failures the last
// good reading is served instead so a flapping source does not blind the bot.
func (s *Scorer) Score(ctx context.Context, now time.Time) (*shared.SentimentScore, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.cached != nil && !s.cached.StaleBy(now, s.cfg.CacheTTL) {
		return s.cached, nil
	}

	score, err := s.fetch(ctx)
	if err != nil {
		if s.cached != nil {
			s.cfg.Logger.Warn().Msgf("serving cached sentiment score from %s: %v",
				s.cached.Timestamp.Format(shared.DateLayout), err)
			return s.cached, nil
		}
		return nil, err
	}

	s.cached = score

	return score, nil
}

// fetch retrieves a fresh score from the fear & greed api.
func (s *Scorer) fetch(ctx context.Context) (*shared.SentimentScore, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("limit", "1").
		Get("/fng/")
	if err != nil {
		return nil, fmt.Errorf("fetching fear & greed score: %v: %w", err, shared.ErrUnavailable)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, fmt.Errorf("fetching fear & greed score: %w", shared.ErrRateLimited)
	case resp.StatusCode() >= http.StatusInternalServerError:
		return nil, fmt.Errorf("fetching fear & greed score: status %d: %w",
			resp.StatusCode(), shared.ErrUnavailable)
	case resp.StatusCode() != http.StatusOK:
		return nil, fmt.Errorf("fetching fear & greed score: unexpected status %d", resp.StatusCode())
	}

	entry := gjson.GetBytes(resp.Body(), "data.0")
	if !entry.Exists() {
		return nil, fmt.Errorf("fear & greed response has no data entries")
	}

	score := &shared.SentimentScore{
		Value:     shared.Clamp(int(entry.Get("value").Int())),
		Timestamp: time.Unix(entry.Get("timestamp").Int(), 0).UTC(),
	}

	return score, nil
}
