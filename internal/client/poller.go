package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
)

// ErrSessionGone is returned when the server reports the session no longer
// exists. It is terminal for the device: local identity must be cleared.
var ErrSessionGone = errors.New("session gone")

// PollConfig holds fallback polling settings.
type PollConfig struct {
	Interval       time.Duration
	RequestTimeout time.Duration
}

// DefaultPollConfig returns the default polling configuration.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:       5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Poller periodically fetches the session snapshot over plain HTTP. It
// runs regardless of push status; transport failures are logged and
// retried on the next tick, never surfaced as fatal.
type Poller struct {
	// OnSnapshot receives each successfully fetched snapshot.
	OnSnapshot func(sess *models.Session)
	// OnGone is invoked once when the server reports not-found; the poller
	// stops afterwards.
	OnGone func(code string)

	baseURL    string
	httpClient *http.Client
	config     PollConfig
	clock      clockwork.Clock
}

// NewPoller creates a poller against the given API base URL.
func NewPoller(baseURL string, config PollConfig) *Poller {
	return NewPollerWithDeps(baseURL, config, clockwork.NewRealClock(), nil)
}

// NewPollerWithDeps creates a poller with injected clock and HTTP client.
func NewPollerWithDeps(baseURL string, config PollConfig, clock clockwork.Clock, httpClient *http.Client) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultPollConfig().Interval
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultPollConfig().RequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.RequestTimeout}
	}
	return &Poller{
		baseURL:    baseURL,
		httpClient: httpClient,
		config:     config,
		clock:      clock,
	}
}

// Run polls until the context is cancelled or the session disappears.
func (p *Poller) Run(ctx context.Context, code string) {
	ticker := p.clock.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			sess, err := p.Fetch(ctx, code)
			if errors.Is(err, ErrSessionGone) {
				log.Info().Str("session_code", code).Msg("polled session is gone")
				if p.OnGone != nil {
					p.OnGone(code)
				}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Str("session_code", code).Msg("poll failed, will retry")
				continue
			}
			if p.OnSnapshot != nil {
				p.OnSnapshot(sess)
			}
		}
	}
}

// Fetch performs a single snapshot request.
func (p *Poller) Fetch(ctx context.Context, code string) (*models.Session, error) {
	endpoint := fmt.Sprintf("%s/api/sessions/%s", p.baseURL, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll session: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrSessionGone
	default:
		return nil, fmt.Errorf("poll session: unexpected status %d", resp.StatusCode)
	}

	var sess models.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &sess, nil
}
