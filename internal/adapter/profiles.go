package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"vouchgraph/internal/domain"
)

// ProfileConfig configures a ProfileClient
type ProfileConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// ProfileClient resolves profiles through a bulk-by-address identity API
type ProfileClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	observer RequestObserver
}

// NewProfileClient creates a profile client
func NewProfileClient(cfg ProfileConfig, logger *zap.Logger) *ProfileClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "profiles",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &ProfileClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		breaker:  breaker,
		logger:   logger,
		observer: nopObserver{},
	}
}

// SetObserver registers an observer for upstream request outcomes
func (c *ProfileClient) SetObserver(o RequestObserver) {
	if o != nil {
		c.observer = o
	}
}

// FetchProfiles looks up all addresses in one call. Failures are logged and
// yield an empty mapping.
func (c *ProfileClient) FetchProfiles(ctx context.Context, addresses []string) map[string]domain.Profile {
	profiles := make(map[string]domain.Profile)
	if len(addresses) == 0 || c.endpoint == "" {
		return profiles
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, addresses)
	})
	if err != nil {
		c.logger.Warn("Profile lookup failed, falling back to addresses",
			zap.Int("addresses", len(addresses)), zap.Error(err))
		return profiles
	}

	root := gjson.ParseBytes(body.([]byte))
	if !root.IsObject() {
		c.logger.Warn("Profile lookup returned unexpected payload")
		return profiles
	}

	root.ForEach(func(key, value gjson.Result) bool {
		first := value.Get("0")
		if !first.Exists() {
			return true
		}
		profiles[domain.NormalizeAddress(key.String())] = domain.Profile{
			Username:    first.Get("username").String(),
			DisplayName: first.Get("display_name").String(),
			PfpURL:      first.Get("pfp_url").String(),
		}
		return true
	})

	c.logger.Debug("Resolved profiles",
		zap.Int("requested", len(addresses)), zap.Int("resolved", len(profiles)))
	return profiles
}

func (c *ProfileClient) fetch(ctx context.Context, addresses []string) ([]byte, error) {
	const op = "fetch profiles"

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s: parse endpoint: %w", op, err)
	}
	q := u.Query()
	q.Set("addresses", strings.Join(addresses, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.observer.ObserveUpstream("profiles", 0)
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.observer.ObserveUpstream("profiles", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(op, resp, time.Now())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	return body, nil
}
