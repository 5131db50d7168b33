package adapter

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const signerAdded = "SIGNER_EVENT_TYPE_ADD"

// AppKeyConfig configures an AppKeyClient
type AppKeyConfig struct {
	HubURL  string
	APIKey  string
	Timeout time.Duration
}

// AppKeyClient asks a hub whether a key is an active on-chain signer of a fid
type AppKeyClient struct {
	hubURL   string
	apiKey   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	observer RequestObserver
}

// NewAppKeyClient creates an app key client
func NewAppKeyClient(cfg AppKeyConfig, logger *zap.Logger) *AppKeyClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "appkeys",
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

	return &AppKeyClient{
		hubURL:   strings.TrimRight(cfg.HubURL, "/"),
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		breaker:  breaker,
		logger:   logger,
		observer: nopObserver{},
	}
}

// SetObserver registers an observer for upstream request outcomes
func (c *AppKeyClient) SetObserver(o RequestObserver) {
	if o != nil {
		c.observer = o
	}
}

// VerifyAppKey reports whether key was added as a signer of fid and has not
// been removed. An unreachable hub is an error, never a pass.
func (c *AppKeyClient) VerifyAppKey(ctx context.Context, fid int64, key []byte) (bool, error) {
	if c.hubURL == "" {
		return false, fmt.Errorf("verify app key: no hub configured")
	}
	signer := "0x" + hex.EncodeToString(key)

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, fid, signer)
	})
	if err != nil {
		return false, err
	}
	if body == nil {
		c.logger.Info("Signer not registered", zap.Int64("fid", fid), zap.String("key", signer))
		return false, nil
	}

	root := gjson.ParseBytes(body.([]byte))
	event := root
	if events := root.Get("events"); events.IsArray() {
		event = gjson.Result{}
		for _, ev := range events.Array() {
			if strings.EqualFold(ev.Get("signerEventBody.key").String(), signer) {
				event = ev
			}
		}
	}

	if !event.Get("signerEventBody").Exists() {
		return false, nil
	}
	if k := event.Get("signerEventBody.key").String(); k != "" && !strings.EqualFold(k, signer) {
		return false, nil
	}
	return event.Get("signerEventBody.eventType").String() == signerAdded, nil
}

// fetch returns nil, nil when the hub does not know the signer
func (c *AppKeyClient) fetch(ctx context.Context, fid int64, signer string) ([]byte, error) {
	const op = "verify app key"

	u, err := url.Parse(c.hubURL + "/v1/onChainSignersByFid")
	if err != nil {
		return nil, fmt.Errorf("%s: parse hub url: %w", op, err)
	}
	q := u.Query()
	q.Set("fid", strconv.FormatInt(fid, 10))
	q.Set("signer", signer)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.observer.ObserveUpstream("appkeys", 0)
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.observer.ObserveUpstream("appkeys", resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusBadRequest && gjson.GetBytes(body, "errCode").String() == "not_found":
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, statusError(op, resp, time.Now())
	}
	return body, nil
}
