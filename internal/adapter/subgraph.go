package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vouchgraph/internal/domain"
)

const clubEventsQuery = `
query GetClubEvents($limit: Int!) {
  clubEvents(first: $limit, orderBy: timestamp, orderDirection: desc) {
    type
    timestamp
    amount
    account { id }
    other { id }
  }
}`

const accountQuery = `
query GetAccount($address: ID!) {
  account(id: $address) {
    id
    amountVouched
    amountReceived
    vouchesGivenCount
    vouchesReceivedCount
  }
}`

// SubgraphConfig configures a SubgraphClient
type SubgraphConfig struct {
	Endpoint string
	Timeout  time.Duration
	// StatsRPS paces per-account statistics lookups; zero disables pacing
	StatsRPS float64
}

// SubgraphClient queries the vouching subgraph over GraphQL
type SubgraphClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer RequestObserver
	now      func() time.Time
}

// NewSubgraphClient creates a subgraph client
func NewSubgraphClient(cfg SubgraphConfig, logger *zap.Logger) *SubgraphClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.StatsRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.StatsRPS), 1)
	}
	return &SubgraphClient{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: timeout},
		limiter:  limiter,
		logger:   logger,
		observer: nopObserver{},
		now:      time.Now,
	}
}

// SetObserver registers an observer for upstream request outcomes
func (c *SubgraphClient) SetObserver(o RequestObserver) {
	if o != nil {
		c.observer = o
	}
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// FetchEvents returns the most recent limit club events, newest first
func (c *SubgraphClient) FetchEvents(ctx context.Context, limit int) ([]domain.ClubEvent, error) {
	const op = "fetch club events"

	body, err := c.query(ctx, op, graphQLRequest{
		Query:         clubEventsQuery,
		Variables:     map[string]any{"limit": limit},
		OperationName: "GetClubEvents",
	})
	if err != nil {
		return nil, err
	}

	result := gjson.GetBytes(body, "data.clubEvents")
	if !result.IsArray() {
		return nil, &APIError{Op: op, Reason: describeMissing(body, "data.clubEvents")}
	}

	events := make([]domain.ClubEvent, 0, len(result.Array()))
	result.ForEach(func(_, v gjson.Result) bool {
		events = append(events, parseClubEvent(v))
		return true
	})

	c.logger.Debug("Fetched club events", zap.Int("count", len(events)), zap.Int("limit", limit))
	return events, nil
}

// FetchAccountStats returns cumulative statistics for an address, or nil when
// the account does not exist upstream
func (c *SubgraphClient) FetchAccountStats(ctx context.Context, address string) (*domain.AccountDetails, error) {
	op := fmt.Sprintf("fetch account %s", address)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	body, err := c.query(ctx, op, graphQLRequest{
		Query:         accountQuery,
		Variables:     map[string]any{"address": address},
		OperationName: "GetAccount",
	})
	if err != nil {
		return nil, err
	}

	account := gjson.GetBytes(body, "data.account")
	if !account.Exists() || account.Type == gjson.Null {
		if !gjson.GetBytes(body, "data").Exists() {
			return nil, &APIError{Op: op, Reason: describeMissing(body, "data.account")}
		}
		return nil, nil
	}

	return &domain.AccountDetails{
		ID:                   account.Get("id").String(),
		AmountVouched:        account.Get("amountVouched").String(),
		AmountReceived:       account.Get("amountReceived").String(),
		VouchesGivenCount:    int(account.Get("vouchesGivenCount").Int()),
		VouchesReceivedCount: int(account.Get("vouchesReceivedCount").Int()),
	}, nil
}

func (c *SubgraphClient) query(ctx context.Context, op string, q graphQLRequest) ([]byte, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("%s: encode query: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.observer.ObserveUpstream("subgraph", 0)
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.observer.ObserveUpstream("subgraph", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(op, resp, c.now())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if !gjson.ValidBytes(body) {
		return nil, &APIError{Op: op, Reason: "invalid JSON"}
	}
	return body, nil
}

func parseClubEvent(v gjson.Result) domain.ClubEvent {
	event := domain.ClubEvent{
		Type:      v.Get("type").String(),
		Timestamp: v.Get("timestamp").Int(),
		Amount:    v.Get("amount").String(),
		Account:   domain.AccountRef{ID: v.Get("account.id").String()},
	}
	if other := v.Get("other"); other.Exists() && other.Type != gjson.Null {
		event.Other = &domain.AccountRef{ID: other.Get("id").String()}
	}
	return event
}

// describeMissing explains why path is absent, preferring GraphQL error messages
func describeMissing(body []byte, path string) string {
	if msg := gjson.GetBytes(body, "errors.0.message"); msg.Exists() {
		return msg.String()
	}
	return fmt.Sprintf("missing %s", path)
}
