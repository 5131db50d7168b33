package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"vouchgraph/internal/repository"
)

// MaxBatchSize is the most tokens one delivery request may carry
const MaxBatchSize = 100

var (
	// ErrNotEnabled means the user has no notification token
	ErrNotEnabled = errors.New("user has not enabled notifications")
	// ErrNoRecipients means nobody has a notification token
	ErrNoRecipients = errors.New("no users with notifications enabled")
)

// DeliveryError is a non-2xx answer from a notification URL
type DeliveryError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification delivery failed with status %d", e.StatusCode)
}

// Message is the user-visible notification
type Message struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"targetUrl"`
}

type deliveryRequest struct {
	Tokens       []string `json:"tokens"`
	Notification Message  `json:"notification"`
}

// BatchResult is the outcome of one delivery request of a broadcast
type BatchResult struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// BroadcastResult summarizes a broadcast
type BroadcastResult struct {
	TotalUsers int           `json:"totalUsers"`
	Results    []BatchResult `json:"results"`
}

// Sender delivers notifications to registered users
type Sender struct {
	store         repository.TokenStore
	client        *http.Client
	defaultTarget string
	logger        *zap.Logger
}

// NewSender creates a sender. defaultTarget fills in an empty TargetURL.
func NewSender(store repository.TokenStore, client *http.Client, defaultTarget string, logger *zap.Logger) *Sender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Sender{store: store, client: client, defaultTarget: defaultTarget, logger: logger}
}

func (s *Sender) withDefaults(msg Message) Message {
	if msg.TargetURL == "" {
		msg.TargetURL = s.defaultTarget
	}
	return msg
}

// Send notifies one user and returns the delivery URL's response body
func (s *Sender) Send(ctx context.Context, fid string, msg Message) (json.RawMessage, error) {
	info, err := s.store.Get(ctx, fid)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNotEnabled
	}
	return s.deliver(ctx, info.URL, []string{info.Token}, s.withDefaults(msg))
}

// Broadcast notifies every registered user. Tokens are grouped by delivery
// URL in registration order and sent in batches of MaxBatchSize. A failed
// batch is recorded in the result, it does not stop the broadcast.
func (s *Sender) Broadcast(ctx context.Context, msg Message) (*BroadcastResult, error) {
	fids, err := s.store.ListFIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(fids) == 0 {
		return nil, ErrNoRecipients
	}
	msg = s.withDefaults(msg)

	var urls []string
	tokensByURL := make(map[string][]string)
	for _, fid := range fids {
		info, err := s.store.Get(ctx, fid)
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue
		}
		if _, ok := tokensByURL[info.URL]; !ok {
			urls = append(urls, info.URL)
		}
		tokensByURL[info.URL] = append(tokensByURL[info.URL], info.Token)
	}

	result := &BroadcastResult{TotalUsers: len(fids), Results: []BatchResult{}}
	for _, url := range urls {
		tokens := tokensByURL[url]
		for start := 0; start < len(tokens); start += MaxBatchSize {
			end := min(start+MaxBatchSize, len(tokens))
			batch := tokens[start:end]

			data, err := s.deliver(ctx, url, batch, msg)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				br := BatchResult{Count: len(batch), Error: errorBody(err)}
				result.Results = append(result.Results, br)
				s.logger.Warn("notification batch failed",
					zap.String("url", url),
					zap.Int("count", len(batch)),
					zap.Error(err))
				continue
			}
			result.Results = append(result.Results, BatchResult{Success: true, Count: len(batch), Data: data})
		}
	}
	return result, nil
}

func (s *Sender) deliver(ctx context.Context, url string, tokens []string, msg Message) (json.RawMessage, error) {
	payload, err := json.Marshal(deliveryRequest{Tokens: tokens, Notification: msg})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach notification url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read notification response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Body: asJSON(body)}
	}
	return asJSON(body), nil
}

// asJSON returns body unchanged when it is valid JSON, quoted otherwise
func asJSON(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null")
	}
	if gjson.ValidBytes(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

func errorBody(err error) json.RawMessage {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Body
	}
	quoted, _ := json.Marshal(err.Error())
	return quoted
}
