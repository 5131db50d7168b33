package notify

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"vouchgraph/internal/domain"
	"vouchgraph/internal/repository"
)

// Webhook event names
const (
	EventFrameAdded            = "frame_added"
	EventFrameRemoved          = "frame_removed"
	EventNotificationsEnabled  = "notifications_enabled"
	EventNotificationsDisabled = "notifications_disabled"
)

var (
	// ErrInvalidEnvelope means the body is not a well-formed signed envelope
	ErrInvalidEnvelope = errors.New("invalid webhook envelope")
	// ErrInvalidSignature means the signature does not match the header key
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownAppKey means the key verifier rejected the signing key
	ErrUnknownAppKey = errors.New("app key not registered for fid")
	// ErrKeyCheckFailed means the key verifier could not reach a decision
	ErrKeyCheckFailed = errors.New("failed to verify app key")
)

var validate = validator.New()

// Envelope is a JSON Farcaster Signature. Every field is base64url.
type Envelope struct {
	Header    string `json:"header" validate:"required"`
	Payload   string `json:"payload" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// Signer is the decoded envelope header
type Signer struct {
	FID  int64  `json:"fid" validate:"required,gt=0"`
	Type string `json:"type" validate:"required"`
	Key  string `json:"key" validate:"required"`
}

// Payload is the decoded envelope payload
type Payload struct {
	Event               string                   `json:"event" validate:"required"`
	NotificationDetails *domain.NotificationInfo `json:"notificationDetails,omitempty" validate:"omitempty"`
}

// Event is a verified webhook event
type Event struct {
	Signer  Signer
	Payload Payload
}

// UserFID is the signer FID as the token store keys it
func (e *Event) UserFID() string {
	return strconv.FormatInt(e.Signer.FID, 10)
}

// KeyVerifier decides whether key is an app key of fid
type KeyVerifier interface {
	VerifyAppKey(ctx context.Context, fid int64, key []byte) (bool, error)
}

// KeyVerifierFunc adapts a function to KeyVerifier
type KeyVerifierFunc func(ctx context.Context, fid int64, key []byte) (bool, error)

func (f KeyVerifierFunc) VerifyAppKey(ctx context.Context, fid int64, key []byte) (bool, error) {
	return f(ctx, fid, key)
}

// AllowAllKeys accepts any correctly signed envelope. It lets anyone claim
// any fid, so it is only fit for tests and local development.
var AllowAllKeys KeyVerifier = KeyVerifierFunc(func(context.Context, int64, []byte) (bool, error) {
	return true, nil
})

// DenyAllKeys rejects every key
var DenyAllKeys KeyVerifier = KeyVerifierFunc(func(context.Context, int64, []byte) (bool, error) {
	return false, nil
})

func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// DecodeKey parses a 0x-prefixed hex ed25519 public key
func DecodeKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("key is not hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// ParseEvent decodes body as an envelope, checks its signature against the
// header key and asks verifier whether the key belongs to the signer. A nil
// verifier rejects every key.
func ParseEvent(ctx context.Context, body []byte, verifier KeyVerifier) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var ev Event
	headerJSON, err := decodeSegment(env.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidEnvelope, err)
	}
	if err := json.Unmarshal(headerJSON, &ev.Signer); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidEnvelope, err)
	}
	if err := validate.Struct(ev.Signer); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidEnvelope, err)
	}

	payloadJSON, err := decodeSegment(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}
	if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}
	if err := validate.Struct(ev.Payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}

	sig, err := decodeSegment(env.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrInvalidEnvelope, err)
	}
	key, err := DecodeKey(ev.Signer.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if !ed25519.Verify(key, []byte(env.Header+"."+env.Payload), sig) {
		return nil, ErrInvalidSignature
	}

	if verifier == nil {
		verifier = DenyAllKeys
	}
	ok, err := verifier.VerifyAppKey(ctx, ev.Signer.FID, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyCheckFailed, err)
	}
	if !ok {
		return nil, ErrUnknownAppKey
	}
	return &ev, nil
}

// Receiver applies verified webhook events to a token store
type Receiver struct {
	store    repository.TokenStore
	verifier KeyVerifier
	logger   *zap.Logger
}

// NewReceiver creates a receiver. A nil verifier rejects every key.
func NewReceiver(store repository.TokenStore, verifier KeyVerifier, logger *zap.Logger) *Receiver {
	if verifier == nil {
		verifier = DenyAllKeys
	}
	return &Receiver{store: store, verifier: verifier, logger: logger}
}

// HandleWebhook parses body and applies the event. Unknown event names are
// logged and ignored.
func (r *Receiver) HandleWebhook(ctx context.Context, body []byte) (*Event, error) {
	ev, err := ParseEvent(ctx, body, r.verifier)
	if err != nil {
		return nil, err
	}
	return ev, r.Apply(ctx, ev)
}

// Apply updates the token store for ev
func (r *Receiver) Apply(ctx context.Context, ev *Event) error {
	fid := ev.UserFID()
	log := r.logger.With(zap.String("fid", fid), zap.String("event", ev.Payload.Event))

	switch ev.Payload.Event {
	case EventFrameAdded, EventNotificationsEnabled:
		details := ev.Payload.NotificationDetails
		if details == nil {
			log.Info("frame event without notification details")
			return nil
		}
		if err := r.store.Save(ctx, fid, *details); err != nil {
			return err
		}
		log.Info("saved notification token")
	case EventFrameRemoved, EventNotificationsDisabled:
		removed, err := r.store.Remove(ctx, fid)
		if err != nil {
			return err
		}
		log.Info("removed notification token", zap.Bool("existed", removed))
	default:
		log.Warn("unknown webhook event")
	}
	return nil
}
