package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vouchgraph/internal/notify"
)

// NotifyHandler handles frame webhooks and notification sends
type NotifyHandler struct {
	receiver *notify.Receiver
	sender   *notify.Sender
	logger   *zap.Logger
}

// NewNotifyHandler creates a new notification handler
func NewNotifyHandler(receiver *notify.Receiver, sender *notify.Sender, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{receiver: receiver, sender: sender, logger: logger}
}

// FID is a user id sent either as a JSON number or a string
type FID string

// UnmarshalJSON accepts 42 and "42"
func (f *FID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	raw = strings.TrimSpace(raw)
	if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
		return errors.New("fid must be a positive integer")
	}
	*f = FID(raw)
	return nil
}

// SendRequest notifies one user
type SendRequest struct {
	FID       FID    `json:"fid" validate:"required"`
	Title     string `json:"title" validate:"required,max=32"`
	Body      string `json:"body" validate:"required,max=128"`
	TargetURL string `json:"targetUrl" validate:"omitempty,url"`
}

// BroadcastRequest notifies every registered user
type BroadcastRequest struct {
	Title     string `json:"title" validate:"required,max=32"`
	Body      string `json:"body" validate:"required,max=128"`
	TargetURL string `json:"targetUrl" validate:"omitempty,url"`
}

// SendResponse is the result of a single send
type SendResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// BroadcastResponse is the result of a broadcast
type BroadcastResponse struct {
	Success bool `json:"success"`
	*notify.BroadcastResult
}

// Webhook applies a signed frame event
func (h *NotifyHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		writeError(w, h.logger, "Failed to process webhook", err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := h.receiver.HandleWebhook(r.Context(), body)
	if err != nil {
		h.logger.Warn("Rejected webhook", zap.Error(err))
		status := http.StatusBadRequest
		if errors.Is(err, notify.ErrUnknownAppKey) {
			status = http.StatusUnauthorized
		} else if errors.Is(err, notify.ErrKeyCheckFailed) {
			status = http.StatusBadGateway
		} else if ev != nil {
			// verified but the token store failed
			status = http.StatusInternalServerError
		}
		writeError(w, h.logger, "Failed to process webhook", err.Error(), status)
		return
	}

	writeJSON(w, h.logger, map[string]bool{"success": true}, http.StatusOK)
}

// Send notifies one user
func (h *NotifyHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "Missing required fields", err.Error(), http.StatusBadRequest)
		return
	}

	data, err := h.sender.Send(r.Context(), string(req.FID), notify.Message{
		Title:     req.Title,
		Body:      req.Body,
		TargetURL: req.TargetURL,
	})
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	writeJSON(w, h.logger, SendResponse{Success: true, Data: data}, http.StatusOK)
}

// Broadcast notifies every registered user
func (h *NotifyHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "Missing required fields", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.sender.Broadcast(r.Context(), notify.Message{
		Title:     req.Title,
		Body:      req.Body,
		TargetURL: req.TargetURL,
	})
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	writeJSON(w, h.logger, BroadcastResponse{Success: true, BroadcastResult: result}, http.StatusOK)
}

func (h *NotifyHandler) writeSendError(w http.ResponseWriter, err error) {
	var de *notify.DeliveryError
	switch {
	case errors.Is(err, notify.ErrNotEnabled), errors.Is(err, notify.ErrNoRecipients):
		writeError(w, h.logger, err.Error(), "", http.StatusNotFound)
	case errors.As(err, &de):
		h.logger.Warn("Notification delivery failed", zap.Int("status", de.StatusCode), zap.ByteString("body", de.Body))
		writeError(w, h.logger, "Failed to send notification", string(de.Body), de.StatusCode)
	default:
		h.logger.Error("Failed to send notification", zap.Error(err))
		writeError(w, h.logger, "Internal server error", err.Error(), http.StatusInternalServerError)
	}
}
