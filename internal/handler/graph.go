package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vouchgraph/internal/codec"
	"vouchgraph/internal/domain"
	"vouchgraph/internal/store"
)

// GraphHandler handles graph session requests
type GraphHandler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(s *store.Store, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{store: s, logger: logger}
}

// SearchRequest sets the search term
type SearchRequest struct {
	Term string `json:"term"`
}

// ConnectionView is a connection with its display timestamp
type ConnectionView struct {
	domain.NodeConnection
	FormattedTime string `json:"formattedTime"`
}

// RateLimitView is the rate-limit status
type RateLimitView struct {
	store.State
	Remaining *string `json:"remaining"`
	CanRetry  bool    `json:"canRetry"`
}

// GetGraph returns the canonical graph
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, h.store.GraphData(), http.StatusOK)
}

// GetFilteredGraph returns the graph narrowed by the search term
func (h *GraphHandler) GetFilteredGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, h.store.FilteredData(), http.StatusOK)
}

// Refresh refetches the graph and returns the resulting state. A failed
// fetch is reported in the state, not as an HTTP error.
func (h *GraphHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	// the fetch outlives a disconnecting client
	ctx := context.WithoutCancel(r.Context())
	if err := h.store.FetchGraphData(ctx); err != nil {
		h.logger.Debug("Refresh failed", zap.Error(err))
	}
	writeJSON(w, h.logger, h.store.Snapshot(), http.StatusOK)
}

// GetState returns the session state
func (h *GraphHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, h.store.Snapshot(), http.StatusOK)
}

// SetSearch replaces the search term
func (h *GraphHandler) SetSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	h.store.SetSearchTerm(req.Term)
	writeJSON(w, h.logger, h.store.FilteredData(), http.StatusOK)
}

// ToggleSelection selects a node, or deselects it if already selected
func (h *GraphHandler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.SelectNode(id); err != nil {
		if errors.Is(err, store.ErrNodeNotFound) {
			writeError(w, h.logger, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, h.logger, "Failed to select node", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, h.store.Snapshot(), http.StatusOK)
}

// ClearSelection clears the selection
func (h *GraphHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.store.ClearSelection()
	writeJSON(w, h.logger, h.store.Snapshot(), http.StatusOK)
}

// GetConnections lists the selected node's connections, most recent first
func (h *GraphHandler) GetConnections(w http.ResponseWriter, r *http.Request) {
	conns := h.store.ConnectedNodes()
	views := make([]ConnectionView, len(conns))
	for i, c := range conns {
		views[i] = ConnectionView{NodeConnection: c, FormattedTime: h.store.FormatTimestamp(c.Timestamp)}
	}
	writeJSON(w, h.logger, views, http.StatusOK)
}

// GetStats summarizes the filtered graph
func (h *GraphHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, h.store.Stats(), http.StatusOK)
}

// GetRateLimit reports the rate-limit countdown
func (h *GraphHandler) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, h.rateLimitView(), http.StatusOK)
}

// RetryRateLimit refetches once the cooldown has expired. Before that it
// answers 429 with the remaining time.
func (h *GraphHandler) RetryRateLimit(w http.ResponseWriter, r *http.Request) {
	if h.store.IsRateLimited() && !h.store.CanRetry() {
		view := h.rateLimitView()
		details := ""
		if view.Remaining != nil {
			details = "retry in " + *view.Remaining
		}
		writeError(w, h.logger, "Still rate limited", details, http.StatusTooManyRequests)
		return
	}
	if _, err := h.store.RetryAfterRateLimit(context.WithoutCancel(r.Context())); err != nil {
		h.logger.Debug("Retry failed", zap.Error(err))
	}
	writeJSON(w, h.logger, h.rateLimitView(), http.StatusOK)
}

func (h *GraphHandler) rateLimitView() RateLimitView {
	return RateLimitView{
		State:     h.store.Snapshot(),
		Remaining: h.store.RateLimitRemainingTime(),
		CanRetry:  h.store.CanRetry(),
	}
}

// Export writes the filtered graph in the format named by the URL
func (h *GraphHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	c, ok := codec.ByFormat(format)
	if !ok {
		writeError(w, h.logger, "Unsupported format", format, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", c.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=vouchgraph."+c.Format())
	if err := c.Export(h.store.FilteredData(), w); err != nil {
		h.logger.Error("Failed to export graph", zap.String("format", format), zap.Error(err))
	}
}
