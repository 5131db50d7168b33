package handler

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vouchgraph/internal/domain"
	"vouchgraph/internal/layout"
	"vouchgraph/internal/service"
	"vouchgraph/internal/store"
)

// LayoutHandler serves the layout engine
type LayoutHandler struct {
	store  *store.Store
	engine *layout.Engine
	bus    *service.EventBus
	logger *zap.Logger
}

// NewLayoutHandler creates a new layout handler
func NewLayoutHandler(s *store.Store, engine *layout.Engine, bus *service.EventBus, logger *zap.Logger) *LayoutHandler {
	return &LayoutHandler{store: s, engine: engine, bus: bus, logger: logger}
}

// PositionsView is a snapshot of the laid out graph
type PositionsView struct {
	State     layout.State          `json:"state"`
	Width     float64               `json:"width"`
	Height    float64               `json:"height"`
	Transform layout.Transform      `json:"transform"`
	Positions []domain.NodePosition `json:"positions"`
	Styles    layout.Styles         `json:"styles"`
}

func (h *LayoutHandler) positionsView() PositionsView {
	width, height := h.engine.Size()
	return PositionsView{
		State:     h.engine.State(),
		Width:     width,
		Height:    height,
		Transform: h.engine.Transform(),
		Positions: h.engine.Positions(),
		Styles:    h.engine.Highlight(h.selectedID()),
	}
}

func (h *LayoutHandler) selectedID() string {
	if n := h.store.SelectedNode(); n != nil {
		return n.ID
	}
	return ""
}

// RenderSVG renders the current layout with the selection highlighted
func (h *LayoutHandler) RenderSVG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.engine.Render(&buf, h.selectedID()); err != nil {
		h.logger.Error("Failed to render layout", zap.Error(err))
		writeError(w, h.logger, "Failed to render layout", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(buf.Bytes())
}

// GetPositions returns node positions, view transform and styles
func (h *LayoutHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, h.positionsView(), http.StatusOK)
}

// Unpin releases a pinned node back to the simulation
func (h *LayoutHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	id := domain.NormalizeAddress(chi.URLParam(r, "id"))
	stored := h.store.UnpinNode(id)
	released := h.engine.Unpin(id)
	if !stored && !released {
		writeError(w, h.logger, "Not found", "node "+id+" is not pinned", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
