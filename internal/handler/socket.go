package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vouchgraph/internal/layout"
	"vouchgraph/internal/service"
	"vouchgraph/internal/store"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024

	sendBufferSize = 64
)

// Socket message types
const (
	MsgPress   = "press"
	MsgMove    = "move"
	MsgRelease = "release"
	MsgZoom    = "zoom"
	MsgPan     = "pan"
	MsgResize  = "resize"

	MsgSnapshot    = "snapshot"
	MsgInteraction = "interaction"
	MsgTransform   = "transform"
	MsgError       = "error"
)

// forwarded lists the bus events relayed to socket clients
var forwarded = map[service.EventType]bool{
	service.EventLayoutTick:       true,
	service.EventLayoutSettled:    true,
	service.EventGraphLoaded:      true,
	service.EventGraphFiltered:    true,
	service.EventSelectionChanged: true,
	service.EventNodePinned:       true,
	service.EventNodeUnpinned:     true,
}

// ClientMessage is a pointer or viewport gesture from the browser. Points
// are in screen coordinates.
type ClientMessage struct {
	Type   string  `json:"type" validate:"required,oneof=press move release zoom pan resize"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
	Factor float64 `json:"factor" validate:"required_if=Type zoom,gte=0"`
	Width  float64 `json:"width" validate:"required_if=Type resize,gte=0"`
	Height float64 `json:"height" validate:"required_if=Type resize,gte=0"`
}

// ServerMessage is a frame sent to the browser
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Socket upgrades to a websocket carrying gestures in and layout frames out
func (h *LayoutHandler) Socket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s := &socketSession{
		id:     uuid.New().String(),
		conn:   conn,
		h:      h,
		send:   make(chan ServerMessage, sendBufferSize),
		events: make(chan service.Event, sendBufferSize),
		done:   make(chan struct{}),
	}
	s.logger = h.logger.With(zap.String("connectionID", s.id))

	h.bus.Subscribe(s.events)
	s.queue(ServerMessage{Type: MsgSnapshot, Payload: h.positionsView()})

	go s.writePump()
	s.readPump()
}

type socketSession struct {
	id     string
	conn   *websocket.Conn
	h      *LayoutHandler
	logger *zap.Logger
	send   chan ServerMessage
	events chan service.Event
	done   chan struct{}
}

func (s *socketSession) queue(msg ServerMessage) {
	select {
	case s.send <- msg:
	case <-s.done:
	default:
		s.logger.Debug("Dropping frame for slow client", zap.String("type", msg.Type))
	}
}

func (s *socketSession) readPump() {
	defer func() {
		s.h.bus.Unsubscribe(s.events)
		close(s.done)
		s.conn.Close()
		s.logger.Debug("Read pump stopped")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.queue(ServerMessage{Type: MsgError, Payload: ErrorResponse{Error: "Invalid message", Details: err.Error()}})
			continue
		}
		if err := validate.Struct(msg); err != nil {
			s.queue(ServerMessage{Type: MsgError, Payload: ErrorResponse{Error: "Invalid message", Details: err.Error()}})
			continue
		}
		s.handle(msg)
	}
}

func (s *socketSession) handle(msg ClientMessage) {
	engine := s.h.engine
	switch msg.Type {
	case MsgPress:
		engine.Press(msg.X, msg.Y)
	case MsgMove:
		engine.Move(msg.X, msg.Y)
	case MsgRelease:
		result := engine.Release(msg.X, msg.Y)
		s.applyInteraction(result)
		s.queue(ServerMessage{Type: MsgInteraction, Payload: result})
	case MsgZoom:
		s.queue(ServerMessage{Type: MsgTransform, Payload: engine.Zoom(msg.Factor, msg.X, msg.Y)})
	case MsgPan:
		s.queue(ServerMessage{Type: MsgTransform, Payload: engine.Pan(msg.DX, msg.DY)})
	case MsgResize:
		engine.Resize(msg.Width, msg.Height)
	}
}

// applyInteraction carries a click into the session store. Pins reach the
// store through the engine's pin callback.
func (s *socketSession) applyInteraction(in layout.Interaction) {
	switch in.Kind {
	case layout.InteractionSelect:
		if err := s.h.store.SelectNode(in.NodeID); err != nil && !errors.Is(err, store.ErrNodeNotFound) {
			s.logger.Warn("Failed to select node", zap.Error(err))
		}
	case layout.InteractionClear:
		s.h.store.ClearSelection()
	}
}

func (s *socketSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return

		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				return
			}

		case ev := <-s.events:
			if !forwarded[ev.Type] {
				continue
			}
			if err := s.write(ServerMessage{Type: string(ev.Type), Payload: ev.Payload}); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *socketSession) write(msg ServerMessage) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("Failed to write frame", zap.Error(err))
		return err
	}
	return nil
}
