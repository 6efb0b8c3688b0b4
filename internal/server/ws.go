package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/snapview/internal/app"
	"github.com/ayusman/snapview/internal/gesture"
	"github.com/ayusman/snapview/internal/log"
	"github.com/ayusman/snapview/internal/sensor"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// inputTimeout bounds a camera operation triggered by a client message.
	inputTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Client message types.
const (
	MsgAccelerometer = "accelerometer"
	MsgTap           = "tap"
	MsgPinch         = "pinch"
	MsgSurface       = "surface"
)

// EventSource is the application side of the event socket: it publishes
// events and accepts sensor and touch input.
type EventSource interface {
	Events() (<-chan app.Event, func())
	Accelerometer(r sensor.Reading) (int, bool)
	Tap(ctx context.Context, p gesture.TouchPoint) (gesture.TapKind, error)
	PinchBegin(span float64)
	PinchUpdate(ctx context.Context, span float64) (int, bool, error)
	PinchEnd()
	SetSurface(ctx context.Context, w, h, rotation int) error
}

// ClientMessage is a message sent by a client over the event socket.
type ClientMessage struct {
	Type      string  `json:"type"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Z         float64 `json:"z,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Phase     string  `json:"phase,omitempty"`
	Span      float64 `json:"span,omitempty"`

	// Touches may carry the two pinch fingers instead of Span.
	Touches  []gesture.TouchPoint `json:"touches,omitempty"`
	Width    int                  `json:"width,omitempty"`
	Height   int                  `json:"height,omitempty"`
	Rotation int                  `json:"rotation,omitempty"`
}

// PinchSpan is the distance between the two touches when both are given,
// and Span otherwise.
func (m ClientMessage) PinchSpan() float64 {
	if len(m.Touches) == 2 {
		return gesture.Span(m.Touches[0], m.Touches[1])
	}
	return m.Span
}

// EventsHandler pushes application events to WebSocket clients and feeds
// their accelerometer and touch messages into the application.
type EventsHandler struct {
	source EventSource
	logger *slog.Logger
}

// NewEventsHandler creates a new EventsHandler for source.
func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{
		source: source,
		logger: log.With("component", "events"),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.source.Events()
	defer unsubscribe()

	// replies to this client only; the writer goroutine is the only writer
	replies := make(chan app.Event, 8)
	done := make(chan struct{})
	go h.write(conn, events, replies, done)
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		if err := h.handle(r.Context(), msg); err != nil {
			select {
			case replies <- app.Event{
				Type: app.EventError,
				Data: map[string]string{"request": msg.Type, "message": err.Error()},
				Time: time.Now(),
			}:
			default:
			}
		}
	}
}

func (h *EventsHandler) handle(ctx context.Context, msg ClientMessage) error {
	ctx, cancel := context.WithTimeout(ctx, inputTimeout)
	defer cancel()

	switch msg.Type {
	case MsgAccelerometer:
		h.source.Accelerometer(sensor.Reading{X: msg.X, Y: msg.Y, Z: msg.Z, Timestamp: msg.Timestamp})
	case MsgTap:
		ts := msg.Timestamp
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		_, err := h.source.Tap(ctx, gesture.TouchPoint{X: msg.X, Y: msg.Y, Timestamp: ts})
		return err
	case MsgPinch:
		switch msg.Phase {
		case "begin":
			h.source.PinchBegin(msg.PinchSpan())
		case "end":
			h.source.PinchEnd()
		default:
			_, _, err := h.source.PinchUpdate(ctx, msg.PinchSpan())
			return err
		}
	case MsgSurface:
		return h.source.SetSurface(ctx, msg.Width, msg.Height, msg.Rotation)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// write sends events and replies to the client and keeps the connection alive.
func (h *EventsHandler) write(conn *websocket.Conn, events <-chan app.Event, replies <-chan app.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	send := func(ev app.Event) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("failed to encode event", "type", ev.Type, "error", err)
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if !send(ev) {
				conn.Close()
				return
			}
		case ev := <-replies:
			if !send(ev) {
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
