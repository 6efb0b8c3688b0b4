package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/snapview/internal/app"
	"github.com/ayusman/snapview/internal/gesture"
)

func dialEvents(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFor reads events until one of type typ arrives.
func waitFor(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if ev.Type == typ {
			return ev.Data
		}
	}
}

func TestEventsHandler_Accelerometer(t *testing.T) {
	a := newTestApp(t)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	conn := dialEvents(t, ts)
	if err := conn.WriteJSON(ClientMessage{Type: MsgAccelerometer, X: -9.8}); err != nil {
		t.Fatalf("write: %v", err)
	}

	data := waitFor(t, conn, app.EventRotation)
	if data["to"] != float64(90) || data["delta"] != float64(90) {
		t.Errorf("rotation event = %v", data)
	}
	if a.Status().Rotation != 90 {
		t.Errorf("rotation = %d, want 90", a.Status().Rotation)
	}
}

func TestEventsHandler_TapFocuses(t *testing.T) {
	ts := httptest.NewServer(New(Config{App: newTestApp(t)}))
	defer ts.Close()

	conn := dialEvents(t, ts)
	if err := conn.WriteJSON(ClientMessage{Type: MsgTap, X: 200, Y: 100, Timestamp: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	data := waitFor(t, conn, app.EventFocus)
	if data["success"] != true || data["stale"] != false {
		t.Errorf("focus event = %v", data)
	}
}

func TestEventsHandler_UnknownMessage(t *testing.T) {
	ts := httptest.NewServer(New(Config{App: newTestApp(t)}))
	defer ts.Close()

	conn := dialEvents(t, ts)
	if err := conn.WriteJSON(ClientMessage{Type: "wave"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	data := waitFor(t, conn, app.EventError)
	if data["request"] != "wave" {
		t.Errorf("error event = %v", data)
	}
}

func TestEventsHandler_SurfaceRotation(t *testing.T) {
	a := newTestApp(t)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	conn := dialEvents(t, ts)
	// back camera mounted at 90 on a display turned a quarter
	if err := conn.WriteJSON(ClientMessage{Type: MsgSurface, Width: 1280, Height: 720, Rotation: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for a.Status().Session.DisplayOrientation != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("display orientation = %d, want 0", a.Status().Session.DisplayOrientation)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventsHandler_PinchTouches(t *testing.T) {
	a := newTestApp(t)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	conn := dialEvents(t, ts)
	msgs := []ClientMessage{
		{Type: MsgPinch, Phase: "begin", Touches: []gesture.TouchPoint{{X: 0, Y: 0}, {X: 60, Y: 80}}},
		{Type: MsgPinch, Phase: "update", Touches: []gesture.TouchPoint{{X: 0, Y: 0}, {X: 84, Y: 112}}},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	data := waitFor(t, conn, app.EventZoom)
	if data["current"] != float64(5) {
		t.Errorf("zoom event = %v, want current 5", data)
	}
}

func TestClientMessage_PinchSpan(t *testing.T) {
	m := ClientMessage{Span: 42}
	if got := m.PinchSpan(); got != 42 {
		t.Errorf("PinchSpan() = %v, want 42", got)
	}
	m.Touches = []gesture.TouchPoint{{X: 3, Y: 0}, {X: 0, Y: 4}}
	if got := m.PinchSpan(); got != 5 {
		t.Errorf("PinchSpan() with touches = %v, want 5", got)
	}
}
