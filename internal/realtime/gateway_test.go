package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindline/platform/pkg/logging"
)

type stubRoomService struct {
	mu           sync.Mutex
	joined       []string
	relayed      []string
	ended        []string
	disconnected int
}

func (s *stubRoomService) JoinRoom(ctx context.Context, roomID string, c Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = append(s.joined, roomID)
	return nil
}

func (s *stubRoomService) RelaySignal(ctx context.Context, roomID string, from Sender, kind string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayed = append(s.relayed, kind+":"+roomID)
	return nil
}

func (s *stubRoomService) RelayMessage(ctx context.Context, roomID string, from Sender, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayed = append(s.relayed, "message:"+roomID)
	return nil
}

func (s *stubRoomService) EndRoom(ctx context.Context, roomID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, roomID)
	return nil
}

func (s *stubRoomService) HandleDisconnect(ctx context.Context, c Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected++
}

func (s *stubRoomService) snapshot() (joined, relayed, ended []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.joined...), append([]string(nil), s.relayed...), append([]string(nil), s.ended...)
}

func dialTestGateway(t *testing.T, g *Gateway) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, typ string, payload any) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"type": typ, "payload": payload})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return evt
}

func TestGatewayPing(t *testing.T) {
	hub := newTestHub()
	g := NewGateway(hub, &stubRoomService{}, GatewayConfig{}, logging.New("error"))
	ws := dialTestGateway(t, g)

	sendFrame(t, ws, "ping", nil)
	if evt := readEvent(t, ws); evt.Name != EventPong {
		t.Errorf("event = %q, want pong", evt.Name)
	}
}

func TestGatewayRegisterUserReceivesEmit(t *testing.T) {
	hub := newTestHub()
	g := NewGateway(hub, &stubRoomService{}, GatewayConfig{}, logging.New("error"))
	ws := dialTestGateway(t, g)

	sendFrame(t, ws, "register-user", map[string]string{"userId": "p1"})
	// Round-trip a ping so the registration is processed before emitting.
	sendFrame(t, ws, "ping", nil)
	if evt := readEvent(t, ws); evt.Name != EventPong {
		t.Fatalf("expected pong, got %q", evt.Name)
	}

	hub.Emit(UserChannel("p1"), NewEvent(EventNoDoctorsAvailable, NoDoctorsPayload{Message: "sorry"}))

	if evt := readEvent(t, ws); evt.Name != EventNoDoctorsAvailable {
		t.Errorf("event = %q, want no-doctors-available", evt.Name)
	}
}

func TestGatewayDispatchesRoomMessages(t *testing.T) {
	hub := newTestHub()
	svc := &stubRoomService{}
	g := NewGateway(hub, svc, GatewayConfig{}, logging.New("error"))
	ws := dialTestGateway(t, g)

	sendFrame(t, ws, "join-room", map[string]string{"roomId": "r1"})
	sendFrame(t, ws, "offer", map[string]any{"roomId": "r1", "offer": map[string]string{"sdp": "x"}})
	sendFrame(t, ws, "send-message", map[string]string{"roomId": "r1", "text": "hello"})
	sendFrame(t, ws, "end-call", map[string]string{"roomId": "r1"})

	// Flush with a ping round-trip.
	sendFrame(t, ws, "ping", nil)
	readEvent(t, ws)

	joined, relayed, ended := svc.snapshot()
	if len(joined) != 1 || joined[0] != "r1" {
		t.Errorf("joined = %v", joined)
	}
	if len(relayed) != 2 || relayed[0] != "offer:r1" || relayed[1] != "message:r1" {
		t.Errorf("relayed = %v", relayed)
	}
	if len(ended) != 1 || ended[0] != "r1" {
		t.Errorf("ended = %v", ended)
	}
}
