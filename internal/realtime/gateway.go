package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindline/platform/pkg/logging"
)

// RoomService is the session-lifecycle surface the gateway drives. The
// gateway never interprets signaling payloads; it only scopes them to a room.
type RoomService interface {
	JoinRoom(ctx context.Context, roomID string, c Sender) error
	RelaySignal(ctx context.Context, roomID string, from Sender, kind string, payload json.RawMessage) error
	RelayMessage(ctx context.Context, roomID string, from Sender, text string) error
	EndRoom(ctx context.Context, roomID, reason string) error
	HandleDisconnect(ctx context.Context, c Sender)
}

// GatewayConfig tunes the WebSocket endpoint.
type GatewayConfig struct {
	WriteTimeout  time.Duration
	SendBuffer    int
	MaxMessageLen int64
	CheckOrigin   func(r *http.Request) bool
}

// Gateway terminates client WebSocket connections and dispatches the closed
// set of inbound message types onto the hub and room service.
type Gateway struct {
	hub      *Hub
	sessions RoomService
	logger   *logging.Logger
	upgrader websocket.Upgrader
	cfg      GatewayConfig
}

// NewGateway creates the WebSocket gateway.
func NewGateway(hub *Hub, sessions RoomService, cfg GatewayConfig, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 1 << 16
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Gateway{
		hub:      hub,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		cfg: cfg,
	}
}

// inboundFrame is the envelope every client message arrives in.
type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type registerPayload struct {
	UserID   string `json:"userId"`
	DoctorID string `json:"doctorId"`
}

type roomScopedPayload struct {
	RoomID string `json:"roomId"`
}

type chatPayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("gateway: upgrade failed", "error", err)
		return
	}

	conn := NewConn(ws, g.cfg.SendBuffer, g.cfg.WriteTimeout)
	ws.SetReadLimit(g.cfg.MaxMessageLen)
	go conn.WritePump()

	g.logger.Debug("gateway: connection opened", "remote", r.RemoteAddr)
	g.readLoop(r.Context(), conn)

	conn.Close()
	g.hub.Leave(conn)
	if g.sessions != nil {
		g.sessions.HandleDisconnect(context.WithoutCancel(r.Context()), conn)
	}
	g.logger.Debug("gateway: connection closed", "remote", r.RemoteAddr)
}

func (g *Gateway) readLoop(ctx context.Context, conn *Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.logger.Debug("gateway: malformed frame", "error", err)
			continue
		}
		g.dispatch(ctx, conn, frame)
	}
}

// dispatch is the single decode switch for the closed inbound message set.
func (g *Gateway) dispatch(ctx context.Context, conn *Conn, frame inboundFrame) {
	switch frame.Type {
	case "register-user":
		var p registerPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.UserID == "" {
			return
		}
		g.hub.Join(UserChannel(p.UserID), conn)
		g.logger.Info("gateway: user registered", "user_id", p.UserID)

	case "register-doctor":
		var p registerPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.DoctorID == "" {
			return
		}
		g.hub.Join(DoctorChannel(p.DoctorID), conn)
		g.logger.Info("gateway: doctor registered", "doctor_id", p.DoctorID)

	case "join-room":
		var p roomScopedPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.RoomID == "" {
			return
		}
		if err := g.sessions.JoinRoom(ctx, p.RoomID, conn); err != nil {
			g.logger.Warn("gateway: join room refused", "error", err, "room_id", p.RoomID)
		}

	case "send-message":
		var p chatPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.RoomID == "" {
			return
		}
		if err := g.sessions.RelayMessage(ctx, p.RoomID, conn, p.Text); err != nil {
			g.logger.Debug("gateway: message relay failed", "error", err, "room_id", p.RoomID)
		}

	case EventOffer, EventAnswer, EventICECandidate:
		var p roomScopedPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.RoomID == "" {
			return
		}
		if err := g.sessions.RelaySignal(ctx, p.RoomID, conn, frame.Type, frame.Payload); err != nil {
			g.logger.Debug("gateway: signal relay failed", "error", err, "room_id", p.RoomID, "kind", frame.Type)
		}

	case "end-call":
		var p roomScopedPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.RoomID == "" {
			return
		}
		if err := g.sessions.EndRoom(ctx, p.RoomID, "ended by participant"); err != nil {
			g.logger.Debug("gateway: end call failed", "error", err, "room_id", p.RoomID)
		}

	case "ping":
		conn.Send(mustEncode(NewEvent(EventPong, nil)))

	default:
		g.logger.Debug("gateway: unknown message type", "type", frame.Type)
	}
}

func mustEncode(evt Event) []byte {
	data, err := evt.Encode()
	if err != nil {
		// Only reachable with an unmarshalable payload, which the closed
		// event set never produces.
		return []byte(`{"event":"error"}`)
	}
	return data
}
