package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nexuscore/fabric/internal/auth"
	"github.com/nexuscore/fabric/pkg/models"
)

// Transport-level tunables, grounded on the teacher's ws_control_plane.go deadlines.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerFactory builds the dependency set a fresh SessionHandler needs
// for one user, deferred until after the handshake succeeds so a
// failed auth never touches the store or providers.
type HandlerFactory func(userID string, user models.User) SessionHandler

// Server serves the /ws/chat endpoint: it authenticates
// the JWT handshake, maintains the one-handler-per-user registry, and
// pumps inbound frames to the matching SessionHandler.
type Server struct {
	JWT      *auth.JWTService
	Registry *ConnectionRegistry
	Build    HandlerFactory
	Logger   *slog.Logger
}

// NewServer builds a Server with the given dependencies.
func NewServer(jwt *auth.JWTService, registry *ConnectionRegistry, build HandlerFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{JWT: jwt, Registry: registry, Build: build, Logger: logger}
}

// ServeHTTP upgrades the connection, authenticates, and runs the
// read pump until the socket closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	user, err := s.JWT.Validate(token)
	if err != nil {
		conn, upErr := upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			http.Error(w, "bad handshake", http.StatusBadRequest)
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4001, "invalid token"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sock := newWSSocket(conn)
	defer sock.Close()
	deps := s.Build(user.ID, *user)
	handler := NewSessionHandler(user.ID, *user, sock, deps)

	midTurn := func(h *SessionHandler) bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.state != stateIdle
	}
	if previous := s.Registry.Swap(user.ID, handler); previous != nil && midTurn(previous) {
		s.Registry.Swap(user.ID, previous)
		previous.Rebind(sock)
		if previous.Metrics != nil {
			previous.Metrics.Reconnected()
		}
		handler = previous
	}
	defer func() {
		if !midTurn(handler) {
			s.Registry.Remove(user.ID, handler)
		}
	}()

	s.pump(r.Context(), conn, handler)
}

// pump reads frames off the socket until it closes or ctx is
// cancelled, dispatching each to the handler's transition methods.
func (s *Server) pump(ctx context.Context, conn *websocket.Conn, handler *SessionHandler) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := s.startPing(conn)
	defer stopPing()
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// A read error just ends this pump: it fires on an ordinary
			// socket drop (network blip, tab close) as readily as on a
			// deliberate disconnect, and the handler's in-flight turn must
			// survive that so a reconnect can Rebind and keep streaming.
			// Only the explicit EventCancel branch below may cancel a turn.
			return
		}

		eventType, data, err := decodeInbound(raw)
		if err != nil {
			if perr, ok := err.(*protocolError); ok {
				handler.sendError(perr.code, perr.message)
				continue
			}
			handler.sendError(CodeBadEvent, err.Error())
			continue
		}

		switch eventType {
		case EventChatRequest:
			var payload ChatRequestPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				handler.sendError(CodeBadEvent, err.Error())
				continue
			}
			handler.HandleChatRequest(ctx, payload)
		case EventToolApprovalResponse:
			var payload ToolApprovalResponsePayload
			if err := json.Unmarshal(data, &payload); err != nil {
				handler.sendError(CodeBadEvent, err.Error())
				continue
			}
			handler.ResolveApproval(payload.ApprovalID, payload.Approved, payload.ModifiedArgs)
		case EventCancel:
			handler.HandleCancel()
		}
	}
}

// startPing runs a background ping ticker "implementers
// may add ping/pong"; returns a stop function.
func (s *Server) startPing(conn *websocket.Conn) func() {
	ticker := time.NewTicker(pingInterval)
	stop := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

// wsSocket adapts *websocket.Conn to socketSender. Send queues payloads
// on a 64-slot channel that a single writer goroutine (loop) drains,
// since gorilla/websocket forbids concurrent writers.
type wsSocket struct {
	conn  *websocket.Conn
	write chan []byte
	done  chan struct{}
}

func newWSSocket(conn *websocket.Conn) *wsSocket {
	s := &wsSocket{conn: conn, write: make(chan []byte, 64), done: make(chan struct{})}
	go s.loop()
	return s
}

func (s *wsSocket) loop() {
	for {
		select {
		case payload := <-s.write:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsSocket) Send(payload []byte) error {
	select {
	case s.write <- payload:
		return nil
	case <-s.done:
		return nil
	}
}

func (s *wsSocket) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
