package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brawlpit/arena/core/types"
	"github.com/brawlpit/arena/node/notify"
)

// Client message types.
const (
	MsgTypeJoinBattle       = "join_battle"
	MsgTypeSubmitTurnAction = "submit_turn_action"

	// TypeSnapshot is the server reply to a join.
	TypeSnapshot = "battle_snapshot"
	// TypeError is the server reply to a rejected join.
	TypeError = "error"
)

// playerHeader carries the externally-authenticated player identity.
const playerHeader = "X-Player-Id"

const readTimeout = 60 * time.Second

// clientMessage is the envelope of every client-to-server message.
type clientMessage struct {
	Type      string          `json:"type"`
	BattleID  uuid.UUID       `json:"battleId"`
	TurnIndex int64           `json:"turnIndex,omitempty"`
	Action    json.RawMessage `json:"action,omitempty"`
}

// Server serves the websocket client channel.
type Server struct {
	backend  Backend
	hub      *notify.Hub
	log      *zap.SugaredLogger
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a websocket server pushing through the given hub.
func NewServer(backend Backend, hub *notify.Hub, log *zap.Logger) *Server {
	return &Server{
		backend: backend,
		hub:     hub,
		log:     log.Sugar(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Authentication and origin policy sit in front of this server;
			// it trusts the forwarded player header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start begins listening on addr.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	s.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("rpc server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuid.Parse(r.Header.Get(playerHeader))
	if err != nil {
		http.Error(w, "missing or invalid player id", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("websocket upgrade failed", "error", err)
		return
	}

	// Runs inside the handler: the request context must stay alive for the
	// whole session, and net/http cancels it once the handler returns.
	s.readLoop(r.Context(), conn, playerID)
}

// readLoop consumes one session's inbound messages. Submissions are
// fire-and-forget: any protocol error has already been normalized to
// NoAction further down, so nothing is reported back.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, playerID uuid.UUID) {
	var leave func()
	defer func() {
		if leave != nil {
			leave()
		}
		_ = conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Debugw("malformed client message", "player", playerID, "error", err)
			continue
		}

		switch msg.Type {
		case MsgTypeJoinBattle:
			snapshot, err := s.backend.Snapshot(ctx, msg.BattleID, playerID)
			if err != nil {
				s.writeFrame(conn, TypeError, map[string]string{"error": joinError(err)})
				if errors.Is(err, types.ErrNotParticipant) || errors.Is(err, types.ErrBattleNotFound) {
					return
				}
				continue
			}
			if leave != nil {
				leave()
			}
			// Snapshot goes out before the hub owns the socket; the client
			// reconciles any push raced in between via the version counter.
			s.writeFrame(conn, TypeSnapshot, snapshot)
			leave = s.hub.Join(msg.BattleID, playerID, conn)

		case MsgTypeSubmitTurnAction:
			if err := s.backend.SubmitAction(ctx, msg.BattleID, playerID, msg.TurnIndex, msg.Action); err != nil {
				s.log.Debugw("submission dropped",
					"battle", msg.BattleID, "player", playerID, "error", err)
			}

		default:
			s.log.Debugw("unknown client message type", "player", playerID, "type", msg.Type)
		}
	}
}

// writeFrame sends one frame directly on the connection. Used only before
// the session joins the hub; afterwards the hub's write pump owns the socket.
func (s *Server) writeFrame(conn *websocket.Conn, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, _ := json.Marshal(notify.Frame{Type: msgType, Data: data})
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.log.Debugw("frame write failed", "error", err)
	}
}

func joinError(err error) string {
	switch {
	case errors.Is(err, types.ErrBattleNotFound):
		return "battle not found"
	case errors.Is(err, types.ErrNotParticipant):
		return "not a participant"
	default:
		return "internal error"
	}
}
