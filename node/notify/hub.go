package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// sendBuffer is the per-client outbound queue. A client that cannot
	// drain it in time is dropped rather than stalling the whole battle.
	sendBuffer = 64

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Frame is the envelope of every server-to-client message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// client is one connected player session.
type client struct {
	conn     *websocket.Conn
	playerID uuid.UUID
	send     chan []byte
	closed   sync.Once
}

func (c *client) close() {
	c.closed.Do(func() {
		close(c.send)
	})
}

// Hub implements Notifier over websocket connections grouped per battle.
// Per-client ordering is preserved by the single writePump goroutine each
// connection owns.
type Hub struct {
	mu      sync.RWMutex
	battles map[uuid.UUID]map[*client]struct{}
	log     *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		battles: make(map[uuid.UUID]map[*client]struct{}),
		log:     log.Sugar(),
	}
}

// Join attaches a connection to a battle group and starts its write pump.
// The returned leave function detaches and closes the outbound queue.
func (h *Hub) Join(battleID, playerID uuid.UUID, conn *websocket.Conn) (leave func()) {
	c := &client{
		conn:     conn,
		playerID: playerID,
		send:     make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	group, ok := h.battles[battleID]
	if !ok {
		group = make(map[*client]struct{})
		h.battles[battleID] = group
	}
	group[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump(h.log)

	return func() {
		h.mu.Lock()
		if group, ok := h.battles[battleID]; ok {
			delete(group, c)
			if len(group) == 0 {
				delete(h.battles, battleID)
			}
		}
		h.mu.Unlock()
		c.close()
	}
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for battleID, group := range h.battles {
		for c := range group {
			c.close()
		}
		delete(h.battles, battleID)
	}
}

func (c *client) writePump(log *zap.SugaredLogger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debugw("client write failed", "player", c.playerID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcast fans a frame out to every client of one battle. Slow clients are
// skipped; the websocket layer will disconnect them on its own timeouts.
func (h *Hub) broadcast(battleID uuid.UUID, msgType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Type: msgType, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.battles[battleID] {
		select {
		case c.send <- frame:
		default:
			h.log.Warnw("dropping frame for slow client",
				"battle", battleID, "player", c.playerID, "type", msgType)
		}
	}
	return nil
}

// BattleReady implements Notifier.
func (h *Hub) BattleReady(_ context.Context, msg BattleReadyMsg) error {
	return h.broadcast(msg.BattleID, TypeBattleReady, msg)
}

// TurnOpened implements Notifier.
func (h *Hub) TurnOpened(_ context.Context, msg TurnOpenedMsg) error {
	return h.broadcast(msg.BattleID, TypeTurnOpened, msg)
}

// TurnResolved implements Notifier.
func (h *Hub) TurnResolved(_ context.Context, msg TurnResolvedMsg) error {
	return h.broadcast(msg.BattleID, TypeTurnResolved, msg)
}

// PlayerDamaged implements Notifier.
func (h *Hub) PlayerDamaged(_ context.Context, msg PlayerDamagedMsg) error {
	return h.broadcast(msg.BattleID, TypePlayerDamaged, msg)
}

// BattleEnded implements Notifier.
func (h *Hub) BattleEnded(_ context.Context, msg BattleEndedMsg) error {
	return h.broadcast(msg.BattleID, TypeBattleEnded, msg)
}
