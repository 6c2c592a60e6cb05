package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tandem-api/internal/observability/logger"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout     = 10 * time.Second
	wsReadLimit      = 4096
	clientSendBuffer = 256
	pingInterval     = 30 * time.Second
	pingTimeout      = 10 * time.Second
)

// JoinAuthorizer decides whether an actor may subscribe to a room. The
// realtime handler backs it with the same membership lookup the HTTP gate
// uses: joining a room is an authorization check, not a formality.
type JoinAuthorizer interface {
	AuthorizeJoin(ctx context.Context, actorID, workspaceID, room string) error
}

// Client wraps a single authenticated websocket connection managed by the Hub.
type Client struct {
	ActorID     string
	WorkspaceID string

	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	authorizer JoinAuthorizer
	log        *logger.Logger
	closeOnce  sync.Once
}

// NewClient creates a Client for an already-authenticated connection.
func NewClient(hub *Hub, conn *websocket.Conn, authorizer JoinAuthorizer, actorID, workspaceID string) *Client {
	return &Client{
		ActorID:     actorID,
		WorkspaceID: workspaceID,
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, clientSendBuffer),
		authorizer:  authorizer,
		log:         hub.log,
	}
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ReadPump reads join/leave requests from the connection until it closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.CloseNow()
	}()

	c.conn.SetReadLimit(wsReadLimit)

	for {
		_, msgBytes, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debug(ctx, "realtime client disconnected",
					logger.Module("realtime"), logger.Action("read"),
					zap.Int("status", int(websocket.CloseStatus(err))))
			}
			return
		}

		c.handleMessage(ctx, msgBytes)
	}
}

// WritePump forwards hub messages to the connection and keeps it alive
// with pings. Exits when the send channel closes or a write fails.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.CloseNow()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.Close(websocket.StatusNormalClosure, "hub closed connection")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage processes one inbound client message. Unknown or malformed
// messages are ignored; join requests go through the authorizer before the
// hub ever sees them.
func (c *Client) handleMessage(ctx context.Context, msgBytes []byte) {
	var req joinRequest
	if err := json.Unmarshal(msgBytes, &req); err != nil {
		return
	}

	switch req.Type {
	case "join":
		if err := c.authorizer.AuthorizeJoin(ctx, c.ActorID, c.WorkspaceID, req.Room); err != nil {
			c.log.Warn(ctx, "room join denied",
				logger.Module("realtime"), logger.Action("join"),
				zap.String("actor_id", c.ActorID),
				zap.String("room", req.Room),
				zap.Error(err),
			)
			c.reply(ackMsg{Type: "error", Room: req.Room, Reason: "join denied"})
			return
		}
		c.hub.Join(c, req.Room)
		c.reply(ackMsg{Type: "joined", Room: req.Room})

	case "leave":
		c.hub.Leave(c, req.Room)
		c.reply(ackMsg{Type: "left", Room: req.Room})
	}
}

// reply queues a control acknowledgement, dropping it if the client is slow.
func (c *Client) reply(msg ackMsg) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}
