package realtime

import (
	"context"
	"encoding/json"
	"time"

	"tandem-api/internal/observability/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub command channel buffer size.
const commandBuffer = 512

// Connection caps. Registration beyond these drops the client instead of
// degrading every other connection.
const (
	maxConnections         = 1000
	maxConnectionsPerActor = 16
	drainTimeout           = 3 * time.Second
	drainPollInterval      = 50 * time.Millisecond
)

type commandKind int

const (
	cmdRegister commandKind = iota
	cmdUnregister
	cmdJoin
	cmdLeave
	cmdBroadcast
)

// command is the single unit of work handed to the Run goroutine. Every
// hub operation flows through one channel so the Run loop applies them
// in the order they were enqueued: a client's register always lands
// before its joins, and a join always lands before a broadcast issued
// after it was enqueued.
type command struct {
	kind   commandKind
	client *Client
	room   string
	msg    []byte
}

// Hub manages websocket clients and their room subscriptions. All map
// mutations happen exclusively in the Run goroutine; connect, disconnect,
// join, leave and broadcast all communicate with it through a single
// ordered command channel.
type Hub struct {
	// instanceID identifies this process on the backplane so the hub can
	// ignore the echo of its own publishes.
	instanceID string

	rooms       map[string]map[*Client]bool
	clientRooms map[*Client]map[string]bool
	actorCount  map[string]int

	commands chan command

	shutdown chan struct{}
	done     chan struct{}

	backplane Backplane
	log       *logger.Logger
}

// NewHub creates a Hub. backplane may be nil, in which case events only
// reach clients connected to this process.
func NewHub(log *logger.Logger, backplane Backplane) *Hub {
	return &Hub{
		instanceID:  uuid.NewString(),
		rooms:       make(map[string]map[*Client]bool),
		clientRooms: make(map[*Client]map[string]bool),
		actorCount:  make(map[string]int),
		commands:    make(chan command, commandBuffer),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		backplane:   backplane,
		log:         log,
	}
}

// Start wires the backplane subscription and launches the Run loop.
func (h *Hub) Start(ctx context.Context) error {
	if h.backplane != nil {
		if err := h.backplane.Subscribe(ctx, h.handleBackplane); err != nil {
			return err
		}
	}
	go h.Run(ctx)
	return nil
}

// Run is the hub event loop. It exits when Shutdown is called or the
// context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drainClients()
			return
		case <-h.shutdown:
			h.drainClients()
			return

		case cmd := <-h.commands:
			h.apply(ctx, cmd)
		}
	}
}

func (h *Hub) apply(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdRegister:
		h.handleRegister(ctx, cmd.client)
	case cmdUnregister:
		h.handleUnregister(ctx, cmd.client)
	case cmdJoin:
		h.handleJoin(ctx, cmd.client, cmd.room)
	case cmdLeave:
		h.handleLeave(cmd.client, cmd.room)
	case cmdBroadcast:
		h.deliver(ctx, cmd.room, cmd.msg)
	}
}

// Register adds an authenticated client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.commands <- command{kind: cmdRegister, client: c}:
	default:
		h.log.Warn(context.Background(), "command channel full, dropping client",
			logger.Module("realtime"), logger.Action("register"))
		c.closeSend()
	}
}

// Unregister removes a client from the hub and all its rooms.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.commands <- command{kind: cmdUnregister, client: c}:
	default:
		// Run loop already exited; cleanup happened during drain.
	}
}

// Join subscribes a client to a room. Authorization (membership of the
// room's workspace) has already been checked by the caller. The command
// channel guarantees the client's earlier Register is applied first.
func (h *Hub) Join(c *Client, room string) {
	select {
	case h.commands <- command{kind: cmdJoin, client: c, room: room}:
	default:
		h.log.Warn(context.Background(), "command channel full, dropping join request",
			logger.Module("realtime"), logger.Action("join"), zap.String("room", room))
	}
}

// Leave unsubscribes a client from a room.
func (h *Hub) Leave(c *Client, room string) {
	select {
	case h.commands <- command{kind: cmdLeave, client: c, room: room}:
	default:
	}
}

// Broadcast delivers an event to every subscriber of the room, on this
// process and - via the backplane - on every other process. Called by
// services after a successful, version-checked write; it must never block
// or fail that write, so local dispatch is drop-on-full and the backplane
// publish runs detached with its own timeout.
func (h *Hub) Broadcast(ctx context.Context, room string, eventType string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error(ctx, "failed to marshal broadcast payload",
			logger.Module("realtime"), logger.Action("broadcast"),
			zap.String("room", room), zap.Error(err))
		return
	}

	event := Event{
		Type: eventType,
		Room: room,
		Data: raw,
		Time: time.Now().UTC(),
	}
	msg, err := json.Marshal(event)
	if err != nil {
		h.log.Error(ctx, "failed to marshal broadcast event",
			logger.Module("realtime"), logger.Action("broadcast"),
			zap.String("room", room), zap.Error(err))
		return
	}

	h.enqueueLocal(room, msg)

	if h.backplane == nil {
		return
	}

	env, err := json.Marshal(envelope{Origin: h.instanceID, Room: room, Data: msg})
	if err != nil {
		return
	}

	// Detached from the request path: a slow or down backplane degrades to
	// same-process delivery, it never stalls the caller.
	go func() {
		if err := h.backplane.Publish(context.Background(), env); err != nil {
			h.log.Warn(context.Background(), "backplane publish failed, delivering same-process only",
				logger.Module("realtime"),
				logger.Action("broadcast"),
				zap.String("room", room),
				zap.Error(err),
			)
		}
	}()
}

// Shutdown drains connected clients and stops the Run loop.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

// enqueueLocal hands a marshalled event to the Run goroutine.
func (h *Hub) enqueueLocal(room string, msg []byte) {
	select {
	case h.commands <- command{kind: cmdBroadcast, room: room, msg: msg}:
	default:
		h.log.Warn(context.Background(), "command channel full, dropping message",
			logger.Module("realtime"), logger.Action("broadcast"), zap.String("room", room))
	}
}

// handleBackplane replays envelopes from other processes into the local
// delivery path. Our own publishes come back too; origin filtering keeps
// local clients from receiving them twice.
func (h *Hub) handleBackplane(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.log.Warn(context.Background(), "malformed backplane envelope",
			logger.Module("realtime"), logger.Action("backplane"), zap.Error(err))
		return
	}
	if env.Origin == h.instanceID {
		return
	}
	h.enqueueLocal(env.Room, env.Data)
}

func (h *Hub) handleRegister(ctx context.Context, client *Client) {
	if len(h.clientRooms) >= maxConnections {
		h.log.Warn(ctx, "global connection limit reached, dropping client",
			logger.Module("realtime"), logger.Action("register"))
		client.closeSend()
		return
	}
	if h.actorCount[client.ActorID] >= maxConnectionsPerActor {
		h.log.Warn(ctx, "per-actor connection limit reached, dropping client",
			logger.Module("realtime"), logger.Action("register"),
			zap.String("actor_id", client.ActorID))
		client.closeSend()
		return
	}

	h.clientRooms[client] = make(map[string]bool)
	h.actorCount[client.ActorID]++

	h.log.Info(ctx, "realtime client registered",
		logger.Module("realtime"), logger.Action("register"),
		zap.String("actor_id", client.ActorID),
		zap.Int("total", len(h.clientRooms)),
	)
}

func (h *Hub) handleUnregister(ctx context.Context, client *Client) {
	rooms, ok := h.clientRooms[client]
	if !ok {
		return
	}

	for room := range rooms {
		h.removeFromRoom(client, room)
	}
	delete(h.clientRooms, client)
	client.closeSend()

	h.actorCount[client.ActorID]--
	if h.actorCount[client.ActorID] <= 0 {
		delete(h.actorCount, client.ActorID)
	}

	h.log.Info(ctx, "realtime client unregistered",
		logger.Module("realtime"), logger.Action("unregister"),
		zap.String("actor_id", client.ActorID),
		zap.Int("total", len(h.clientRooms)),
	)
}

func (h *Hub) handleJoin(ctx context.Context, client *Client, room string) {
	rooms, ok := h.clientRooms[client]
	if !ok {
		// Unregister was applied before this join; the client is gone.
		return
	}

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	rooms[room] = true

	h.log.Debug(ctx, "client joined room",
		logger.Module("realtime"), logger.Action("join"),
		zap.String("actor_id", client.ActorID),
		zap.String("room", room),
	)
}

func (h *Hub) handleLeave(client *Client, room string) {
	if rooms, ok := h.clientRooms[client]; ok {
		delete(rooms, room)
	}
	h.removeFromRoom(client, room)
}

// deliver fans a message out to the room's local subscribers. A client
// whose send buffer is full is disconnected rather than allowed to slow
// everyone else down.
func (h *Hub) deliver(ctx context.Context, room string, msg []byte) {
	for client := range h.rooms[room] {
		select {
		case client.send <- msg:
		default:
			h.handleUnregister(ctx, client)
		}
	}
}

func (h *Hub) removeFromRoom(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// drainClients sends a shutdown notice to every client and waits for send
// buffers to flush before closing.
func (h *Hub) drainClients() {
	if len(h.clientRooms) == 0 {
		return
	}

	h.log.Info(context.Background(), "draining realtime clients",
		logger.Module("realtime"), logger.Action("shutdown"),
		zap.Int("clients", len(h.clientRooms)),
	)

	shutdownMsg := []byte(`{"type":"shutdown","reason":"server shutting down"}`)
	for client := range h.clientRooms {
		select {
		case client.send <- shutdownMsg:
		default:
		}
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		allDrained := true
		for client := range h.clientRooms {
			if len(client.send) > 0 {
				allDrained = false
				break
			}
		}
		if allDrained {
			break
		}

		select {
		case <-deadline:
			h.log.Warn(context.Background(), "realtime drain timeout, closing remaining clients",
				logger.Module("realtime"), logger.Action("shutdown"))
			goto closeAll
		case <-ticker.C:
		}
	}

closeAll:
	for client := range h.clientRooms {
		client.closeSend()
	}
}
