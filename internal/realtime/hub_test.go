package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"tandem-api/internal/observability/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackplane is an in-memory bus shared by several hubs, simulating the
// redis channel connecting independent server processes.
type fakeBackplane struct {
	mu       sync.Mutex
	handlers []func(payload []byte)
	failPub  error
}

func (b *fakeBackplane) Publish(_ context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPub != nil {
		return b.failPub
	}
	for _, h := range b.handlers {
		h(payload)
	}
	return nil
}

func (b *fakeBackplane) Subscribe(_ context.Context, handler func(payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}

func (b *fakeBackplane) Close() error { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test", "error")
	require.NoError(t, err)
	return log
}

// startHub creates a hub wired to the bus and runs it until test end.
func startHub(t *testing.T, bus Backplane) *Hub {
	t.Helper()
	h := NewHub(testLogger(t), bus)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, h.Start(ctx))
	return h
}

// newTestClient builds a client without a real websocket connection; tests
// read delivered messages straight from the send channel.
func newTestClient(h *Hub, actorID string) *Client {
	return &Client{
		ActorID: actorID,
		hub:     h,
		send:    make(chan []byte, clientSendBuffer),
	}
}

// joinAndSettle registers the client, joins the room, and waits until the
// Run goroutine has processed both.
func joinAndSettle(t *testing.T, h *Hub, c *Client, rooms ...string) {
	t.Helper()
	h.Register(c)
	for _, room := range rooms {
		h.Join(c, room)
	}
	require.Eventually(t, func() bool {
		return len(h.commands) == 0
	}, time.Second, 5*time.Millisecond)
}

// recv waits for one delivered event on the client or fails the test.
func recv(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
		return Event{}
	}
}

// expectSilence asserts nothing is delivered to the client.
func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected delivery: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcastReachesRoomAcrossProcesses(t *testing.T) {
	bus := &fakeBackplane{}
	hubA := startHub(t, bus)
	hubB := startHub(t, bus)

	// Two clients in project:X on different processes, one in project:Y.
	clientA := newTestClient(hubA, "actor-a")
	clientB := newTestClient(hubB, "actor-b")
	clientY := newTestClient(hubB, "actor-y")

	joinAndSettle(t, hubA, clientA, ProjectRoom("X"))
	joinAndSettle(t, hubB, clientB, ProjectRoom("X"))
	joinAndSettle(t, hubB, clientY, ProjectRoom("Y"))

	hubA.Broadcast(context.Background(), ProjectRoom("X"), EventTaskUpdated, map[string]string{"taskId": "t1"})

	gotA := recv(t, clientA)
	assert.Equal(t, EventTaskUpdated, gotA.Type)
	assert.Equal(t, ProjectRoom("X"), gotA.Room)

	gotB := recv(t, clientB)
	assert.Equal(t, EventTaskUpdated, gotB.Type)

	// project:Y must not see project:X traffic.
	expectSilence(t, clientY)
}

func TestBroadcastNotDuplicatedToOrigin(t *testing.T) {
	bus := &fakeBackplane{}
	hub := startHub(t, bus)

	client := newTestClient(hub, "actor-a")
	joinAndSettle(t, hub, client, ProjectRoom("X"))

	hub.Broadcast(context.Background(), ProjectRoom("X"), EventTaskCreated, map[string]string{"taskId": "t1"})

	recv(t, client)
	// The backplane echoes the publish back to the origin hub; the origin
	// filter must suppress the second local delivery.
	expectSilence(t, client)
}

func TestBackplaneFailureDegradesToLocalDelivery(t *testing.T) {
	bus := &fakeBackplane{failPub: errors.New("backplane unavailable")}
	hub := startHub(t, bus)

	client := newTestClient(hub, "actor-a")
	joinAndSettle(t, hub, client, ProjectRoom("X"))

	hub.Broadcast(context.Background(), ProjectRoom("X"), EventTaskMoved, map[string]string{"taskId": "t1"})

	// Local client still receives the event even though the cross-process
	// publish failed.
	got := recv(t, client)
	assert.Equal(t, EventTaskMoved, got.Type)
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := startHub(t, nil)

	client := newTestClient(hub, "actor-a")
	joinAndSettle(t, hub, client, ProjectRoom("X"))

	hub.Leave(client, ProjectRoom("X"))
	require.Eventually(t, func() bool { return len(hub.commands) == 0 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(context.Background(), ProjectRoom("X"), EventTaskUpdated, map[string]string{"taskId": "t1"})
	expectSilence(t, client)
}

func TestJoinAppliedBeforeLaterBroadcast(t *testing.T) {
	hub := startHub(t, nil)

	// Register, join and broadcast back to back with no settling in
	// between. The command channel is FIFO and the Run goroutine applies
	// commands sequentially, so the subscription must be in place by the
	// time the broadcast is delivered - every iteration, every time.
	for i := 0; i < 50; i++ {
		client := newTestClient(hub, "actor-a")
		room := ProjectRoom("X")

		hub.Register(client)
		hub.Join(client, room)
		hub.Broadcast(context.Background(), room, EventTaskUpdated, map[string]string{"taskId": "t1"})

		got := recv(t, client)
		assert.Equal(t, EventTaskUpdated, got.Type)

		hub.Unregister(client)
		require.Eventually(t, func() bool { return len(hub.commands) == 0 }, time.Second, 5*time.Millisecond)
	}
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := startHub(t, nil)

	client := newTestClient(hub, "actor-a")
	other := newTestClient(hub, "actor-b")
	joinAndSettle(t, hub, client, ProjectRoom("X"), WorkspaceRoom("ws-1"))
	joinAndSettle(t, hub, other, ProjectRoom("X"))

	hub.Unregister(client)
	require.Eventually(t, func() bool { return len(hub.commands) == 0 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(context.Background(), ProjectRoom("X"), EventTaskUpdated, map[string]string{"taskId": "t1"})

	// The remaining subscriber still receives; the unregistered one's send
	// channel has been closed.
	got := recv(t, other)
	assert.Equal(t, EventTaskUpdated, got.Type)
}
