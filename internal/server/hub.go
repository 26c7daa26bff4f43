// Package server coordinates room joins, message fan-out, and connection
// cleanup for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yapperchat/yapper/internal/metrics"
)

// MessageStore is the persistence collaborator the hub depends on. Events are
// written here before any client sees them.
type MessageStore interface {
	SaveMessage(ctx context.Context, roomID, userID int64, payload string) (int64, error)
}

// Hub sequences persistence and fan-out for every chat event and owns the
// join/leave notification protocol. Operations on the same room are mutually
// exclusive, so persistence commit order equals the order every listener
// observes; operations on different rooms proceed in parallel.
type Hub struct {
	registry *Registry
	store    MessageStore
	log      zerolog.Logger

	// roomLocks serializes persist+fan-out pairs per room. Locks are created
	// lazily and retained for the process lifetime; membership state itself
	// is bounded by occupancy in the registry.
	lockMu    sync.Mutex
	roomLocks map[int64]*sync.Mutex

	wg   sync.WaitGroup
	ctx  context.Context
	stop context.CancelFunc
}

// NewHub wires the hub to its registry, message store, and logger.
func NewHub(registry *Registry, store MessageStore, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:  registry,
		store:     store,
		log:       logger.With().Str("component", "hub").Logger(),
		roomLocks: make(map[int64]*sync.Mutex),
		ctx:       ctx,
		stop:      cancel,
	}
}

// Registry exposes the hub's registry for read-side callers.
func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) roomLock(roomID int64) *sync.Mutex {
	h.lockMu.Lock()
	defer h.lockMu.Unlock()
	mu := h.roomLocks[roomID]
	if mu == nil {
		mu = &sync.Mutex{}
		h.roomLocks[roomID] = mu
	}
	return mu
}

// StartClient launches the client's read and write pumps under the hub's
// shutdown tracking. It must run before HandleJoin so the joining connection
// can receive its own join notice.
func (h *Hub) StartClient(c *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// HandleJoin registers the connection in a room and announces its presence to
// every current member, including the connection itself. The transport
// handshake has already succeeded by the time this runs; a handshake failure
// never reaches the hub. If the join notice cannot be persisted the
// registration is rolled back and the error returned.
func (h *Hub) HandleJoin(c *Client, roomID, userID int64, username string) error {
	mu := h.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	h.registry.Join(c, roomID, userID, username)
	h.updateGauges()

	sess := Session{UserID: userID, Username: username, RoomID: roomID}
	if err := h.persistAndBroadcast(roomID, newJoinedEvent(sess)); err != nil {
		h.registry.Leave(c)
		h.updateGauges()
		return err
	}

	h.log.Info().
		Stringer("conn", c.id).
		Int64("room", roomID).
		Int64("user", userID).
		Str("username", username).
		Msg("client joined room")
	return nil
}

// HandleChat persists and fans out one inbound chat frame from a connection.
// Whitespace-only content is dropped silently. A persistence failure is
// returned to the caller and nothing is delivered; per-connection send
// failures are contained and converted into disconnects after the pass.
func (h *Hub) HandleChat(c *Client, raw []byte) error {
	sess, ok := h.registry.SessionOf(c)
	if !ok {
		// Frame raced ahead of the join or arrived after leave; nothing to do.
		return nil
	}

	content, err := parseInbound(raw)
	if err != nil {
		return err
	}
	if content == "" {
		return nil
	}

	mu := h.roomLock(sess.RoomID)
	mu.Lock()
	defer mu.Unlock()

	return h.persistAndBroadcast(sess.RoomID, newChatEvent(sess, content))
}

// HandleDisconnect removes the connection from its room and notifies the
// remaining members. It is idempotent: a connection already removed, or one
// that never joined, is a no-op. The departed connection's send channel is
// closed either way so its write pump terminates.
func (h *Hub) HandleDisconnect(c *Client) {
	sess, ok := h.leave(c)
	c.closeSend()
	if !ok {
		return
	}

	h.log.Info().
		Stringer("conn", c.id).
		Int64("room", sess.RoomID).
		Str("username", sess.Username).
		Msg("client left room")

	mu := h.roomLock(sess.RoomID)
	mu.Lock()
	defer mu.Unlock()

	// The departed connection is already out of the member set, so it is
	// excluded from this broadcast implicitly.
	if err := h.persistAndBroadcast(sess.RoomID, newLeftEvent(sess)); err != nil {
		h.log.Error().Err(err).Int64("room", sess.RoomID).Msg("failed to persist leave notice")
	}
}

func (h *Hub) leave(c *Client) (Session, bool) {
	sess, ok := h.registry.Leave(c)
	if ok {
		h.updateGauges()
	}
	return sess, ok
}

// persistAndBroadcast writes the event to the store, then delivers it to a
// snapshot of the room's members. Persistence always precedes delivery: if
// the write fails, zero connections receive the event. Callers hold the room
// lock, which gives the per-room ordering guarantee.
func (h *Hub) persistAndBroadcast(roomID int64, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	if _, err := h.store.SaveMessage(h.ctx, roomID, ev.UserID, string(payload)); err != nil {
		return fmt.Errorf("persist %s event: %w", ev.Type, err)
	}
	metrics.MessagesPersisted.Inc()

	var failed []*Client
	for _, member := range h.registry.MembersOf(roomID) {
		if !member.trySend(payload) {
			failed = append(failed, member)
		}
	}
	metrics.EventsBroadcast.WithLabelValues(ev.Type).Inc()

	// Failed connections are dropped after the pass so every healthy member
	// still receives the event. MembersOf never returns duplicates, so each
	// failed connection is disconnected exactly once.
	for _, member := range failed {
		metrics.SendFailures.Inc()
		h.log.Warn().Stringer("conn", member.id).Int64("room", roomID).Msg("send failed, dropping connection")
		h.disconnectFailed(member)
	}
	return nil
}

// disconnectFailed routes a failed connection through the leave protocol
// without re-entering the room lock held by the broadcasting caller. The
// leave notice for the dropped connection is dispatched asynchronously.
func (h *Hub) disconnectFailed(c *Client) {
	if sess, ok := h.leave(c); ok {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			mu := h.roomLock(sess.RoomID)
			mu.Lock()
			defer mu.Unlock()
			if err := h.persistAndBroadcast(sess.RoomID, newLeftEvent(sess)); err != nil {
				h.log.Error().Err(err).Int64("room", sess.RoomID).Msg("failed to persist leave notice")
			}
		}()
	}
	c.closeSend()
	c.closeConn()
}

func (h *Hub) updateGauges() {
	metrics.ActiveConnections.Set(float64(h.registry.ConnectionCount()))
	metrics.ActiveRooms.Set(float64(h.registry.RoomCount()))
}

// Shutdown closes every client connection and waits for the pump goroutines
// to finish, or until the timeout elapses. Leave notices for the dropped
// connections are persisted as usual.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("shutting down hub")
	// The context must stay live until the pumps drain; the disconnects they
	// trigger still write leave notices through it.
	defer h.stop()

	clients := h.registry.Clients()
	for _, c := range clients {
		c.closeConn()
	}
	h.log.Info().Int("connections", len(clients)).Msg("closed client connections")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
