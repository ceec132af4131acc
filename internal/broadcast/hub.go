package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultClientBuffer is the per-client channel depth. A client that falls
// this far behind is considered slow and is dropped rather than allowed to
// apply backpressure to the broadcaster.
const DefaultClientBuffer = 32

// Hub is the in-process fan-out point: every registered client owns a
// bounded channel, and Broadcast never blocks on a slow reader.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]chan Envelope
	bufferSize int
	instanceID string
	logger     *slog.Logger
	publisher  Publisher

	// onDrop, if set, is called whenever a slow client is dropped. Used by
	// internal/obs to feed a broadcast-drop counter; left nil, dropping
	// behaves exactly as before.
	onDrop func(clientID, event string)
}

// Publisher is the cross-process half of a Hub, satisfied by *RedisBridge.
// Kept as an interface so Hub has no direct Redis dependency and tests can
// supply a fake.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// NewHub returns a Hub with no attached Publisher. AttachPublisher wires one
// in once Redis is configured; a Hub with no Publisher only ever delivers
// locally, which is the correct behavior for a single-process deployment.
func NewHub(logger *slog.Logger, bufferSize int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultClientBuffer
	}
	return &Hub{
		clients:    make(map[string]chan Envelope),
		bufferSize: bufferSize,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// AttachPublisher wires a cross-process publisher into the hub. Must be
// called before the first Broadcast to take effect for that call.
func (h *Hub) AttachPublisher(p Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publisher = p
}

// OnDrop registers fn to be called whenever a slow client is unregistered
// for falling behind its buffer.
func (h *Hub) OnDrop(fn func(clientID, event string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = fn
}

// InstanceID identifies this hub to its own Redis-delivered envelopes, so
// ReceiveRemote can discard loopback.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// RegisterClient allocates a bounded channel for clientID and returns it.
// The caller must eventually call UnregisterClient, or use the returned
// channel's closure (on Shutdown) as its own signal to stop reading.
func (h *Hub) RegisterClient(clientID string) <-chan Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Envelope, h.bufferSize)
	h.clients[clientID] = ch
	h.logger.Info("broadcast client registered", "client_id", clientID, "total_clients", len(h.clients))
	return ch
}

// UnregisterClient removes and closes a client's channel. Safe to call more
// than once or with an unknown ID.
func (h *Hub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(clientID)
}

func (h *Hub) unregisterLocked(clientID string) {
	ch, ok := h.clients[clientID]
	if !ok {
		return
	}
	delete(h.clients, clientID)
	close(ch)
	h.logger.Info("broadcast client unregistered", "client_id", clientID, "remaining_clients", len(h.clients))
}

// Broadcast delivers event/data to every local client and, when a Publisher
// is attached, publishes it for other processes to pick up. Unlike
// delivering only one or the other, both legs always run: the envelope is
// stamped with this hub's instanceID so ReceiveRemote can
// recognize and discard the loopback copy instead of double-delivering to
// local clients.
func (h *Hub) Broadcast(ctx context.Context, event string, data any) error {
	env, err := newEnvelope(h.instanceID, event, data)
	if err != nil {
		return err
	}
	h.localBroadcast(env)

	h.mu.RLock()
	pub := h.publisher
	h.mu.RUnlock()
	if pub != nil {
		return pub.Publish(ctx, env)
	}
	return nil
}

// ReceiveRemote is called by the Redis subscriber loop for every message
// read off the broadcast channel. Envelopes this hub itself published are
// dropped; everything else is delivered to local clients.
func (h *Hub) ReceiveRemote(env Envelope) {
	if env.Origin == h.instanceID {
		return
	}
	h.localBroadcast(env)
}

func (h *Hub) localBroadcast(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return
	}
	for clientID, ch := range h.clients {
		select {
		case ch <- env:
		default:
			h.logger.Warn("broadcast client too slow, dropping", "client_id", clientID, "event", env.Event)
			h.unregisterLocked(clientID)
			if h.onDrop != nil {
				h.onDrop(clientID, env.Event)
			}
		}
	}
}

// Shutdown broadcasts a final server_shutdown event, gives clients a brief
// window to observe it, then closes every client channel and the attached
// Publisher.
func (h *Hub) Shutdown(ctx context.Context, message string) error {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		h.logger.Info("no broadcast clients to shut down")
	} else {
		h.logger.Info("shutting down broadcast clients", "count", n)
		_ = h.Broadcast(ctx, "server_shutdown", message)
		time.Sleep(200 * time.Millisecond)
	}

	h.mu.Lock()
	for clientID := range h.clients {
		h.unregisterLocked(clientID)
	}
	pub := h.publisher
	h.publisher = nil
	h.mu.Unlock()

	if pub != nil {
		return pub.Close()
	}
	return nil
}
