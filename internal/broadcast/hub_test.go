package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastDeliversToRegisteredClients(t *testing.T) {
	h := NewHub(nil, 4)
	ch := h.RegisterClient("c1")

	require.NoError(t, h.Broadcast(context.Background(), "dialog_update", map[string]any{"id": "d1"}))

	select {
	case env := <-ch:
		assert.Equal(t, "dialog_update", env.Event)
		assert.Contains(t, string(env.Data), "d1")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHub_SlowClientIsDroppedNotBlocked(t *testing.T) {
	h := NewHub(nil, 1)
	ch := h.RegisterClient("slow")

	require.NoError(t, h.Broadcast(context.Background(), "e1", "x"))
	// Second broadcast must not block even though the client hasn't read yet.
	done := make(chan struct{})
	go func() {
		_ = h.Broadcast(context.Background(), "e2", "y")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full client channel")
	}

	h.mu.RLock()
	_, stillRegistered := h.clients["slow"]
	h.mu.RUnlock()
	assert.False(t, stillRegistered)

	// the channel should now be closed since the client was evicted.
	_, ok := <-ch
	_ = ok
}

func TestHub_UnregisterClientClosesChannel(t *testing.T) {
	h := NewHub(nil, 2)
	ch := h.RegisterClient("c1")
	h.UnregisterClient("c1")

	_, ok := <-ch
	assert.False(t, ok)
}

func TestHub_ShutdownClosesAllClients(t *testing.T) {
	h := NewHub(nil, 2)
	ch1 := h.RegisterClient("c1")
	ch2 := h.RegisterClient("c2")

	require.NoError(t, h.Shutdown(context.Background(), "bye"))

	for _, ch := range []<-chan Envelope{ch1, ch2} {
		var last Envelope
		for env := range ch {
			last = env
		}
		assert.Equal(t, "server_shutdown", last.Event)
	}
}

func TestHub_ReceiveRemoteIgnoresOwnOrigin(t *testing.T) {
	h := NewHub(nil, 2)
	ch := h.RegisterClient("c1")

	env := Envelope{Event: "loopback", Data: []byte(`"x"`), Origin: h.InstanceID()}
	h.ReceiveRemote(env)

	select {
	case <-ch:
		t.Fatal("hub delivered its own envelope back to clients")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ReceiveRemoteDeliversOtherOrigin(t *testing.T) {
	h := NewHub(nil, 2)
	ch := h.RegisterClient("c1")

	env := Envelope{Event: "remote_event", Data: []byte(`"x"`), Origin: "some-other-instance"}
	h.ReceiveRemote(env)

	select {
	case got := <-ch:
		assert.Equal(t, "remote_event", got.Event)
	case <-time.After(time.Second):
		t.Fatal("expected remote envelope to be delivered")
	}
}

type fakePublisher struct {
	published []Envelope
	closed    bool
}

func (f *fakePublisher) Publish(ctx context.Context, env Envelope) error {
	f.published = append(f.published, env)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestHub_BroadcastPublishesWithOwnOrigin(t *testing.T) {
	h := NewHub(nil, 2)
	pub := &fakePublisher{}
	h.AttachPublisher(pub)

	require.NoError(t, h.Broadcast(context.Background(), "ev", "data"))
	require.Len(t, pub.published, 1)
	assert.Equal(t, h.InstanceID(), pub.published[0].Origin)
}

func TestHub_ShutdownClosesPublisher(t *testing.T) {
	h := NewHub(nil, 2)
	pub := &fakePublisher{}
	h.AttachPublisher(pub)

	require.NoError(t, h.Shutdown(context.Background(), "bye"))
	assert.True(t, pub.closed)
}
