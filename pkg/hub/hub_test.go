package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type written struct {
	kind int
	data []byte
}

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	writes chan written
	gate   chan struct{} // when non-nil, writes wait on it
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		writes: make(chan written, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.closed:
			return errors.New("closed")
		}
	}
	select {
	case f.writes <- written{kind, data}:
	default:
	}
	return nil
}

func (f *fakeConn) SetReadLimit(int64) {}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) next(t *testing.T) written {
	t.Helper()
	select {
	case w := <-f.writes:
		return w
	case <-time.After(time.Second):
		t.Fatal("no write")
		return written{}
	}
}

func startHub(t *testing.T, name string) (*Hub, context.CancelFunc, chan error) {
	t.Helper()
	h := New(name)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	return h, cancel, done
}

func connect(h *Hub) *fakeConn {
	conn := newFakeConn()
	c := NewClient(h, conn)
	go c.Run()
	return conn
}

func TestBroadcastReachesClient(t *testing.T) {
	h, cancel, _ := startHub(t, "mesh")
	defer cancel()

	conn := connect(h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	h.BroadcastBinary([]byte{1, 2, 3})
	w := conn.next(t)
	assert.Equal(t, websocket.BinaryMessage, w.kind)
	assert.Equal(t, []byte{1, 2, 3}, w.data)

	h.Broadcast(Message{Type: JSONMessage, Data: []byte(`{"seq":7}`)})
	w = conn.next(t)
	assert.Equal(t, websocket.TextMessage, w.kind)
	assert.JSONEq(t, `{"seq":7}`, string(w.data))
}

func TestLateClientGetsLastMessage(t *testing.T) {
	h, cancel, _ := startHub(t, "detection")
	defer cancel()

	_, ok := h.Last()
	assert.False(t, ok)

	h.BroadcastBinary([]byte("first"))
	h.BroadcastBinary([]byte("second"))
	require.Eventually(t, func() bool { return h.Stats().Broadcast == 2 }, time.Second, time.Millisecond)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "second", string(last.Data))

	conn := connect(h)
	w := conn.next(t)
	assert.Equal(t, "second", string(w.data))
}

func TestSlowClientDropsInsteadOfDisconnecting(t *testing.T) {
	h, cancel, _ := startHub(t, "video")
	defer cancel()

	conn := newFakeConn()
	conn.gate = make(chan struct{})
	c := NewClient(h, conn)
	go c.Run()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		h.BroadcastBinary([]byte{0})
		return h.Stats().Dropped > 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.ClientCount(), "slow client stays connected")

	close(conn.gate)
	conn.next(t)
}

func TestClientDisconnect(t *testing.T) {
	h, cancel, _ := startHub(t, "mesh")
	defer cancel()

	conn := connect(h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	h, cancel, done := startHub(t, "mesh")
	conn := connect(h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, h.IsRunning())
	assert.Equal(t, 0, h.ClientCount())

	w := conn.next(t)
	assert.Equal(t, websocket.CloseMessage, w.kind)

	// Joining a stopped hub must not block
	late := newFakeConn()
	joined := make(chan struct{})
	go func() {
		NewClient(h, late).Run()
		close(joined)
	}()
	w = late.next(t)
	assert.Equal(t, websocket.CloseMessage, w.kind)
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("client on a stopped hub did not finish")
	}
}
