package broadcast

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/OCAP2/bouncelog/pkg/streaming"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ Notifier = (*Hub)(nil)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h, err := NewHub(nil)
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *ws.Conn) streaming.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := streaming.Decode(data)
	require.NoError(t, err)
	return env
}

func TestHub_SendsHelloOnConnect(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, url)

	env := readEnvelope(t, conn)
	assert.Equal(t, streaming.TypeHello, env.Type)
	assert.Contains(t, string(env.Payload), "clientId")

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_NotifyAllReachesEveryClient(t *testing.T) {
	h, url := newTestHub(t)
	a := dial(t, url)
	b := dial(t, url)
	readEnvelope(t, a)
	readEnvelope(t, b)
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 5*time.Millisecond)

	h.NotifyAll(streaming.TypePositionUpdate, core.Position3D{X: 1, Y: 2, Z: 3})

	for _, conn := range []*ws.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, streaming.TypePositionUpdate, env.Type)
		assert.JSONEq(t, `{"x":1,"y":2,"z":3}`, string(env.Payload))
	}
}

func TestHub_NotificationsKeepOrder(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, url)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)

	h.NotifyAll(streaming.TypePositionUpdate, nil)
	h.NotifyAll(streaming.TypeEntryDeleted, streaming.EntryDeletedPayload{ID: 1})
	h.NotifyAll(streaming.TypeAllEntriesCleared, nil)

	assert.Equal(t, streaming.TypePositionUpdate, readEnvelope(t, conn).Type)
	assert.Equal(t, streaming.TypeEntryDeleted, readEnvelope(t, conn).Type)
	assert.Equal(t, streaming.TypeAllEntriesCleared, readEnvelope(t, conn).Type)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, url)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)

	// Notifying with nobody connected is a no-op.
	assert.NotPanics(t, func() { h.NotifyAll(streaming.TypeDashboardCleared, nil) })
}

func TestHub_CloseDisconnectsAndRejects(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, url)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)

	h.Close()
	assert.Equal(t, 0, h.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	late := dial(t, url)
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, ws.IsCloseError(err, ws.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, h.Clients())
}

func TestHub_UnencodablePayloadIsDropped(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, url)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)

	h.NotifyAll(streaming.TypePositionUpdate, make(chan int))
	h.NotifyAll(streaming.TypePositionsSaved, streaming.PositionsSavedPayload{Count: 2})

	env := readEnvelope(t, conn)
	assert.Equal(t, streaming.TypePositionsSaved, env.Type)
	assert.Equal(t, 1, h.Clients())
}

func TestWithSendBuffer(t *testing.T) {
	h, err := NewHub(nil, WithSendBuffer(3), WithSendBuffer(0))
	require.NoError(t, err)
	assert.Equal(t, 3, h.sendBuffer)
}
