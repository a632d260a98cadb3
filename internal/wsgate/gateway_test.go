package wsgate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-arena/pkg/chessdto"
)

// echoHandler greets on connect and bounces every frame back as an error event.
type echoHandler struct {
	gw *Gateway

	mu     sync.Mutex
	frames []string
	gone   chan string
}

func (h *echoHandler) Connect(connID string) {
	_ = h.gw.Notify(connID, chessdto.QueueUpdate{QueueSize: 7})
}

func (h *echoHandler) HandleRaw(_ context.Context, connID string, raw []byte) {
	h.mu.Lock()
	h.frames = append(h.frames, string(raw))
	h.mu.Unlock()
	_ = h.gw.Notify(connID, chessdto.Error{Code: "echo", Message: string(raw)})
}

func (h *echoHandler) Disconnect(_ context.Context, connID string) { h.gone <- connID }

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*Gateway, *echoHandler, string) {
	t.Helper()
	gw := New(Options{SendBuffer: 8})
	h := &echoHandler{gw: gw, gone: make(chan string, 4)}
	gw.Bind(h)
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return gw, h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return c
}

func read(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, raw, err := c.Read(ctx)
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func TestGatewayRoundTrip(t *testing.T) {
	gw, h, url := setup(t)
	c := dial(t, url)

	hello := read(t, c)
	assert.Equal(t, chessdto.EvQueueUpdate, hello.Event)
	assert.JSONEq(t, `{"queueSize":7}`, string(hello.Data))
	assert.Equal(t, 1, gw.Count())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("ping-1")))

	echo := read(t, c)
	assert.Equal(t, chessdto.EvError, echo.Event)
	assert.Contains(t, string(echo.Data), "ping-1")

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	select {
	case id := <-h.gone:
		assert.NotEmpty(t, id)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not reported")
	}
	assert.Eventually(t, func() bool { return gw.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestGatewayBroadcastReachesEveryone(t *testing.T) {
	gw, _, url := setup(t)
	a := dial(t, url)
	b := dial(t, url)
	defer a.Close(websocket.StatusNormalClosure, "")
	defer b.Close(websocket.StatusNormalClosure, "")
	read(t, a)
	read(t, b)
	require.Eventually(t, func() bool { return gw.Count() == 2 }, time.Second, 10*time.Millisecond)

	gw.Broadcast(chessdto.QueueUpdate{QueueSize: 3})
	for _, c := range []*websocket.Conn{a, b} {
		f := read(t, c)
		assert.Equal(t, chessdto.EvQueueUpdate, f.Event)
		assert.JSONEq(t, `{"queueSize":3}`, string(f.Data))
	}
}

func TestNotifyUnknownConnection(t *testing.T) {
	gw := New(Options{})
	err := gw.Notify("nobody", chessdto.QueueUpdate{})
	assert.ErrorIs(t, err, ErrUnknownConn)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	gw := New(Options{SendBuffer: 1})
	c := &client{id: "c1", send: make(chan []byte, 1), done: make(chan struct{})}
	gw.conns[c.id] = c

	require.NoError(t, gw.Notify("c1", chessdto.QueueUpdate{QueueSize: 1}))
	assert.ErrorIs(t, gw.Notify("c1", chessdto.QueueUpdate{QueueSize: 2}), ErrSlowConsumer)
	assert.ErrorIs(t, gw.Notify("c1", chessdto.QueueUpdate{QueueSize: 3}), ErrUnknownConn)
}

func TestCloseBoundsSilentPeersAndWaitsForHandlers(t *testing.T) {
	gw := New(Options{SendBuffer: 8, CloseGrace: 200 * time.Millisecond})
	h := &echoHandler{gw: gw, gone: make(chan string, 4)}
	gw.Bind(h)
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// neither client reads again, so neither answers the close handshake
	a := dial(t, url)
	b := dial(t, url)
	read(t, a)
	read(t, b)
	require.Eventually(t, func() bool { return gw.Count() == 2 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, gw.Close(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, h.gone, 2, "every handler returns before Close does")
	assert.Equal(t, 0, gw.Count())

	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	_, resp, err := websocket.Dial(dctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCloseWithoutConnections(t *testing.T) {
	gw := New(Options{})
	require.NoError(t, gw.Close(context.Background()))
}
