package wsgate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

var (
	ErrUnknownConn  = errors.New("connection not found")
	ErrSlowConsumer = errors.New("connection send buffer full")
)

// Handler receives the inbound side of every connection. Frames of one connection
// are delivered sequentially, and Disconnect comes after the last frame.
type Handler interface {
	Connect(connID string)
	HandleRaw(ctx context.Context, connID string, raw []byte)
	Disconnect(ctx context.Context, connID string)
}

type Options struct {
	SendBuffer     int
	ReadLimit      int64
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	// CloseGrace bounds how long Close waits for peers to finish the close handshake.
	CloseGrace     time.Duration
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.CloseGrace <= 0 {
		o.CloseGrace = time.Second
	}
	return o
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closer sync.Once
	cancel context.CancelFunc
}

func (c *client) shutdown() { c.closer.Do(func() { close(c.done) }) }

// Gateway serves the websocket endpoint and implements the notify side for the router.
type Gateway struct {
	opts    Options
	handler Handler

	mu      sync.RWMutex
	conns   map[string]*client
	closing bool
	serving sync.WaitGroup
}

func New(opts Options) *Gateway {
	return &Gateway{opts: opts.withDefaults(), conns: make(map[string]*client)}
}

// Bind sets the inbound handler. It must be called before serving.
func (g *Gateway) Bind(h Handler) { g.handler = h }

func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Notify queues ev for connID without blocking. A client that cannot keep up is dropped.
func (g *Gateway) Notify(connID string, ev chessdto.Outbound) error {
	payload, err := chessdto.Encode(ev)
	if err != nil {
		return err
	}
	g.mu.RLock()
	c, ok := g.conns[connID]
	g.mu.RUnlock()
	if !ok {
		return ErrUnknownConn
	}
	return g.enqueue(c, payload)
}

func (g *Gateway) Broadcast(ev chessdto.Outbound) {
	payload, err := chessdto.Encode(ev)
	if err != nil {
		obslog.L().Error("ws_encode_error", zap.String("event", ev.EventName()), zap.Error(err))
		return
	}
	g.mu.RLock()
	targets := make([]*client, 0, len(g.conns))
	for _, c := range g.conns {
		targets = append(targets, c)
	}
	g.mu.RUnlock()
	for _, c := range targets {
		_ = g.enqueue(c, payload)
	}
}

func (g *Gateway) enqueue(c *client, payload []byte) error {
	select {
	case <-c.done:
		return ErrUnknownConn
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		obslog.L().Warn("ws_slow_consumer", zap.String("conn_id", c.id), zap.Int("buffer", cap(c.send)))
		c.shutdown()
		return ErrSlowConsumer
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	g.serving.Add(1)
	g.mu.Unlock()
	defer g.serving.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  g.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Debug("ws_accept_error", zap.Error(err))
		return
	}
	conn.SetReadLimit(g.opts.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, g.opts.SendBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	g.conns[c.id] = c
	g.mu.Unlock()
	obslog.L().Info("ws_connect", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g.writeLoop(ctx, c)
	}()
	go func() {
		defer wg.Done()
		g.pingLoop(ctx, c)
	}()

	if g.handler != nil {
		g.handler.Connect(c.id)
	}
	reason := g.readLoop(ctx, c)

	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
	cancel()
	wg.Wait()
	c.shutdown()

	if g.handler != nil {
		g.handler.Disconnect(context.Background(), c.id)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_disconnect", zap.String("conn_id", c.id), zap.String("reason", reason))
}

func (g *Gateway) readLoop(ctx context.Context, c *client) string {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return "closed"
			}
			select {
			case <-c.done:
				return "dropped"
			default:
			}
			if ctx.Err() != nil {
				return "aborted"
			}
			return err.Error()
		}
		if g.handler != nil {
			g.handler.HandleRaw(ctx, c.id, data)
		}
	}
}

func (g *Gateway) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			// unblock the reader of a dropped client
			_ = c.conn.Close(websocket.StatusPolicyViolation, "too slow")
			return
		case payload := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, g.opts.WriteTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_error", zap.String("conn_id", c.id), zap.Error(err))
				c.shutdown()
				_ = c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (g *Gateway) pingLoop(ctx context.Context, c *client) {
	t := time.NewTicker(g.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Info("ws_ping_timeout", zap.String("conn_id", c.id))
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// Close stops accepting sockets, closes every live one at once and waits until
// their handlers have returned. Peers that have not finished the close handshake
// when CloseGrace or ctx runs out have their reads aborted.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	targets := make([]*client, 0, len(g.conns))
	for _, c := range g.conns {
		targets = append(targets, c)
	}
	g.mu.Unlock()

	for _, c := range targets {
		go g.closeClient(c)
	}
	done := make(chan struct{})
	go func() {
		g.serving.Wait()
		close(done)
	}()

	grace := time.NewTimer(g.opts.CloseGrace)
	defer grace.Stop()
	select {
	case <-done:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}
	obslog.L().Warn("ws_close_abort", zap.Int("conns", g.Count()))
	for _, c := range targets {
		c.cancel()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		select {
		case <-done:
			return nil
		default:
			return ctx.Err()
		}
	}
}

// closeClient gives the writer a moment to flush queued events, then starts the close handshake.
func (g *Gateway) closeClient(c *client) {
	flush := time.Now().Add(g.opts.CloseGrace / 2)
	for len(c.send) > 0 && time.Now().Before(flush) {
		time.Sleep(10 * time.Millisecond)
	}
	_ = c.conn.Close(websocket.StatusGoingAway, "server shutdown")
}
