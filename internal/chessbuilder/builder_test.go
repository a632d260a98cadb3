package chessbuilder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

func testConfig(redisURL string) *config.AppConfig {
	return &config.AppConfig{
		RedisURL:           redisURL,
		DefaultTimeControl: 5 * time.Minute,
		DefaultRating:      800,
		SnapshotTTLSec:     60,
		FinalizeRetries:    1,
		FinalizeBackoff:    time.Millisecond,
		ChallengeTTL:       time.Minute,
		WSSendBuffer:       16,
		HistoryLimit:       5,
	}
}

type wsClient struct {
	t *testing.T
	c *websocket.Conn
}

func (w wsClient) send(event string, data any) {
	w.t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(w.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(w.t, w.c.Write(ctx, websocket.MessageText, raw))
}

// until reads frames until one carries the wanted event.
func (w wsClient) until(event string) json.RawMessage {
	w.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, raw, err := w.c.Read(ctx)
		require.NoError(w.t, err)
		var env chessdto.Envelope
		require.NoError(w.t, json.Unmarshal(raw, &env))
		if env.Event == event {
			return env.Data
		}
	}
}

func TestWiredArenaPairsOverWebsocket(t *testing.T) {
	mr := miniredis.RunT(t)
	deps, err := New(context.Background(), testConfig("redis://"+mr.Addr()+"/0"))
	require.NoError(t, err)
	srv := httptest.NewServer(deps.Handler)
	defer srv.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = deps.Close(ctx)
	}()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dial := func() wsClient {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c, _, err := websocket.Dial(ctx, url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
		return wsClient{t: t, c: c}
	}

	a, b := dial(), dial()
	a.send(chessdto.EvJoinQueue, map[string]any{"playerId": "ann", "name": "Ann", "timeControl": 300000})
	a.until(chessdto.EvQueueJoined)
	b.send(chessdto.EvJoinQueue, map[string]any{"playerId": "ben", "name": "Ben", "timeControl": 300000})

	var start chessdto.GameStart
	require.NoError(t, json.Unmarshal(a.until(chessdto.EvGameStart), &start))
	b.until(chessdto.EvGameStart)
	assert.Equal(t, int64(300000), start.TimeControl)
	assert.True(t, start.Ranked)
	assert.Equal(t, 800, start.White.Rating)

	require.Eventually(t, func() bool { return mr.Exists("arena:match:" + start.MatchID) },
		time.Second, 10*time.Millisecond, "live match is mirrored to redis")

	resp, err := http.Get(srv.URL + "/api/matches/" + start.MatchID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var view chessdto.MatchStateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "active", view.Status)
}

func TestMemoryFallbackWithoutURLs(t *testing.T) {
	deps, err := New(context.Background(), testConfig(""))
	require.NoError(t, err)
	assert.Nil(t, deps.Snapshots)

	rec := httptest.NewRecorder()
	deps.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queue", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"size":0,"activeMatches":0,"timeControls":{}}`, rec.Body.String())
	require.NoError(t, deps.Close(context.Background()))
}

func TestCloseCancelsLiveMatchesWithoutRating(t *testing.T) {
	mr := miniredis.RunT(t)
	deps, err := New(context.Background(), testConfig("redis://"+mr.Addr()+"/0"))
	require.NoError(t, err)
	srv := httptest.NewServer(deps.Handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dial := func() wsClient {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c, _, err := websocket.Dial(ctx, url, nil)
		require.NoError(t, err)
		return wsClient{t: t, c: c}
	}
	a, b := dial(), dial()
	a.send(chessdto.EvJoinQueue, map[string]any{"playerId": "ann", "name": "Ann", "timeControl": 300000})
	a.until(chessdto.EvQueueJoined)
	b.send(chessdto.EvJoinQueue, map[string]any{"playerId": "ben", "name": "Ben", "timeControl": 300000})
	var start chessdto.GameStart
	require.NoError(t, json.Unmarshal(a.until(chessdto.EvGameStart), &start))
	b.until(chessdto.EvGameStart)

	// ben keeps reading so he sees the notice; ann goes silent and never answers the close
	notice := make(chan chessdto.Error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for {
			_, raw, err := b.c.Read(ctx)
			if err != nil {
				return
			}
			var env chessdto.Envelope
			if json.Unmarshal(raw, &env) == nil && env.Event == chessdto.EvError {
				var e chessdto.Error
				_ = json.Unmarshal(env.Data, &e)
				notice <- e
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	begin := time.Now()
	require.NoError(t, deps.Close(ctx))
	assert.Less(t, time.Since(begin), 2*time.Second)

	select {
	case e := <-notice:
		assert.Equal(t, chessdto.CodeUnavailable, e.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("no cancellation notice before the socket closed")
	}
	for _, player := range []string{"ann", "ben"} {
		v, err := deps.Repo.Rating(context.Background(), player)
		require.NoError(t, err)
		assert.Equal(t, 800, v, player)
		recent, err := deps.Repo.RecentMatches(context.Background(), player, 5)
		require.NoError(t, err)
		assert.Empty(t, recent, player)
	}
	assert.False(t, mr.Exists("arena:match:"+start.MatchID))
	assert.Equal(t, 0, deps.Router.ActiveMatches())
}
