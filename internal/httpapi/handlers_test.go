package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

type fakeLive struct {
	queue   int
	byTC    map[time.Duration]int
	matches map[string]*match.Match
}

func (f *fakeLive) QueueSize() int                            { return f.queue }
func (f *fakeLive) QueueByTimeControl() map[time.Duration]int { return f.byTC }
func (f *fakeLive) ActiveMatches() int { return len(f.matches) }
func (f *fakeLive) MatchSnapshot(id string) (match.Snapshot, bool) {
	m, ok := f.matches[id]
	if !ok {
		return match.Snapshot{}, false
	}
	return m.Snapshot(), true
}

var (
	ann = domain.Player{ID: "ann", Name: "Ann", Rating: 1200}
	ben = domain.Player{ID: "ben", Name: "Ben", Rating: 1100}
)

func newMatch(t *testing.T, id string) *match.Match {
	t.Helper()
	m := match.New(id, ann, ben, 5*time.Minute, true)
	require.NoError(t, m.Start())
	_, err := m.ApplyMove("ann", "e2", "e4", "")
	require.NoError(t, err)
	return m
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestHealthzAndQueue(t *testing.T) {
	live := &fakeLive{
		queue:   3,
		byTC:    map[time.Duration]int{5 * time.Minute: 2, 10 * time.Minute: 1},
		matches: map[string]*match.Match{"m1": newMatch(t, "m1")},
	}
	h := New(live, store.NewMemoryRepository(800)).Routes()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil))

	var q chessdto.QueueView
	require.Equal(t, http.StatusOK, get(t, h, "/api/queue", &q))
	assert.Equal(t, 3, q.Size)
	assert.Equal(t, 1, q.Matches)
	assert.Equal(t, map[int64]int{300000: 2, 600000: 1}, q.TimeControls)
}

func TestMatchLiveThenRedisFallback(t *testing.T) {
	live := &fakeLive{matches: map[string]*match.Match{"m1": newMatch(t, "m1")}}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	snaps := store.NewSnapshotStore(rdb, time.Hour)
	t.Cleanup(func() { _ = snaps.Close() })

	cached := newMatch(t, "m2")
	require.NoError(t, snaps.Save(context.Background(), cached.Snapshot()))

	h := New(live, store.NewMemoryRepository(800), WithSnapshots(snaps)).Routes()

	var v chessdto.MatchStateView
	require.Equal(t, http.StatusOK, get(t, h, "/api/matches/m1", &v))
	assert.Equal(t, "active", v.Status)
	assert.Equal(t, []string{"e2e4"}, v.Moves)
	assert.Equal(t, "black", v.Turn)
	assert.Equal(t, "ann", v.White.ID)

	v = chessdto.MatchStateView{}
	require.Equal(t, http.StatusOK, get(t, h, "/api/matches/m2", &v))
	assert.Equal(t, "m2", v.MatchID)
	assert.Equal(t, int64(300000), v.TimeControl)

	var e chessdto.Error
	require.Equal(t, http.StatusNotFound, get(t, h, "/api/matches/nope", &e))
	assert.Equal(t, chessdto.CodeMatchNotFound, e.Code)
}

func TestPlayerProfile(t *testing.T) {
	repo := store.NewMemoryRepository(800)
	ctx := context.Background()
	require.NoError(t, repo.UpdateRating(ctx, "ann", 1216))
	now := time.Now().UTC()
	require.NoError(t, repo.SaveMatchRecord(ctx, &domain.MatchRecord{
		MatchID: "m9", WhiteID: "ann", WhiteName: "Ann", BlackID: "ben", BlackName: "Ben",
		WhiteRatingBefore: 1200, WhiteRatingAfter: 1216, BlackRatingBefore: 1100, BlackRatingAfter: 1084,
		Result: domain.WinnerWhite, Reason: domain.ReasonResignation, WinnerID: "ann",
		MovesUCI: []string{"e2e4"}, MovesSAN: []string{"e4"}, Ranked: true,
		TimeControl: 5 * time.Minute, StartedAt: now.Add(-time.Minute), EndedAt: now,
	}))
	h := New(&fakeLive{}, repo).Routes()

	var p chessdto.ProfileView
	require.Equal(t, http.StatusOK, get(t, h, "/api/players/ann", &p))
	assert.Equal(t, 1216, p.Rating)
	assert.Equal(t, 1, p.GamesPlayed)
	require.NotNil(t, p.UpdatedAt)
	require.Len(t, p.Recent, 1)
	assert.Equal(t, "m9", p.Recent[0].MatchID)
	assert.Equal(t, 16, p.Recent[0].White.Change)

	p = chessdto.ProfileView{}
	require.Equal(t, http.StatusOK, get(t, h, "/api/players/stranger", &p))
	assert.Equal(t, 800, p.Rating)
	assert.Zero(t, p.GamesPlayed)
	assert.Nil(t, p.UpdatedAt)
	assert.Empty(t, p.Recent)
}

func TestPlayerProfileShowsActiveMatch(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	snaps := store.NewSnapshotStore(rdb, time.Hour)
	t.Cleanup(func() { _ = snaps.Close() })

	require.NoError(t, snaps.Save(context.Background(), newMatch(t, "m3").Snapshot()))
	h := New(&fakeLive{}, store.NewMemoryRepository(800), WithSnapshots(snaps)).Routes()

	var p chessdto.ProfileView
	require.Equal(t, http.StatusOK, get(t, h, "/api/players/ben", &p))
	require.NotNil(t, p.ActiveMatch)
	assert.Equal(t, "m3", p.ActiveMatch.MatchID)
	assert.Equal(t, "black", p.ActiveMatch.Turn)

	p = chessdto.ProfileView{}
	require.Equal(t, http.StatusOK, get(t, h, "/api/players/stranger", &p))
	assert.Nil(t, p.ActiveMatch)

	// a Redis outage hides the live game but keeps the profile
	mr.Close()
	p = chessdto.ProfileView{}
	require.Equal(t, http.StatusOK, get(t, h, "/api/players/ben", &p))
	assert.Nil(t, p.ActiveMatch)
	assert.Equal(t, 800, p.Rating)
}
