package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/store"
)

// SnapshotReader is the read side of the Redis mirror.
type SnapshotReader interface {
	Load(ctx context.Context, matchID string) (*match.Snapshot, error)
	ActiveByPlayer(ctx context.Context, playerID string) (*match.Snapshot, error)
}

// LiveView exposes the in-process state the API reports on.
type LiveView interface {
	QueueSize() int
	QueueByTimeControl() map[time.Duration]int
	ActiveMatches() int
	MatchSnapshot(matchID string) (match.Snapshot, bool)
}

type API struct {
	live    LiveView
	repo    store.Repository
	snaps   SnapshotReader
	ws      http.Handler
	timeout time.Duration
	recent  int
}

type Option func(*API)

func WithSnapshots(s SnapshotReader) Option { return func(a *API) { a.snaps = s } }
func WithWebsocket(h http.Handler) Option   { return func(a *API) { a.ws = h } }
func WithRecentLimit(n int) Option          { return func(a *API) { a.recent = n } }

func New(live LiveView, repo store.Repository, opts ...Option) *API {
	a := &API{live: live, repo: repo, timeout: 5 * time.Second, recent: 10}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	if a.ws != nil {
		r.Handle("/ws", a.ws)
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(a.timeout))
		r.Get("/queue", a.Queue)
		r.Get("/matches/{id}", a.Match)
		r.Get("/players/{id}", a.Player)
	})
	return r
}
