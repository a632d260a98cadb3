package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/httpapi"
	"github.com/park285/cheese-arena/internal/lifecycle"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/pvp"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/wsgate"
)

// Deps is the wired arena: storage, the session router, the websocket gateway and the HTTP routes.
type Deps struct {
	Repo      store.Repository
	Snapshots *store.SnapshotStore
	Router    *session.Router
	Gateway   *wsgate.Gateway
	Handler   http.Handler
}

// New picks Postgres when DATABASE_URL is set and falls back to the in-memory repository.
// Redis snapshots are enabled only when REDIS_URL is set.
func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	log := obslog.L()

	msgs, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	// Repository (DB optional, memory fallback)
	var repo store.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pg, err := store.NewPostgresRepository(cfg.DatabaseURL, cfg.DefaultRating)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		repo = pg
		log.Info("store_postgres")
	} else {
		repo = store.NewMemoryRepository(cfg.DefaultRating)
		log.Warn("store_memory", zap.String("hint", "set DATABASE_URL to keep ratings across restarts"))
	}

	// Snapshots (Redis optional)
	var snaps *store.SnapshotStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		snaps = store.NewSnapshotStore(rdb, cfg.SnapshotTTL())
		log.Info("store_redis_snapshots", zap.Duration("ttl", cfg.SnapshotTTL()))
	}

	gw := wsgate.New(wsgate.Options{
		SendBuffer:     cfg.WSSendBuffer,
		OriginPatterns: cfg.WSOriginPatterns,
	})

	ropts := []session.Option{
		session.WithMessages(msgs),
		session.WithChallenges(pvp.NewManager(pvp.WithTTL(cfg.ChallengeTTL))),
	}
	apiOpts := []httpapi.Option{
		httpapi.WithWebsocket(gw),
		httpapi.WithRecentLimit(cfg.HistoryLimit),
	}
	if snaps != nil {
		ropts = append(ropts, session.WithSnapshots(snaps))
		apiOpts = append(apiOpts, httpapi.WithSnapshots(snaps))
	}
	router := session.New(repo, gw, session.Config{
		DefaultTimeControl:  cfg.DefaultTimeControl,
		AllowedTimeControls: cfg.AllowedTimeControls,
		Retry:               lifecycle.RetryPolicy{Attempts: cfg.FinalizeRetries, Backoff: cfg.FinalizeBackoff},
	}, ropts...)
	gw.Bind(router)

	return &Deps{
		Repo:      repo,
		Snapshots: snaps,
		Router:    router,
		Gateway:   gw,
		Handler:   httpapi.New(router, repo, apiOpts...).Routes(),
	}, nil
}

// Close cancels live matches without rating them, closes every socket and waits for
// their handlers, waits for pending persistence, then releases storage.
func (d *Deps) Close(ctx context.Context) error {
	cancelled := d.Router.Drain(ctx)
	gwErr := d.Gateway.Close(ctx)
	obslog.L().Info("arena_close", zap.Int("cancelled_matches", cancelled), zap.Error(gwErr))
	errs := []error{gwErr, d.Router.Close(ctx), d.Repo.Close()}
	if d.Snapshots != nil {
		errs = append(errs, d.Snapshots.Close())
	}
	return errors.Join(errs...)
}
