package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/redis/go-redis/v9"
)

const defaultSnapshotTTL = 24 * time.Hour

// SnapshotStore mirrors live matches into Redis so other processes (and the HTTP API) can read them.
type SnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSnapshotStore(rdb *redis.Client, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotStore{rdb: rdb, ttl: ttl}
}

// NewRedisClient parses a redis:// or rediss:// URL and pings the server.
func NewRedisClient(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := parseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *SnapshotStore) Close() error { return s.rdb.Close() }

func matchKey(id string) string     { return "arena:match:" + strings.TrimSpace(id) }
func playerIdxKey(id string) string { return "arena:index:player:" + strings.TrimSpace(id) }

// Save writes the snapshot and indexes both players.
func (s *SnapshotStore) Save(ctx context.Context, snap match.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, matchKey(snap.ID), raw, s.ttl)
	for _, p := range []string{snap.White.ID, snap.Black.ID} {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pipe.SAdd(ctx, playerIdxKey(p), snap.ID)
		pipe.Expire(ctx, playerIdxKey(p), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns nil, nil when the match is unknown or expired.
func (s *SnapshotStore) Load(ctx context.Context, matchID string) (*match.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, matchKey(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap match.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ActiveByPlayer returns the player's most recently started snapshot that is not completed.
func (s *SnapshotStore) ActiveByPlayer(ctx context.Context, playerID string) (*match.Snapshot, error) {
	ids, err := s.rdb.SMembers(ctx, playerIdxKey(playerID)).Result()
	if err != nil {
		return nil, err
	}
	var best *match.Snapshot
	for _, id := range ids {
		snap, err := s.Load(ctx, id)
		if err != nil || snap == nil || snap.Status == match.StatusCompleted {
			continue
		}
		if best == nil || snap.StartedAt.After(best.StartedAt) {
			best = snap
		}
	}
	return best, nil
}

// Delete removes the snapshot and its index entries.
func (s *SnapshotStore) Delete(ctx context.Context, matchID string, playerIDs ...string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, matchKey(matchID))
	for _, p := range playerIDs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pipe.SRem(ctx, playerIdxKey(p), matchID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// parseRedisURL accepts redis:// and rediss:// (TLS) URLs, including username and query options.
func parseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}
