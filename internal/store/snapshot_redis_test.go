package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
)

func newTestStore(t *testing.T) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSnapshotStore(rdb, time.Hour), mr
}

func startedMatch(t *testing.T, id string) *match.Match {
	t.Helper()
	m := match.New(id,
		domain.Player{ID: "w", Name: "White"},
		domain.Player{ID: "b", Name: "Black"},
		5*time.Minute, true)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.ApplyMove("w", "e2", "e4", ""); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	return m
}

func TestSnapshotSaveLoad(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	m := startedMatch(t, "m1")

	if err := s.Save(ctx, m.Snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "m1")
	if err != nil || got == nil {
		t.Fatalf("Load: %v %v", got, err)
	}
	if got.FEN != m.Snapshot().FEN || got.Turn != domain.SideBlack || len(got.Moves) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.Moves[0].SAN != "e4" {
		t.Fatalf("san = %q", got.Moves[0].SAN)
	}
	if ttl := mr.TTL(matchKey("m1")); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestSnapshotLoadMissing(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Load(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}

func TestActiveByPlayerSkipsCompleted(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	done := startedMatch(t, "old")
	if _, err := done.Resign("w"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	live := startedMatch(t, "new")
	for _, m := range []*match.Match{done, live} {
		if err := s.Save(ctx, m.Snapshot()); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := s.ActiveByPlayer(ctx, "b")
	if err != nil || got == nil {
		t.Fatalf("ActiveByPlayer: %v %v", got, err)
	}
	if got.ID != "new" {
		t.Fatalf("got %q, want new", got.ID)
	}
}

func TestSnapshotDelete(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	m := startedMatch(t, "m1")
	if err := s.Save(ctx, m.Snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, "m1", "w", "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mr.Exists(matchKey("m1")) {
		t.Fatalf("match key still present")
	}
	got, _ := s.ActiveByPlayer(ctx, "w")
	if got != nil {
		t.Fatalf("expected no active match after delete")
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6380/3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 3 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	tlsOpts, err := parseRedisURL("rediss://user:pw@cache.example:6380/2?dial_timeout=3s")
	if err != nil {
		t.Fatalf("parse rediss: %v", err)
	}
	if tlsOpts.TLSConfig == nil || tlsOpts.TLSConfig.ServerName != "cache.example" {
		t.Fatalf("rediss must enable TLS: %+v", tlsOpts.TLSConfig)
	}
	if tlsOpts.Username != "user" || tlsOpts.Password != "pw" || tlsOpts.DB != 2 || tlsOpts.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected rediss options: %+v", tlsOpts)
	}
	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
