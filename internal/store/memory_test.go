package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

func record(id string, ended time.Time) *domain.MatchRecord {
	return &domain.MatchRecord{
		MatchID: id, WhiteID: "w", WhiteName: "Wanda", BlackID: "b", BlackName: "Boris",
		WhiteRatingBefore: 1600, WhiteRatingAfter: 1608, BlackRatingBefore: 1400, BlackRatingAfter: 1392,
		Result: domain.WinnerWhite, Reason: domain.ReasonCheckmate, WinnerID: "w",
		MovesUCI: []string{"e2e4", "e7e5"}, MovesSAN: []string{"e4", "e5"},
		Ranked: true, TimeControl: 10 * time.Minute, StartedAt: ended.Add(-time.Minute), EndedAt: ended,
	}
}

func TestMemoryRatingDefaults(t *testing.T) {
	repo := NewMemoryRepository(0)
	ctx := context.Background()

	r, err := repo.Rating(ctx, "new")
	if err != nil || r != 800 {
		t.Fatalf("Rating = %d, %v", r, err)
	}
	if p, _ := repo.Profile(ctx, "new"); p != nil {
		t.Fatalf("expected no profile")
	}
	if err := repo.UpdateRating(ctx, "new", 816); err != nil {
		t.Fatalf("UpdateRating: %v", err)
	}
	r, _ = repo.Rating(ctx, "new")
	p, _ := repo.Profile(ctx, "new")
	if r != 816 || p == nil || p.GamesPlayed != 1 {
		t.Fatalf("after update: rating=%d profile=%+v", r, p)
	}
}

func TestMemorySaveMatchRecordOnce(t *testing.T) {
	repo := NewMemoryRepository(800)
	ctx := context.Background()
	now := time.Now()

	if err := repo.SaveMatchRecord(ctx, record("m1", now)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.SaveMatchRecord(ctx, record("m1", now)); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}
	recs := repo.Records()
	if len(recs) != 1 || !strings.Contains(recs[0].PGN, "1. e4 e5 1-0") {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestMemoryRecentMatchesNewestFirst(t *testing.T) {
	repo := NewMemoryRepository(800)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		if err := repo.SaveMatchRecord(ctx, record(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	got, err := repo.RecentMatches(ctx, "b", 2)
	if err != nil {
		t.Fatalf("RecentMatches: %v", err)
	}
	if len(got) != 2 || got[0].MatchID != "c" || got[1].MatchID != "b" {
		t.Fatalf("unexpected order: %v, %v", got[0].MatchID, got[1].MatchID)
	}
	none, _ := repo.RecentMatches(ctx, "stranger", 5)
	if len(none) != 0 {
		t.Fatalf("expected empty history")
	}
}

func TestBuildPGN(t *testing.T) {
	rec := record("m1", time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC))
	rec.MovesSAN = []string{"f3", "e5", "g4", "Qh4#"}
	rec.Result = domain.WinnerBlack
	rec.WhiteName = `Evil "Quote"`

	pgn := BuildPGN(rec)
	for _, want := range []string{
		`[Event "Rated Game"]`,
		`[Date "2025.03.09"]`,
		`[White "Evil 'Quote'"]`,
		`[Result "0-1"]`,
		`[TimeControl "600"]`,
		`[Termination "checkmate"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if resultToPGN(domain.WinnerNone) != "*" || resultToPGN(domain.WinnerDraw) != "1/2-1/2" {
		t.Fatalf("unexpected result tokens")
	}
}
