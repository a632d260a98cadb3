package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/rating"
)

const schema = `
CREATE TABLE IF NOT EXISTS arena_ratings (
	player_id    TEXT PRIMARY KEY,
	rating       INTEGER NOT NULL,
	games_played INTEGER NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS arena_matches (
	match_id            TEXT PRIMARY KEY,
	white_id            TEXT NOT NULL,
	white_name          TEXT NOT NULL,
	black_id            TEXT NOT NULL,
	black_name          TEXT NOT NULL,
	white_rating_before INTEGER NOT NULL,
	white_rating_after  INTEGER NOT NULL,
	black_rating_before INTEGER NOT NULL,
	black_rating_after  INTEGER NOT NULL,
	result              TEXT NOT NULL,
	reason              TEXT NOT NULL,
	detail              TEXT NOT NULL DEFAULT '',
	winner_id           TEXT,
	moves_uci           JSONB NOT NULL,
	moves_san           JSONB NOT NULL,
	pgn                 TEXT NOT NULL,
	ranked              BOOLEAN NOT NULL,
	time_control_ms     BIGINT NOT NULL,
	started_at          TIMESTAMPTZ NOT NULL,
	ended_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS arena_matches_white_idx ON arena_matches (white_id, ended_at DESC);
CREATE INDEX IF NOT EXISTS arena_matches_black_idx ON arena_matches (black_id, ended_at DESC);
`

type PostgresRepository struct {
	db            *sql.DB
	defaultRating int
}

func NewPostgresRepository(databaseURL string, defaultRating int) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if defaultRating <= 0 {
		defaultRating = rating.Default
	}
	return &PostgresRepository{db: db, defaultRating: defaultRating}, nil
}

// Migrate creates the tables if they do not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) Rating(ctx context.Context, playerID string) (int, error) {
	var v int
	err := r.db.QueryRowContext(ctx, `SELECT rating FROM arena_ratings WHERE player_id = $1`, playerID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return r.defaultRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select rating: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) UpdateRating(ctx context.Context, playerID string, value int) error {
	const q = `
		INSERT INTO arena_ratings (player_id, rating, games_played, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (player_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			games_played = arena_ratings.games_played + 1,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, q, playerID, value); err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Profile(ctx context.Context, playerID string) (*domain.RatingProfile, error) {
	p := domain.RatingProfile{PlayerID: playerID}
	err := r.db.QueryRowContext(ctx,
		`SELECT rating, games_played, updated_at FROM arena_ratings WHERE player_id = $1`, playerID,
	).Scan(&p.Rating, &p.GamesPlayed, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

// SaveMatchRecord appends one record. A second save of the same match returns ErrDuplicateRecord.
func (r *PostgresRepository) SaveMatchRecord(ctx context.Context, rec *domain.MatchRecord) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO arena_matches (` + recordColumns + `
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15::jsonb,$16,$17,$18,$19,$20
		) ON CONFLICT (match_id) DO NOTHING
		RETURNING match_id`

	var id sql.NullString
	err = r.db.QueryRowContext(ctx, q, args...).Scan(&id)
	return insertResult(id, err)
}

func (r *PostgresRepository) RecentMatches(ctx context.Context, playerID string, limit int) ([]*domain.MatchRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT ` + recordColumns + `
		FROM arena_matches
		WHERE white_id = $1 OR black_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select match records: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.MatchRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match records: %w", err)
	}
	return out, nil
}

// recordColumns is shared by the insert and the select so both stay in scanRecord's order.
const recordColumns = `
			match_id, white_id, white_name, black_id, black_name,
			white_rating_before, white_rating_after, black_rating_before, black_rating_after,
			result, reason, detail, winner_id, moves_uci, moves_san, pgn,
			ranked, time_control_ms, started_at, ended_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// recordArgs flattens rec into the insert parameters, in recordColumns order.
func recordArgs(rec *domain.MatchRecord) ([]any, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil match record")
	}
	movesUCI, err := json.Marshal(nonNil(rec.MovesUCI))
	if err != nil {
		return nil, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(rec.MovesSAN))
	if err != nil {
		return nil, fmt.Errorf("marshal moves_san: %w", err)
	}
	pgn := rec.PGN
	if pgn == "" {
		pgn = BuildPGN(rec)
	}
	var winnerID sql.NullString
	if rec.WinnerID != "" {
		winnerID = sql.NullString{String: rec.WinnerID, Valid: true}
	}
	return []any{
		rec.MatchID, rec.WhiteID, rec.WhiteName, rec.BlackID, rec.BlackName,
		rec.WhiteRatingBefore, rec.WhiteRatingAfter, rec.BlackRatingBefore, rec.BlackRatingAfter,
		string(rec.Result), string(rec.Reason), rec.Detail, winnerID, movesUCI, movesSAN, pgn,
		rec.Ranked, rec.TimeControl.Milliseconds(), rec.StartedAt, rec.EndedAt,
	}, nil
}

// insertResult interprets the RETURNING row of an ON CONFLICT DO NOTHING insert:
// no row back means the match was already recorded.
func insertResult(id sql.NullString, err error) error {
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("insert match record: %w", err)
	}
	return nil
}

// scanRecord reads one row selected with recordColumns.
func scanRecord(row rowScanner) (*domain.MatchRecord, error) {
	var (
		rec          domain.MatchRecord
		result       string
		reason       string
		winnerID     sql.NullString
		movesUCIJSON []byte
		movesSANJSON []byte
		tcMS         int64
	)
	if err := row.Scan(
		&rec.MatchID, &rec.WhiteID, &rec.WhiteName, &rec.BlackID, &rec.BlackName,
		&rec.WhiteRatingBefore, &rec.WhiteRatingAfter, &rec.BlackRatingBefore, &rec.BlackRatingAfter,
		&result, &reason, &rec.Detail, &winnerID, &movesUCIJSON, &movesSANJSON, &rec.PGN,
		&rec.Ranked, &tcMS, &rec.StartedAt, &rec.EndedAt,
	); err != nil {
		return nil, fmt.Errorf("scan match record: %w", err)
	}
	rec.Result = domain.Winner(result)
	rec.Reason = domain.Reason(reason)
	rec.WinnerID = winnerID.String
	rec.TimeControl = time.Duration(tcMS) * time.Millisecond
	if err := json.Unmarshal(movesUCIJSON, &rec.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &rec.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
