package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

var (
	ErrNotCompleted     = errors.New("match is not completed")
	ErrAlreadyFinalized = errors.New("match already finalized")
)

// Notifier delivers one event to one connection.
type Notifier interface {
	Notify(connID string, ev chessdto.Outbound) error
}

type Disarmer interface {
	Disarm(matchID string)
}

// SnapshotDeleter drops the cached copy of a finished match.
type SnapshotDeleter interface {
	Delete(ctx context.Context, matchID string, playerIDs ...string) error
}

type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var DefaultRetry = RetryPolicy{Attempts: 5, Backoff: 500 * time.Millisecond}

// RatingResult is one side's rating around the finished match.
type RatingResult struct {
	Player domain.Player
	Before int
	After  int
	Change int
}

type Summary struct {
	MatchID   string
	Outcome   domain.Outcome
	Ranked    bool
	White     RatingResult
	Black     RatingResult
	Record    *domain.MatchRecord
	Persisted bool
}

type Coordinator struct {
	reg      *registry.Registry
	repo     store.Repository
	notifier Notifier
	dog      Disarmer
	snaps    SnapshotDeleter
	msgs     *msgcat.Catalog
	retry    RetryPolicy
	timeout  time.Duration

	wg sync.WaitGroup
}

type Option func(*Coordinator)

func WithWatchdog(d Disarmer) Option        { return func(c *Coordinator) { c.dog = d } }
func WithSnapshots(s SnapshotDeleter) Option { return func(c *Coordinator) { c.snaps = s } }
func WithMessages(m *msgcat.Catalog) Option  { return func(c *Coordinator) { c.msgs = m } }

func WithRetry(p RetryPolicy) Option {
	return func(c *Coordinator) {
		if p.Attempts > 0 {
			c.retry = p
		}
	}
}

func New(reg *registry.Registry, repo store.Repository, notifier Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		reg:      reg,
		repo:     repo,
		notifier: notifier,
		retry:    DefaultRetry,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Finalize runs the completion sequence for m exactly once: teardown, rating update,
// record append, game_over fan-out. Persistence failures are retried in the background
// and never block the notification.
func (c *Coordinator) Finalize(ctx context.Context, m *match.Match) (*Summary, error) {
	if m == nil {
		return nil, ErrNotCompleted
	}
	outcome, ok := m.Outcome()
	if !ok {
		return nil, ErrNotCompleted
	}
	if !c.reg.Teardown(m.ID()) {
		return nil, ErrAlreadyFinalized
	}
	if c.dog != nil {
		c.dog.Disarm(m.ID())
	}

	snap := m.Snapshot()
	sum := summarize(snap, outcome)

	job := &persistJob{rec: sum.Record, ranked: sum.Ranked}
	if err := c.persist(ctx, job); err != nil {
		obslog.L().Error("lifecycle_persist_error",
			zap.String("match_id", snap.ID),
			zap.Int("attempt", 1),
			zap.Error(err),
		)
		c.wg.Add(1)
		go c.retryInBackground(job)
	} else {
		sum.Persisted = true
	}

	c.notify(sum)

	if c.snaps != nil {
		if err := c.snaps.Delete(ctx, snap.ID, snap.White.ID, snap.Black.ID); err != nil {
			obslog.L().Warn("lifecycle_snapshot_delete_error", zap.String("match_id", snap.ID), zap.Error(err))
		}
	}

	obslog.L().Info("lifecycle_finalize",
		zap.String("match_id", snap.ID),
		zap.String("winner", string(outcome.Winner)),
		zap.String("reason", string(outcome.Reason)),
		zap.Bool("ranked", sum.Ranked),
		zap.Int("white_change", sum.White.Change),
		zap.Int("black_change", sum.Black.Change),
		zap.Bool("persisted", sum.Persisted),
	)
	return sum, nil
}

// Wait blocks until background retries finish or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
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

func summarize(snap match.Snapshot, outcome domain.Outcome) *Summary {
	wBefore, bBefore := snap.White.Rating, snap.Black.Rating
	var dW, dB int
	if snap.Ranked {
		dW, dB = rating.Compute(wBefore, bBefore, outcome.Winner)
	}
	ended := snap.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	rec := &domain.MatchRecord{
		MatchID:           snap.ID,
		WhiteID:           snap.White.ID,
		WhiteName:         snap.White.Name,
		BlackID:           snap.Black.ID,
		BlackName:         snap.Black.Name,
		WhiteRatingBefore: wBefore,
		WhiteRatingAfter:  wBefore + dW,
		BlackRatingBefore: bBefore,
		BlackRatingAfter:  bBefore + dB,
		Result:            outcome.Winner,
		Reason:            outcome.Reason,
		Detail:            outcome.Detail,
		MovesUCI:          snap.MovesUCI(),
		MovesSAN:          snap.MovesSAN(),
		Ranked:            snap.Ranked,
		TimeControl:       snap.TimeControl,
		StartedAt:         snap.StartedAt,
		EndedAt:           ended,
	}
	switch outcome.Winner {
	case domain.WinnerWhite:
		rec.WinnerID = snap.White.ID
	case domain.WinnerBlack:
		rec.WinnerID = snap.Black.ID
	}
	rec.PGN = store.BuildPGN(rec)

	return &Summary{
		MatchID: snap.ID,
		Outcome: outcome,
		Ranked:  snap.Ranked,
		White:   RatingResult{Player: snap.White, Before: wBefore, After: wBefore + dW, Change: dW},
		Black:   RatingResult{Player: snap.Black, Before: bBefore, After: bBefore + dB, Change: dB},
		Record:  rec,
	}
}

// persistJob remembers which writes already landed so a retry never repeats one.
type persistJob struct {
	rec       *domain.MatchRecord
	ranked    bool
	whiteDone bool
	blackDone bool
	recDone   bool
}

func (c *Coordinator) persist(ctx context.Context, job *persistJob) error {
	if c.repo == nil {
		return errors.New("no repository configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if job.ranked && !job.whiteDone {
		if err := c.repo.UpdateRating(ctx, job.rec.WhiteID, job.rec.WhiteRatingAfter); err != nil {
			return fmt.Errorf("update white rating: %w", err)
		}
		job.whiteDone = true
	}
	if job.ranked && !job.blackDone {
		if err := c.repo.UpdateRating(ctx, job.rec.BlackID, job.rec.BlackRatingAfter); err != nil {
			return fmt.Errorf("update black rating: %w", err)
		}
		job.blackDone = true
	}
	if !job.recDone {
		err := c.repo.SaveMatchRecord(ctx, job.rec)
		if err != nil && !errors.Is(err, store.ErrDuplicateRecord) {
			return fmt.Errorf("save match record: %w", err)
		}
		job.recDone = true
	}
	return nil
}

func (c *Coordinator) retryInBackground(job *persistJob) {
	defer c.wg.Done()
	backoff := c.retry.Backoff
	for attempt := 2; attempt <= c.retry.Attempts; attempt++ {
		time.Sleep(backoff)
		err := c.persist(context.Background(), job)
		if err == nil {
			obslog.L().Info("lifecycle_persist_recovered",
				zap.String("match_id", job.rec.MatchID),
				zap.Int("attempt", attempt),
			)
			return
		}
		obslog.L().Error("lifecycle_persist_error",
			zap.String("match_id", job.rec.MatchID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		backoff *= 2
	}
	obslog.L().Error("lifecycle_persist_abandoned",
		zap.String("match_id", job.rec.MatchID),
		zap.String("white_id", job.rec.WhiteID),
		zap.String("black_id", job.rec.BlackID),
		zap.String("result", string(job.rec.Result)),
	)
}

func (c *Coordinator) notify(sum *Summary) {
	if c.notifier == nil {
		return
	}
	ev := GameOverEvent(sum, c.msgs)
	for _, p := range []domain.Player{sum.White.Player, sum.Black.Player} {
		conn, ok := c.reg.ConnFor(p.ID)
		if !ok {
			continue
		}
		if err := c.notifier.Notify(conn, ev); err != nil {
			obslog.L().Debug("lifecycle_notify_error",
				zap.String("match_id", sum.MatchID),
				zap.String("player_id", p.ID),
				zap.Error(err),
			)
		}
	}
}

// GameOverEvent renders the outcome for both players.
func GameOverEvent(sum *Summary, msgs *msgcat.Catalog) chessdto.GameOver {
	winnerName := ""
	switch sum.Outcome.Winner {
	case domain.WinnerWhite:
		winnerName = sum.White.Player.Name
	case domain.WinnerBlack:
		winnerName = sum.Black.Player.Name
	}
	return chessdto.GameOver{
		MatchID: sum.MatchID,
		Winner:  string(sum.Outcome.Winner),
		Reason:  string(sum.Outcome.Reason),
		Detail:  sum.Outcome.Detail,
		Message: msgs.Text("result."+string(sum.Outcome.Reason), map[string]string{
			"Winner": winnerName,
			"Detail": sum.Outcome.Detail,
		}),
		White:  ratingChange(sum.White),
		Black:  ratingChange(sum.Black),
		Ranked: sum.Ranked,
	}
}

func ratingChange(r RatingResult) chessdto.RatingChange {
	return chessdto.RatingChange{
		PlayerView: chessdto.PlayerView{ID: r.Player.ID, Name: r.Player.Name, Rating: r.After},
		Before:     r.Before,
		After:      r.After,
		Change:     r.Change,
	}
}
