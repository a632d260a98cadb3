package session

import (
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

func ms(d time.Duration) int64 { return d.Milliseconds() }

func playerView(p domain.Player) chessdto.PlayerView {
	return chessdto.PlayerView{ID: p.ID, Name: p.Name, Rating: p.Rating}
}

func clocksView(c match.Clocks) chessdto.ClocksView {
	return chessdto.ClocksView{White: ms(c.White), Black: ms(c.Black), Running: string(c.Running)}
}

// GameStartOf builds the full-state event used on pairing and on resync.
func GameStartOf(s match.Snapshot) chessdto.GameStart {
	return chessdto.GameStart{
		MatchID:     s.ID,
		White:       playerView(s.White),
		Black:       playerView(s.Black),
		Position:    s.FEN,
		Moves:       s.MovesUCI(),
		Clocks:      clocksView(s.Clocks),
		TimeControl: ms(s.TimeControl),
		Ranked:      s.Ranked,
		Turn:        string(s.Turn),
	}
}

// StateViewOf is the HTTP rendering of a snapshot.
func StateViewOf(s match.Snapshot) chessdto.MatchStateView {
	return chessdto.MatchStateView{
		MatchID:     s.ID,
		Status:      string(s.Status),
		White:       playerView(s.White),
		Black:       playerView(s.Black),
		Position:    s.FEN,
		Moves:       s.MovesUCI(),
		Clocks:      clocksView(s.Clocks),
		Turn:        string(s.Turn),
		TimeControl: ms(s.TimeControl),
		Ranked:      s.Ranked,
		Winner:      string(s.Outcome.Winner),
		Reason:      string(s.Outcome.Reason),
	}
}

// RecordView is the HTTP rendering of a stored match record.
func RecordView(r *domain.MatchRecord) chessdto.MatchRecordView {
	side := func(id, name string, before, after int) chessdto.RatingChange {
		return chessdto.RatingChange{
			PlayerView: chessdto.PlayerView{ID: id, Name: name, Rating: after},
			Before:     before,
			After:      after,
			Change:     after - before,
		}
	}
	moves := r.MovesSAN
	if moves == nil {
		moves = []string{}
	}
	return chessdto.MatchRecordView{
		MatchID:     r.MatchID,
		White:       side(r.WhiteID, r.WhiteName, r.WhiteRatingBefore, r.WhiteRatingAfter),
		Black:       side(r.BlackID, r.BlackName, r.BlackRatingBefore, r.BlackRatingAfter),
		Result:      string(r.Result),
		Reason:      string(r.Reason),
		Detail:      r.Detail,
		MovesSAN:    moves,
		PGN:         r.PGN,
		Ranked:      r.Ranked,
		TimeControl: ms(r.TimeControl),
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
	}
}
