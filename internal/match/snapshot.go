package match

import (
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

// Snapshot is an immutable copy of a match, safe to hand to other goroutines.
type Snapshot struct {
	ID          string         `json:"id"`
	White       domain.Player  `json:"white"`
	Black       domain.Player  `json:"black"`
	Status      Status         `json:"status"`
	FEN         string         `json:"fen"`
	Turn        domain.Side    `json:"turn"`
	Moves       []MoveRecord   `json:"moves"`
	Clocks      Clocks         `json:"clocks"`
	TimeControl time.Duration  `json:"time_control"`
	Ranked      bool           `json:"ranked"`
	Outcome     domain.Outcome `json:"outcome"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
}

func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ID:          m.id,
		White:       m.white,
		Black:       m.black,
		Status:      m.status,
		FEN:         m.board.FEN(),
		Turn:        m.board.Turn(),
		Moves:       append([]MoveRecord(nil), m.moves...),
		Clocks:      m.clocksAt(m.now()),
		TimeControl: m.timeControl,
		Ranked:      m.ranked,
		Outcome:     m.outcome,
		CreatedAt:   m.createdAt,
		StartedAt:   m.startedAt,
		EndedAt:     m.endedAt,
	}
}

func (s Snapshot) MovesUCI() []string {
	out := make([]string, len(s.Moves))
	for i, mv := range s.Moves {
		out[i] = mv.UCI
	}
	return out
}

func (s Snapshot) MovesSAN() []string {
	out := make([]string, len(s.Moves))
	for i, mv := range s.Moves {
		out[i] = mv.SAN
	}
	return out
}

// Player returns the participant on side s.
func (s Snapshot) Player(side domain.Side) domain.Player {
	if side == domain.SideWhite {
		return s.White
	}
	return s.Black
}
