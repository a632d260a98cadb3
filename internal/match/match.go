package match

import (
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/domain"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// MoveRecord is one entry of the append-only move log.
type MoveRecord struct {
	UCI       string        `json:"uci"`
	SAN       string        `json:"san"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Promotion string        `json:"promotion,omitempty"`
	Side      domain.Side   `json:"side"`
	Elapsed   time.Duration `json:"elapsed"`
	At        time.Time     `json:"at"`
}

// Clocks is a point-in-time read of both countdowns. Running is empty when no clock is ticking.
type Clocks struct {
	White   time.Duration `json:"white"`
	Black   time.Duration `json:"black"`
	Running domain.Side   `json:"running,omitempty"`
}

func (c Clocks) Of(s domain.Side) time.Duration {
	if s == domain.SideWhite {
		return c.White
	}
	return c.Black
}

type MoveResult struct {
	Move     MoveRecord
	FEN      string
	Turn     domain.Side
	Clocks   Clocks
	GameOver bool
	Outcome  domain.Outcome
}

// Match is the authoritative state of one game. All methods are safe for concurrent use;
// operations on one match are serialized by its mutex.
type Match struct {
	mu sync.Mutex

	id          string
	white       domain.Player
	black       domain.Player
	timeControl time.Duration
	ranked      bool

	board  *chess.Board
	moves  []MoveRecord
	status Status

	whiteLeft      time.Duration
	blackLeft      time.Duration
	lastTransition time.Time

	outcome   domain.Outcome
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time

	now func() time.Time
}

type Option func(*Match)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Match) {
		if now != nil {
			m.now = now
		}
	}
}

// WithBoard starts the match from an existing position.
func WithBoard(b *chess.Board) Option {
	return func(m *Match) {
		if b != nil {
			m.board = b
		}
	}
}

// New creates a match in the waiting state. A non-positive timeControl disables the clocks.
func New(id string, white, black domain.Player, timeControl time.Duration, ranked bool, opts ...Option) *Match {
	m := &Match{
		id:          id,
		white:       white,
		black:       black,
		timeControl: timeControl,
		ranked:      ranked,
		board:       chess.NewBoard(),
		status:      StatusWaiting,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if timeControl > 0 {
		m.whiteLeft = timeControl
		m.blackLeft = timeControl
	}
	m.createdAt = m.now()
	return m
}

func (m *Match) ID() string                 { return m.id }
func (m *Match) White() domain.Player       { return m.white }
func (m *Match) Black() domain.Player       { return m.black }
func (m *Match) Ranked() bool               { return m.ranked }
func (m *Match) TimeControl() time.Duration { return m.timeControl }

func (m *Match) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Match) Outcome() (domain.Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome, m.status == StatusCompleted
}

// SideOf reports which side playerID plays.
func (m *Match) SideOf(playerID string) (domain.Side, bool) {
	switch playerID {
	case "":
		return "", false
	case m.white.ID:
		return domain.SideWhite, true
	case m.black.ID:
		return domain.SideBlack, true
	}
	return "", false
}

func (m *Match) Player(s domain.Side) domain.Player {
	if s == domain.SideWhite {
		return m.white
	}
	return m.black
}

// Start moves waiting → active and starts white's clock.
func (m *Match) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusWaiting {
		return ErrAlreadyStarted
	}
	now := m.now()
	m.status = StatusActive
	m.startedAt = now
	m.lastTransition = now
	return nil
}

// ApplyMove validates and plays a move for playerID.
// A move arriving after the mover's flag fell is refused with CodeTimeExpired, and
// that refusal completes the match: the returned MoveResult has GameOver set and
// carries the timeout outcome alongside the error.
func (m *Match) ApplyMove(playerID, from, to, promotion string) (MoveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusActive {
		return MoveResult{}, reject(CodeNotActive, ErrNotActive)
	}
	side, ok := m.SideOf(playerID)
	if !ok {
		return MoveResult{}, reject(CodeNotInMatch, ErrNotInMatch)
	}
	if m.board.Turn() != side {
		return MoveResult{}, reject(CodeNotYourTurn, ErrNotYourTurn)
	}

	now := m.now()
	elapsed := now.Sub(m.lastTransition)
	if elapsed < 0 {
		elapsed = 0
	}
	if m.timed() && elapsed >= m.left(side) {
		m.complete(domain.Outcome{Winner: domain.WinnerOf(side.Opposite()), Reason: domain.ReasonTimeout}, now)
		return MoveResult{
			FEN:      m.board.FEN(),
			Turn:     side,
			Clocks:   m.clocksAt(now),
			GameOver: true,
			Outcome:  m.outcome,
		}, reject(CodeTimeExpired, ErrTimeExpired)
	}

	applied, err := m.board.Apply(from, to, promotion)
	if err != nil {
		return MoveResult{}, reject(CodeIllegalMove, ErrIllegalMove)
	}

	if m.timed() {
		m.setLeft(side, m.left(side)-elapsed)
	}
	m.lastTransition = now

	rec := MoveRecord{
		UCI:       applied.UCI,
		SAN:       applied.SAN,
		From:      applied.From,
		To:        applied.To,
		Promotion: applied.Promotion,
		Side:      side,
		Elapsed:   elapsed,
		At:        now,
	}
	m.moves = append(m.moves, rec)

	if end, over := m.board.Ending(); over {
		m.complete(outcomeOf(end), now)
	}

	return MoveResult{
		Move:     rec,
		FEN:      m.board.FEN(),
		Turn:     m.board.Turn(),
		Clocks:   m.clocksAt(now),
		GameOver: m.status == StatusCompleted,
		Outcome:  m.outcome,
	}, nil
}

// Resign gives the win to playerID's opponent.
func (m *Match) Resign(playerID string) (domain.Outcome, error) {
	return m.Forfeit(playerID, domain.ReasonResignation)
}

// Forfeit is Resign with an explicit reason, e.g. disconnect.
func (m *Match) Forfeit(playerID string, reason domain.Reason) (domain.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	side, ok := m.SideOf(playerID)
	if !ok {
		return domain.Outcome{}, reject(CodeNotInMatch, ErrNotInMatch)
	}
	if m.status != StatusActive {
		return domain.Outcome{}, reject(CodeNotActive, ErrNotActive)
	}
	m.complete(domain.Outcome{Winner: domain.WinnerOf(side.Opposite()), Reason: reason}, m.now())
	return m.outcome, nil
}

// Timeout ends the match because side ran out of time. It reports false if the match was not active.
func (m *Match) Timeout(side domain.Side) (domain.Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive || !side.Valid() {
		return domain.Outcome{}, false
	}
	m.complete(domain.Outcome{Winner: domain.WinnerOf(side.Opposite()), Reason: domain.ReasonTimeout}, m.now())
	return m.outcome, true
}

// TimeoutIfExpired times out the side to move only if its live clock has reached zero.
// A timer that fires late, after a move already switched clocks, is a no-op.
func (m *Match) TimeoutIfExpired() (domain.Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive || !m.timed() {
		return domain.Outcome{}, false
	}
	now := m.now()
	side := m.board.Turn()
	if m.clocksAt(now).Of(side) > 0 {
		return domain.Outcome{}, false
	}
	m.complete(domain.Outcome{Winner: domain.WinnerOf(side.Opposite()), Reason: domain.ReasonTimeout}, now)
	return m.outcome, true
}

// Deadline is the instant the side to move runs out of time.
func (m *Match) Deadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive || !m.timed() {
		return time.Time{}, false
	}
	return m.lastTransition.Add(m.left(m.board.Turn())), true
}

// Clocks reads both clocks. It never mutates stored time.
func (m *Match) Clocks() Clocks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clocksAt(m.now())
}

func (m *Match) timed() bool { return m.timeControl > 0 }

func (m *Match) left(s domain.Side) time.Duration {
	if s == domain.SideWhite {
		return m.whiteLeft
	}
	return m.blackLeft
}

func (m *Match) setLeft(s domain.Side, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if s == domain.SideWhite {
		m.whiteLeft = d
	} else {
		m.blackLeft = d
	}
}

// clocksAt derives live clocks from the frozen values. After completion the reading is pinned to endedAt.
func (m *Match) clocksAt(now time.Time) Clocks {
	c := Clocks{White: m.whiteLeft, Black: m.blackLeft}
	if !m.timed() || m.status == StatusWaiting {
		return c
	}
	if m.status == StatusCompleted {
		now = m.endedAt
	} else {
		c.Running = m.board.Turn()
	}
	elapsed := now.Sub(m.lastTransition)
	if elapsed < 0 {
		elapsed = 0
	}
	live := m.left(m.board.Turn()) - elapsed
	if live < 0 {
		live = 0
	}
	if m.board.Turn() == domain.SideWhite {
		c.White = live
	} else {
		c.Black = live
	}
	return c
}

func (m *Match) complete(o domain.Outcome, now time.Time) {
	if m.status == StatusCompleted {
		return
	}
	m.status = StatusCompleted
	m.outcome = o
	m.endedAt = now
}

func outcomeOf(end chess.Ending) domain.Outcome {
	switch end.Kind {
	case chess.EndCheckmate:
		return domain.Outcome{Winner: domain.WinnerOf(end.Winner), Reason: domain.ReasonCheckmate}
	case chess.EndStalemate:
		return domain.Outcome{Winner: domain.WinnerDraw, Reason: domain.ReasonStalemate}
	default:
		return domain.Outcome{Winner: domain.WinnerDraw, Reason: domain.ReasonDraw, Detail: end.Method}
	}
}
