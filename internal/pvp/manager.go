package pvp

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrInvalidArgs     = errors.New("invalid arguments")
	ErrSelfChallenge   = errors.New("cannot challenge yourself")
	ErrAlreadyPending  = errors.New("target already has a pending challenge from this player")
	ErrNoPending       = errors.New("no pending challenge with that id")
	ErrNotChallengeFor = errors.New("challenge is addressed to another player")
)

const DefaultTTL = 2 * time.Minute

type Manager struct {
	mu sync.Mutex
	// targetID -> challenges (append-only; last is latest)
	byTarget map[string][]*Challenge
	byID     map[string]*Challenge
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*Manager)

// WithTTL sets how long a challenge stays answerable.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		byTarget: make(map[string][]*Challenge),
		byID:     make(map[string]*Challenge),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateChallenge records a pending challenge.
// 같은 도전자/상대 쌍에는 대기 중 도전 하나만 허용.
func (m *Manager) CreateChallenge(challenger domain.Player, targetID string, color ColorChoice, timeControl time.Duration) (Challenge, error) {
	targetID = strings.TrimSpace(targetID)
	if !challenger.Valid() || targetID == "" || timeControl < 0 {
		return Challenge{}, ErrInvalidArgs
	}
	if challenger.ID == targetID {
		return Challenge{}, ErrSelfChallenge
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.expireLocked(now)

	list := m.byTarget[targetID]
	for _, ch := range list {
		if ch.Status == StatusPending && ch.Challenger.ID == challenger.ID {
			return Challenge{}, ErrAlreadyPending
		}
	}
	if color == "" {
		color = ColorRandom
	}
	ch := &Challenge{
		ID:          uuid.NewString(),
		Challenger:  challenger,
		TargetID:    targetID,
		Color:       color,
		TimeControl: timeControl,
		CreatedAt:   now,
		Status:      StatusPending,
	}
	m.byTarget[targetID] = append(list, ch)
	m.byID[ch.ID] = ch
	return *ch, nil
}

// Accept resolves a pending challenge addressed to accepterID.
func (m *Manager) Accept(challengeID, accepterID string) (Challenge, error) {
	return m.resolve(challengeID, accepterID, StatusAccepted)
}

// Decline resolves a pending challenge addressed to declinerID.
func (m *Manager) Decline(challengeID, declinerID string) (Challenge, error) {
	return m.resolve(challengeID, declinerID, StatusDeclined)
}

func (m *Manager) resolve(challengeID, targetID string, to Status) (Challenge, error) {
	challengeID, targetID = strings.TrimSpace(challengeID), strings.TrimSpace(targetID)
	if challengeID == "" || targetID == "" {
		return Challenge{}, ErrInvalidArgs
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(m.now())

	ch, ok := m.byID[challengeID]
	if !ok || ch.Status != StatusPending {
		return Challenge{}, ErrNoPending
	}
	if ch.TargetID != targetID {
		return Challenge{}, ErrNotChallengeFor
	}
	ch.Status = to
	m.dropLocked(ch)
	return *ch, nil
}

// Pending lists the open challenges addressed to targetID, oldest first.
func (m *Manager) Pending(targetID string) []Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(m.now())
	var out []Challenge
	for _, ch := range m.byTarget[targetID] {
		if ch.Status == StatusPending {
			out = append(out, *ch)
		}
	}
	return out
}

// DropPlayer withdraws every pending challenge sent by or addressed to playerID.
// 연결 종료 시 호출: 오프라인 유저 앞으로 도전이 남지 않도록.
func (m *Manager) DropPlayer(playerID string) []Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dropped []Challenge
	for _, ch := range m.byID {
		if ch.Challenger.ID == playerID || ch.TargetID == playerID {
			ch.Status = StatusExpired
			dropped = append(dropped, *ch)
			m.dropLocked(ch)
		}
	}
	return dropped
}

func (m *Manager) expireLocked(now time.Time) {
	for _, ch := range m.byID {
		if ch.Status == StatusPending && now.Sub(ch.CreatedAt) >= m.ttl {
			ch.Status = StatusExpired
			m.dropLocked(ch)
		}
	}
}

func (m *Manager) dropLocked(ch *Challenge) {
	delete(m.byID, ch.ID)
	list := m.byTarget[ch.TargetID]
	kept := list[:0]
	for _, c := range list {
		if c != ch {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(m.byTarget, ch.TargetID)
		return
	}
	m.byTarget[ch.TargetID] = kept
}
