package registry

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
)

var (
	ErrInvalidPlayers = errors.New("two distinct players are required")
	ErrPlayerBusy     = errors.New("player already in an active match")
)

// Registry binds connections to players and players to at most one match.
type Registry struct {
	mu sync.RWMutex

	connPlayer  map[string]string
	playerConn  map[string]string
	connMatch   map[string]string
	playerMatch map[string]string
	matches     map[string]*match.Match

	newID     func() string
	coin      func() bool
	matchOpts []match.Option
}

type Option func(*Registry)

// WithCoin overrides the side coin flip; true keeps the first player as white.
func WithCoin(f func() bool) Option {
	return func(r *Registry) {
		if f != nil {
			r.coin = f
		}
	}
}

// WithMatchOptions is applied to every match created by the registry.
func WithMatchOptions(opts ...match.Option) Option {
	return func(r *Registry) { r.matchOpts = append(r.matchOpts, opts...) }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		connPlayer:  make(map[string]string),
		playerConn:  make(map[string]string),
		connMatch:   make(map[string]string),
		playerMatch: make(map[string]string),
		matches:     make(map[string]*match.Match),
		newID:       uuid.NewString,
		coin:        coinFlip,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterConnection upserts connID↔playerID. A player moving to a new connection
// leaves the old one unbound and carries its active match over.
func (r *Registry) RegisterConnection(connID, playerID string) {
	connID, playerID = strings.TrimSpace(connID), strings.TrimSpace(playerID)
	if connID == "" || playerID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindLocked(connID, playerID)
}

func (r *Registry) bindLocked(connID, playerID string) {
	if prev, ok := r.connPlayer[connID]; ok && prev != playerID {
		if r.playerConn[prev] == connID {
			delete(r.playerConn, prev)
		}
		delete(r.connMatch, connID)
	}
	if old, ok := r.playerConn[playerID]; ok && old != connID {
		delete(r.connPlayer, old)
		delete(r.connMatch, old)
	}
	r.connPlayer[connID] = playerID
	r.playerConn[playerID] = connID
	if id, ok := r.playerMatch[playerID]; ok {
		r.connMatch[connID] = id
	}
}

// CreateMatch allocates a waiting match between a and b with sides chosen at random.
// A player's connection is bound to the match only while it is still registered
// to that player; a player whose socket already closed is left without one.
func (r *Registry) CreateMatch(a, b domain.Player, timeControl time.Duration, ranked bool) (*match.Match, error) {
	if !r.coin() {
		a, b = b, a
	}
	return r.CreateMatchWithSides(a, b, timeControl, ranked)
}

// CreateMatchWithSides is CreateMatch without the coin flip.
func (r *Registry) CreateMatchWithSides(white, black domain.Player, timeControl time.Duration, ranked bool) (*match.Match, error) {
	if !white.Valid() || !black.Valid() || white.ID == black.ID {
		return nil, ErrInvalidPlayers
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.playerMatch[white.ID]; busy {
		return nil, ErrPlayerBusy
	}
	if _, busy := r.playerMatch[black.ID]; busy {
		return nil, ErrPlayerBusy
	}

	m := match.New(r.newID(), white, black, timeControl, ranked, r.matchOpts...)
	r.matches[m.ID()] = m
	for _, p := range []domain.Player{white, black} {
		r.playerMatch[p.ID] = m.ID()
		if conn, ok := r.playerConn[p.ID]; ok {
			r.connMatch[conn] = m.ID()
		}
	}
	return m, nil
}

// Lookup resolves the match bound to connID.
func (r *Registry) Lookup(connID string) (*match.Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.connMatch[connID]
	if !ok {
		return nil, false
	}
	m, ok := r.matches[id]
	return m, ok
}

func (r *Registry) Match(matchID string) (*match.Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[strings.TrimSpace(matchID)]
	return m, ok
}

func (r *Registry) MatchOfPlayer(playerID string) (*match.Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.playerMatch[playerID]
	if !ok {
		return nil, false
	}
	m, ok := r.matches[id]
	return m, ok
}

func (r *Registry) ConnFor(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.playerConn[playerID]
	return c, ok
}

func (r *Registry) PlayerFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.connPlayer[connID]
	return p, ok
}

// Active lists every match still held by the registry.
func (r *Registry) Active() []*match.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*match.Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// Teardown discards the match and every index entry pointing at it.
// Only the first call for a given match returns true.
func (r *Registry) Teardown(matchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return false
	}
	delete(r.matches, matchID)
	for _, id := range []string{m.White().ID, m.Black().ID} {
		if r.playerMatch[id] == matchID {
			delete(r.playerMatch, id)
		}
	}
	for conn, id := range r.connMatch {
		if id == matchID {
			delete(r.connMatch, conn)
		}
	}
	return true
}

// RemoveConnection drops every entry of connID and returns what it was bound to.
func (r *Registry) RemoveConnection(connID string) (playerID, matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	playerID = r.connPlayer[connID]
	matchID = r.connMatch[connID]
	delete(r.connPlayer, connID)
	delete(r.connMatch, connID)
	if playerID != "" && r.playerConn[playerID] == connID {
		delete(r.playerConn, playerID)
	}
	return playerID, matchID
}

func coinFlip() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return time.Now().UnixNano()&1 == 0
	}
	return n.Int64() == 0
}
