package matchmaking

import (
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

// Entry is one waiting player.
type Entry struct {
	Player      domain.Player
	TimeControl time.Duration
	JoinedAt    time.Time
}

// Pair is two entries removed together by TryPair.
type Pair struct {
	A Entry
	B Entry
}

// Queue holds waiting players. A player has at most one entry.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Enqueue adds p. It is a no-op returning false if p is already waiting.
func (q *Queue) Enqueue(p domain.Player, timeControl time.Duration) bool {
	if !p.Valid() {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(p.ID) >= 0 {
		return false
	}
	q.entries = append(q.entries, Entry{Player: p, TimeControl: timeControl, JoinedAt: q.now()})
	return true
}

// Dequeue removes playerID and reports whether an entry was removed.
func (q *Queue) Dequeue(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(playerID)
	if i < 0 {
		return false
	}
	q.removeAt(i)
	return true
}

// DequeueByConn removes the entry registered from connID.
func (q *Queue) DequeueByConn(connID string) (domain.Player, bool) {
	connID = strings.TrimSpace(connID)
	if connID == "" {
		return domain.Player{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.Player.ConnID == connID {
			q.removeAt(i)
			return e.Player, true
		}
	}
	return domain.Player{}, false
}

// TryPair removes and returns the first two entries sharing a time control.
func (q *Queue) TryPair() (Pair, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < len(q.entries); i++ {
		for j := i + 1; j < len(q.entries); j++ {
			if q.entries[i].TimeControl != q.entries[j].TimeControl {
				continue
			}
			p := Pair{A: q.entries[i], B: q.entries[j]}
			q.removeAt(j)
			q.removeAt(i)
			return p, true
		}
	}
	return Pair{}, false
}

// Position is the 1-based place of playerID in the queue.
func (q *Queue) Position(playerID string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(playerID)
	if i < 0 {
		return 0, false
	}
	return i + 1, true
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the waiting list.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

func (q *Queue) indexOf(playerID string) int {
	if playerID == "" {
		return -1
	}
	for i, e := range q.entries {
		if e.Player.ID == playerID {
			return i
		}
	}
	return -1
}

func (q *Queue) removeAt(i int) {
	copy(q.entries[i:], q.entries[i+1:])
	q.entries[len(q.entries)-1] = Entry{}
	q.entries = q.entries[:len(q.entries)-1]
}
