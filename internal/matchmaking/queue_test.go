package matchmaking

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func player(id string) domain.Player {
	return domain.Player{ID: id, Name: id, Rating: 800, ConnID: "conn-" + id}
}

func TestEnqueueRejectsDuplicates(t *testing.T) {
	q := NewQueue()
	assert.True(t, q.Enqueue(player("a"), 10*time.Minute))
	assert.False(t, q.Enqueue(player("a"), 5*time.Minute))
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, 10*time.Minute, q.Entries()[0].TimeControl)
}

func TestEnqueueRejectsAnonymous(t *testing.T) {
	q := NewQueue()
	assert.False(t, q.Enqueue(domain.Player{Name: "ghost"}, time.Minute))
	assert.Zero(t, q.Size())
}

func TestDequeueIsIdempotent(t *testing.T) {
	q := NewQueue()
	q.Enqueue(player("a"), time.Minute)
	assert.True(t, q.Dequeue("a"))
	assert.False(t, q.Dequeue("a"))
	assert.False(t, q.Dequeue("nobody"))
	assert.Zero(t, q.Size())
}

func TestDequeueByConn(t *testing.T) {
	q := NewQueue()
	q.Enqueue(player("a"), time.Minute)
	q.Enqueue(player("b"), time.Minute)

	p, ok := q.DequeueByConn("conn-a")
	require.True(t, ok)
	assert.Equal(t, "a", p.ID)
	_, ok = q.DequeueByConn("conn-a")
	assert.False(t, ok)
	_, ok = q.DequeueByConn("")
	assert.False(t, ok)
	assert.Equal(t, 1, q.Size())
}

func TestPositionIsOneBased(t *testing.T) {
	q := NewQueue()
	q.Enqueue(player("a"), time.Minute)
	q.Enqueue(player("b"), time.Minute)
	q.Enqueue(player("c"), time.Minute)

	pos, ok := q.Position("c")
	require.True(t, ok)
	assert.Equal(t, 3, pos)

	q.Dequeue("a")
	pos, _ = q.Position("c")
	assert.Equal(t, 2, pos)

	_, ok = q.Position("a")
	assert.False(t, ok)
}

func TestTryPairSameTimeControl(t *testing.T) {
	q := NewQueue()
	q.Enqueue(player("a"), 10*time.Minute)
	q.Enqueue(player("b"), 10*time.Minute)

	p, ok := q.TryPair()
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{p.A.Player.ID, p.B.Player.ID})
	assert.Zero(t, q.Size())

	_, ok = q.TryPair()
	assert.False(t, ok)
}

func TestTryPairNeverMixesTimeControls(t *testing.T) {
	q := NewQueue()
	q.Enqueue(player("a"), 5*time.Minute)
	q.Enqueue(player("b"), 6*time.Minute)

	_, ok := q.TryPair()
	assert.False(t, ok)
	assert.Equal(t, 2, q.Size())

	q.Enqueue(player("c"), 6*time.Minute)
	p, ok := q.TryPair()
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"b", "c"}, []string{p.A.Player.ID, p.B.Player.ID})
	assert.Equal(t, p.A.TimeControl, p.B.TimeControl)

	pos, ok := q.Position("a")
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestConcurrentJoinsPairEveryone(t *testing.T) {
	q := NewQueue()
	const n = 64

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]int{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(player(fmt.Sprintf("p%02d", i)), 3*time.Minute)
			if p, ok := q.TryPair(); ok {
				mu.Lock()
				seen[p.A.Player.ID]++
				seen[p.B.Player.ID]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	for {
		p, ok := q.TryPair()
		if !ok {
			break
		}
		seen[p.A.Player.ID]++
		seen[p.B.Player.ID]++
	}

	assert.Zero(t, q.Size())
	assert.Len(t, seen, n)
	for id, c := range seen {
		assert.Equal(t, 1, c, "player %s paired %d times", id, c)
	}
}
