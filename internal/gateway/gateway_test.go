package gateway

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return newClient("c1", nil, nil, zerolog.Nop())
}

func TestClient_EnqueueDropsOldestDroppableOnOverflow(t *testing.T) {
	c := newTestClient()
	c.capacity = 3

	require.True(t, c.enqueue([]byte("1"), true))
	require.True(t, c.enqueue([]byte("2"), true))
	require.True(t, c.enqueue([]byte("3"), true))
	require.True(t, c.enqueue([]byte("4"), true)) // overflow: drop "1"

	var got []string
	for {
		m, ok := c.pop()
		if !ok {
			break
		}
		got = append(got, string(m.payload))
	}
	assert.Equal(t, []string{"2", "3", "4"}, got)
}

func TestClient_EnqueueNeverDropsNonDroppableFrames(t *testing.T) {
	c := newTestClient()
	c.capacity = 2

	require.True(t, c.enqueue([]byte("connected"), false))
	require.True(t, c.enqueue([]byte("subscribed"), false))
	// Both slots are non-droppable protocol frames; a droppable update
	// cannot be inserted by eviction and the session is flagged unable
	// to keep up.
	ok := c.enqueue([]byte("update"), true)
	assert.False(t, ok)
}

func TestClient_SustainedOverflowClosesSession(t *testing.T) {
	c := newTestClient()
	c.capacity = 1

	require.True(t, c.enqueue([]byte("seed"), true))
	closed := false
	for i := 0; i < overflowThreshold+2; i++ {
		// Queue stays pinned at capacity, so every enqueue evicts the
		// prior droppable entry and counts as one more overflow.
		if ok := c.enqueue([]byte(fmt.Sprintf("u%d", i)), true); !ok {
			closed = true
			break
		}
	}
	assert.True(t, closed, "sustained overflow should eventually signal session close")
}

func TestHub_BroadcastDeliversOnlyToRoomMembers(t *testing.T) {
	h := NewHub(nil, nil, nil, nil, zerolog.Nop())
	a := newTestClient()
	b := newTestClient()

	h.clients[a] = true
	h.clients[b] = true
	h.joinLocked(a, "product:NIFTY")

	h.broadcast("product:NIFTY", eventFrame("underlying_update", []byte(`{}`), false))

	_, aGot := a.pop()
	_, bGot := b.pop()
	assert.True(t, aGot)
	assert.False(t, bGot)
}
