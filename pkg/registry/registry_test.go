package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testChannel struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *testChannel) TrySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func TestAddReplacesAndStaleRemoveIsNoop(t *testing.T) {
	r := New()
	c1, c2 := &testChannel{}, &testChannel{}

	assert.Nil(t, r.Add("u", c1))
	assert.Same(t, c1, r.Add("u", c2))

	assert.False(t, r.Remove("u", c1), "stale handle must not evict the successor")
	got, ok := r.Get("u")
	require.True(t, ok)
	assert.Same(t, c2, got)

	assert.True(t, r.Remove("u", c2))
	_, ok = r.Get("u")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestSend(t *testing.T) {
	r := New()
	assert.False(t, r.Send("nobody", map[string]string{"a": "b"}))

	ch := &testChannel{}
	r.Add("u", ch)
	assert.True(t, r.Send("u", map[string]string{"type": "CHAT"}))
	require.Len(t, ch.frames, 1)
	assert.JSONEq(t, `{"type":"CHAT"}`, string(ch.frames[0]))

	ch.closed = true
	assert.False(t, r.Send("u", map[string]string{"type": "CHAT"}))

	assert.False(t, r.Send("u", make(chan int)), "unencodable values are not delivered")
}

func TestConcurrentReconnects(t *testing.T) {
	r := New()
	const users = 20
	const rounds = 200

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			var prev *testChannel
			for i := 0; i < rounds; i++ {
				next := &testChannel{}
				r.Add(user, next)
				if prev != nil {
					// the old connection's close handler fires after the reconnect
					r.Remove(user, prev)
				}
				prev = next
			}
		}(fmt.Sprintf("user-%d", u))
	}
	wg.Wait()

	assert.Equal(t, users, r.Len())
	for u := 0; u < users; u++ {
		_, ok := r.Get(fmt.Sprintf("user-%d", u))
		assert.True(t, ok)
	}
}
