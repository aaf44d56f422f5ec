package snowflake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeRejectsOutOfRange(t *testing.T) {
	_, err := NewNode(-1)
	assert.Error(t, err)
	_, err = NewNode(1024)
	assert.Error(t, err)
}

func TestGenerateIsMonotonic(t *testing.T) {
	n, err := NewNode(7)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := n.GenerateAt(at)
	for i := 0; i < 10000; i++ {
		id := n.GenerateAt(at)
		require.Greater(t, id, prev)
		prev = id
	}

	// clock going backwards must not reorder ids
	back := n.GenerateAt(at.Add(-time.Hour))
	assert.Greater(t, back, prev)
}

func TestFloorBoundsWindow(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	at := time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)
	id := n.GenerateAt(at)

	assert.GreaterOrEqual(t, id, Floor(at))
	assert.Less(t, id, Floor(at.Add(time.Millisecond)))
}

func TestParseRoundTrip(t *testing.T) {
	n, err := NewNode(3)
	require.NoError(t, err)

	id := n.GenerateAt(time.Now())
	got, err := Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = Parse("not-an-id")
	assert.Error(t, err)
}
