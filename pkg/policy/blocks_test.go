package policy

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestBlockedKey(t *testing.T) {
	assert.Equal(t, "user:alice:blocked", BlockedKey("alice"))
}

func TestIsBlockedSurfacesRedisErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	blocked, err := NewRedis(client).IsBlocked(context.Background(), "alice", "bob")
	assert.Error(t, err)
	assert.False(t, blocked)
}

func TestIsBlockedChecksBothDirections(t *testing.T) {
	sets := blockSets{
		BlockedKey("bob"):  {"alice": true},
		BlockedKey("dave"): {},
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(sets)
	defer client.Close()
	p := NewRedis(client)

	tests := []struct {
		sender, recipient string
		want              bool
	}{
		{"alice", "bob", true},
		{"bob", "alice", true},
		{"alice", "dave", false},
		{"carol", "dave", false},
	}
	for _, tt := range tests {
		t.Run(tt.sender+"->"+tt.recipient, func(t *testing.T) {
			blocked, err := p.IsBlocked(context.Background(), tt.sender, tt.recipient)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, blocked)
		})
	}
}
