package presence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const onlineKey = "presence:online"

// Presence publishes which users hold a live gateway connection.
type Presence struct {
	redis redis.Cmdable
}

func New(client redis.Cmdable) *Presence {
	return &Presence{redis: client}
}

func (p *Presence) Online(ctx context.Context, userID string) error {
	return p.redis.SAdd(ctx, onlineKey, userID).Err()
}

func (p *Presence) Offline(ctx context.Context, userID string) error {
	return p.redis.SRem(ctx, onlineKey, userID).Err()
}

func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	return p.redis.SIsMember(ctx, onlineKey, userID).Result()
}
