// Package policy answers whether one user may message another. Block lists
// are owned by the user service, which maintains one Redis set per user.
package policy

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BlockedKey is the set of users that userID has blocked.
func BlockedKey(userID string) string {
	return "user:" + userID + ":blocked"
}

type Redis struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// IsBlocked reports whether either user has blocked the other.
func (p *Redis) IsBlocked(ctx context.Context, senderID, recipientID string) (bool, error) {
	pipe := p.client.Pipeline()
	byRecipient := pipe.SIsMember(ctx, BlockedKey(recipientID), senderID)
	bySender := pipe.SIsMember(ctx, BlockedKey(senderID), recipientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("check block %s -> %s: %w", senderID, recipientID, err)
	}
	return byRecipient.Val() || bySender.Val(), nil
}
