// Package registry maps each user to their single live outbound channel.
package registry

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Channel is the outbound side of one live connection. Registry entries are
// compared by identity, so implementations should be pointer types.
type Channel interface {
	// TrySend queues frame without blocking. It reports false when the
	// connection is closed or its buffer is full.
	TrySend(frame []byte) bool
}

// Registry holds at most one Channel per user. Installing a channel
// supersedes the previous one; removal only succeeds for the current holder,
// so a late close of a replaced connection cannot evict its successor.
type Registry struct {
	channels sync.Map // user id -> Channel
	size     atomic.Int64
}

func New() *Registry {
	return &Registry{}
}

// Add installs ch for userID and returns the channel it replaced, if any.
// The replaced channel is not notified.
func (r *Registry) Add(userID string, ch Channel) Channel {
	prev, loaded := r.channels.Swap(userID, ch)
	if !loaded {
		r.size.Add(1)
		return nil
	}
	return prev.(Channel)
}

// Remove deletes the entry for userID only if it is still ch.
func (r *Registry) Remove(userID string, ch Channel) bool {
	if r.channels.CompareAndDelete(userID, ch) {
		r.size.Add(-1)
		return true
	}
	return false
}

func (r *Registry) Get(userID string) (Channel, bool) {
	v, ok := r.channels.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(Channel), true
}

// Send pushes v as a JSON frame to userID's channel. It never blocks and
// never retries; false means the user is offline or could not take the frame.
func (r *Registry) Send(userID string, v any) bool {
	ch, ok := r.Get(userID)
	if !ok {
		return false
	}
	frame, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return ch.TrySend(frame)
}

// Len reports the number of users with a registered channel.
func (r *Registry) Len() int {
	return int(r.size.Load())
}
