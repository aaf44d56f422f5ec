package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-delivery/pkg/mailbox"
	"github.com/mahaj/chat-delivery/pkg/model"
	"github.com/mahaj/chat-delivery/pkg/notify"
	"github.com/mahaj/chat-delivery/pkg/registry"
)

// conn records frames like a live connection's outbound queue.
type conn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	room   int // frames accepted before refusing; <0 means unlimited
}

func newConn() *conn { return &conn{room: -1} }

func (c *conn) TrySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.room == 0 {
		return false
	}
	if c.room > 0 {
		c.room--
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *conn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

type blockList struct {
	pairs map[[2]string]bool
	err   error
}

func (b *blockList) IsBlocked(_ context.Context, sender, recipient string) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	return b.pairs[[2]string{sender, recipient}], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

// failingMailbox fails the operations named in failOn.
type failingMailbox struct {
	*mailbox.Memory
	failAdd  bool
	failMark bool
	failGet  bool
}

var errStore = errors.New("store down")

func (f *failingMailbox) Add(ctx context.Context, m *model.Message) (string, error) {
	if f.failAdd {
		return "", errors.Join(mailbox.ErrPersistence, errStore)
	}
	return f.Memory.Add(ctx, m)
}

func (f *failingMailbox) MarkDelivered(ctx context.Context, ids []string) error {
	if f.failMark {
		return errors.Join(mailbox.ErrPersistence, errStore)
	}
	return f.Memory.MarkDelivered(ctx, ids)
}

func (f *failingMailbox) GetUndeliveredMessages(ctx context.Context, userID string, since time.Duration, limit int) ([]*model.Message, error) {
	if f.failGet {
		return nil, errors.Join(mailbox.ErrPersistence, errStore)
	}
	return f.Memory.GetUndeliveredMessages(ctx, userID, since, limit)
}

type fixture struct {
	mailbox  *failingMailbox
	registry *registry.Registry
	blocks   *blockList
	notifier *recordingNotifier
	router   *Router
	replayer *Replayer
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		mailbox:  &failingMailbox{Memory: mailbox.NewMemory(mailbox.WithClock(func() time.Time { return now }))},
		registry: registry.New(),
		blocks:   &blockList{pairs: map[[2]string]bool{}},
		notifier: &recordingNotifier{},
		now:      now,
	}
	f.router = NewRouter(f.mailbox, f.registry, f.blocks, f.notifier, zerolog.Nop(),
		WithClock(func() time.Time { return now }))
	f.replayer = NewReplayer(f.mailbox, 7*24*time.Hour, 100, zerolog.Nop())
	t.Cleanup(f.router.Wait)
	return f
}

func (f *fixture) conversation(t *testing.T, a, b string) []*model.Message {
	t.Helper()
	msgs, err := f.mailbox.GetConversation(context.Background(), a, b, 0)
	require.NoError(t, err)
	return msgs
}
