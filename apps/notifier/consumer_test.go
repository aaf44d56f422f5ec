package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-delivery/pkg/notify"
)

// fakeReader hands out queued messages, then blocks until cancelled.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
	failOn string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, e notify.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	if e.RecipientID == d.failOn {
		return errors.New("notification service unavailable")
	}
	return nil
}

func (d *fakeDispatcher) Events() []notify.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Event(nil), d.events...)
}

func eventMessage(t *testing.T, offset int64, e notify.Event) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(e.RecipientID), Value: b}
}

func runConsumer(t *testing.T, c *Consumer) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestConsumerDispatchesAndCommits(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		eventMessage(t, 1, notify.Event{RecipientID: "bob", SenderID: "alice", Type: notify.EventNewMessage}),
		{Offset: 2, Value: []byte("{garbage")},
		eventMessage(t, 3, notify.Event{RecipientID: "carol", SenderID: "alice", Type: notify.EventGameInvite, InvitationID: "inv-1"}),
	}}
	dispatcher := &fakeDispatcher{}
	stop := runConsumer(t, NewConsumer(reader, dispatcher, zerolog.Nop()))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 3 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []int64{1, 2, 3}, reader.Committed())
	events := dispatcher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "bob", events[0].RecipientID)
	assert.Equal(t, notify.EventGameInvite, events[1].Type)
	assert.Equal(t, "inv-1", events[1].InvitationID)
}

func TestConsumerCommitsFailedDispatch(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		eventMessage(t, 7, notify.Event{RecipientID: "bob", SenderID: "alice", Type: notify.EventNewMessage}),
		eventMessage(t, 8, notify.Event{RecipientID: "dave", SenderID: "alice", Type: notify.EventNewMessage}),
	}}
	dispatcher := &fakeDispatcher{failOn: "bob"}
	stop := runConsumer(t, NewConsumer(reader, dispatcher, zerolog.Nop()))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, 5*time.Millisecond)
	stop()
	assert.Len(t, dispatcher.Events(), 2)
}

func TestConsumerRetriesFetchErrors(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: []error{errors.New("broker unavailable")},
		queue:     []kafka.Message{eventMessage(t, 1, notify.Event{RecipientID: "bob", Type: notify.EventNewMessage})},
	}
	c := NewConsumer(reader, &fakeDispatcher{}, zerolog.Nop())
	c.retryDelay = 10 * time.Millisecond
	stop := runConsumer(t, c)

	require.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, time.Second, 5*time.Millisecond)
	stop()
}
