package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-delivery/pkg/model"
)

func TestEventFor(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	e := EventFor(&model.Message{From: "alice", To: "bob", Content: model.Text{Body: "hi"}, SentAt: at})
	assert.Equal(t, Event{RecipientID: "bob", SenderID: "alice", Type: EventNewMessage, At: at}, e)

	e = EventFor(&model.Message{From: "alice", To: "bob", Content: model.Invite{Payload: map[string]any{"invitationId": "inv-1"}}, SentAt: at})
	assert.Equal(t, EventGameInvite, e.Type)
	assert.Equal(t, "inv-1", e.InvitationID)
}

func TestHTTPDispatcher(t *testing.T) {
	var (
		gotToken string
		gotPath  string
		got      dispatchRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("x-service-token")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL+"/", "tok", time.Second)
	err := d.Dispatch(context.Background(), Event{RecipientID: "bob", SenderID: "alice", Type: EventGameInvite, InvitationID: "inv-1"})
	require.NoError(t, err)

	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, "/internal/", gotPath)
	assert.Equal(t, "bob", got.UserID)
	assert.Equal(t, EventGameInvite, got.Type)
	assert.JSONEq(t, `{"from":"alice","invitationId":"inv-1"}`, got.Message)
}

func TestHTTPDispatcherFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPDispatcher(srv.URL, "tok", time.Second).Dispatch(context.Background(), Event{RecipientID: "bob"})
	assert.ErrorContains(t, err, "502")
}
