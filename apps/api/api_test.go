package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-delivery/pkg/auth"
	"github.com/mahaj/chat-delivery/pkg/mailbox"
	"github.com/mahaj/chat-delivery/pkg/model"
)

const serviceToken = "svc-token"

type staticPresence struct {
	online map[string]bool
	err    error
}

func (p staticPresence) IsOnline(_ context.Context, userID string) (bool, error) {
	return p.online[userID], p.err
}

type testEnv struct {
	handler http.Handler
	mailbox *mailbox.Memory
	authn   *auth.Authenticator
	base    time.Time
}

func newTestEnv(t *testing.T, presence OnlineChecker) *testEnv {
	t.Helper()
	mb := mailbox.NewMemory()
	authn := auth.NewAuthenticator("test-secret")
	if presence == nil {
		presence = staticPresence{online: map[string]bool{"bob": true}}
	}
	api := NewAPI(mb, authn, presence, zerolog.Nop(), Options{DefaultLimit: 100, MaxLimit: 200, DevLogin: true})
	return &testEnv{
		handler: api.Routes(serviceToken),
		mailbox: mb,
		authn:   authn,
		base:    time.Now().UTC().Add(-time.Hour),
	}
}

func (e *testEnv) seed(t *testing.T, from, to, body string, offset time.Duration) {
	t.Helper()
	_, err := e.mailbox.Add(context.Background(), &model.Message{
		From:    from,
		To:      to,
		Content: model.Text{Body: body},
		SentAt:  e.base.Add(offset),
	})
	require.NoError(t, err)
}

func (e *testEnv) do(t *testing.T, method, path, userID string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		token, err := e.authn.Issue(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestConversationsRequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/conversations", "/conversations/bob", "/presence/bob"} {
		rec, body := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "error", body["status"])
		assert.Equal(t, "UNAUTHORIZED", body["code"])
	}
}

func TestListConversations(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "alice", "bob", "hi bob", 0)
	env.seed(t, "carol", "alice", "hi alice", time.Minute)
	env.seed(t, "alice", "bob", "again", 2*time.Minute)

	rec, body := env.do(t, http.MethodGet, "/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	data := body["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, "bob", first["partnerId"])
	assert.Equal(t, "again", first["lastMessage"])
	assert.Equal(t, "alice", first["lastMessageFrom"])
	assert.Equal(t, "carol", data[1].(map[string]any)["partnerId"])
}

func TestListConversationsEmpty(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodGet, "/conversations", "nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["data"])
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 5; i++ {
		env.seed(t, "alice", "bob", fmt.Sprintf("m%d", i), time.Duration(i)*time.Second)
	}

	rec, body := env.do(t, http.MethodGet, "/conversations/alice", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]any)
	require.Len(t, data, 5)
	first := data[0].(map[string]any)
	assert.Equal(t, "CHAT", first["type"])
	assert.Equal(t, "alice", first["from"])
	assert.Equal(t, "bob", first["to"])
	assert.Equal(t, "m0", first["content"])

	rec, body = env.do(t, http.MethodGet, "/conversations/alice?limit=2", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "m1", data[1].(map[string]any)["content"])
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, limit := range []string{"0", "201", "-3", "ten", "1.5"} {
		rec, body := env.do(t, http.MethodGet, "/conversations/alice?limit="+limit, "bob", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
		assert.Equal(t, "VALIDATION_ERROR", body["code"], limit)
	}
}

func TestDeleteConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "alice", "bob", "one", 0)
	env.seed(t, "bob", "alice", "two", time.Second)
	env.seed(t, "alice", "carol", "keep", 2*time.Second)

	rec, body := env.do(t, http.MethodDelete, "/conversations/bob", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Conversation deleted", body["message"])
	assert.Equal(t, float64(2), body["data"].(map[string]any)["deleted"])

	left, err := env.mailbox.GetConversations(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "carol", left[0].PartnerID)
}

func TestInternalEndpointsRequireServiceToken(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodDelete, "/internal/users/alice", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A user token is not a service token.
	rec, _ = env.do(t, http.MethodGet, "/internal/users/alice/partners", "alice", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInternalDeleteUserAndPartners(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, "alice", "bob", "one", 0)
	env.seed(t, "carol", "alice", "two", time.Second)
	env.seed(t, "bob", "carol", "untouched", 2*time.Second)
	svc := map[string]string{auth.ServiceTokenHeader: serviceToken}

	rec, body := env.do(t, http.MethodGet, "/internal/users/alice/partners", "", svc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"carol", "bob"}, body["data"].(map[string]any)["partnerIds"])

	rec, body = env.do(t, http.MethodDelete, "/internal/users/alice", "", svc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	rec, body = env.do(t, http.MethodGet, "/internal/users/alice/partners", "", svc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["data"].(map[string]any)["partnerIds"])

	remaining, err := env.mailbox.GetConversation(context.Background(), "bob", "carol", 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestPresence(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodGet, "/presence/bob", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["data"].(map[string]any)["online"])

	failing := newTestEnv(t, staticPresence{err: errors.New("redis down")})
	rec, body = failing.do(t, http.MethodGet, "/presence/bob", "alice", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body["code"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"user_id":"alice"}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	userID, err := env.authn.Authorize(body.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
