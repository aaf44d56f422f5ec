package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/chat-delivery/pkg/model"
	"github.com/mahaj/chat-delivery/pkg/respond"
)

// ListConversations returns one summary per partner, most recent first.
func (a *API) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}

	conversations, err := a.mailbox.GetConversations(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list conversations")
		respond.Internal(w)
		return
	}
	if conversations == nil {
		conversations = []model.ConversationSummary{}
	}
	respond.Success(w, conversations)
}

type deleteResult struct {
	Deleted int `json:"deleted"`
}

// DeleteConversation removes the caller's messages with a partner in both
// directions.
func (a *API) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	partnerID := chi.URLParam(r, "userId")

	n, err := a.mailbox.DeleteConversation(r.Context(), userID, partnerID)
	if err != nil {
		a.logger.Error().Err(err).
			Str("user_id", userID).
			Str("partner_id", partnerID).
			Msg("failed to delete conversation")
		respond.Internal(w)
		return
	}
	respond.SuccessMessage(w, "Conversation deleted", deleteResult{Deleted: n})
}
