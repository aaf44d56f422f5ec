package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/chat-delivery/pkg/respond"
)

// DeleteUser erases every message a user sent or received. Called by the
// account service when a user is deleted.
func (a *API) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	if err := a.mailbox.DeleteAllForUser(r.Context(), userID); err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("failed to delete user messages")
		respond.Internal(w)
		return
	}
	a.logger.Info().Str("user_id", userID).Msg("user messages deleted")
	respond.SuccessMessage(w, "User messages deleted successfully", nil)
}

type partnersResult struct {
	PartnerIDs []string `json:"partnerIds"`
}

// Partners lists everyone the user has exchanged messages with.
func (a *API) Partners(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	partners, err := a.mailbox.GetConversationPartners(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list conversation partners")
		respond.Internal(w)
		return
	}
	if partners == nil {
		partners = []string{}
	}
	respond.Success(w, partnersResult{PartnerIDs: partners})
}
