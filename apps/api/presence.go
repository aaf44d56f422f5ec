package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/chat-delivery/pkg/respond"
)

type presenceStatus struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// Presence reports whether a user currently holds a gateway connection.
func (a *API) Presence(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	online, err := a.presence.IsOnline(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("failed to fetch presence")
		respond.Internal(w)
		return
	}
	respond.Success(w, presenceStatus{UserID: userID, Online: online})
}
