package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/chat-delivery/pkg/model"
	"github.com/mahaj/chat-delivery/pkg/respond"
)

// History returns the caller's messages with a partner, oldest first.
func (a *API) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	partnerID := chi.URLParam(r, "userId")

	limit, err := a.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}

	messages, err := a.mailbox.GetConversation(r.Context(), userID, partnerID, limit)
	if err != nil {
		a.logger.Error().Err(err).
			Str("user_id", userID).
			Str("partner_id", partnerID).
			Msg("failed to retrieve history")
		respond.Internal(w)
		return
	}
	if messages == nil {
		messages = []*model.Message{}
	}
	respond.Success(w, messages)
}

func (a *API) parseLimit(raw string) (int, error) {
	if raw == "" {
		return a.defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	if err := a.validate.Var(limit, fmt.Sprintf("min=1,max=%d", a.maxLimit)); err != nil {
		return 0, fmt.Errorf("limit must be between 1 and %d", a.maxLimit)
	}
	return limit, nil
}

type LoginRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Login issues a token for any user id. Development only.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "Invalid request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "user_id is required")
		return
	}

	token, err := a.auth.Issue(req.UserID)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", req.UserID).Msg("failed to issue token")
		respond.Internal(w)
		return
	}
	respond.Success(w, LoginResponse{Token: token})
}
