package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-delivery/pkg/auth"
	"github.com/mahaj/chat-delivery/pkg/delivery"
	"github.com/mahaj/chat-delivery/pkg/logging"
	"github.com/mahaj/chat-delivery/pkg/metrics"
	"github.com/mahaj/chat-delivery/pkg/registry"
	"github.com/mahaj/chat-delivery/pkg/respond"
)

// PresenceTracker mirrors registry membership into a shared store so other
// services can see who is connected.
type PresenceTracker interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

// Gateway owns the live connections of this process and hands their frames
// to the router.
type Gateway struct {
	registry *registry.Registry
	router   *delivery.Router
	replayer *delivery.Replayer
	auth     *auth.Authenticator
	presence PresenceTracker
	logger   zerolog.Logger
	validate *validator.Validate

	maxFrameBytes int64
}

type Option func(*Gateway)

// WithMaxFrameBytes bounds the size of one inbound websocket frame.
func WithMaxFrameBytes(n int64) Option {
	return func(g *Gateway) { g.maxFrameBytes = n }
}

func NewGateway(reg *registry.Registry, router *delivery.Router, replayer *delivery.Replayer, authn *auth.Authenticator, presence PresenceTracker, logger zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		registry:      reg,
		router:        router,
		replayer:      replayer,
		auth:          authn,
		presence:      presence,
		logger:        logger,
		validate:      validator.New(),
		maxFrameBytes: defaultMaxFrameBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Routes builds the gateway's HTTP surface. serviceToken guards the
// internal endpoints.
func (g *Gateway) Routes(serviceToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", auth.ServiceTokenHeader},
		MaxAge:         300,
	}))

	r.Get("/ws", g.serveWs)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": g.registry.Len(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/internal", func(r chi.Router) {
		r.Use(logging.Middleware(g.logger))
		r.Use(metrics.Middleware)
		r.Use(auth.ServiceToken(serviceToken, respond.Unauthorized))
		r.Post("/invitations", g.handleInvitation)
	})
	return r
}

// register installs c as its user's live connection. A superseded
// connection is left to close on its own.
func (g *Gateway) register(c *Client) {
	if prev := g.registry.Add(c.userID, c); prev != nil {
		g.logger.Debug().Str("user_id", c.userID).Msg("previous connection superseded")
	}
	metrics.ActiveConnections.Set(float64(g.registry.Len()))

	if g.presence != nil {
		if err := g.presence.Online(context.Background(), c.userID); err != nil {
			g.logger.Warn().Err(err).Str("user_id", c.userID).Msg("failed to set presence")
		}
	}
	g.logger.Info().Str("user_id", c.userID).Str("conn_id", c.connID).Msg("client registered")
}

// unregister retires c only if it is still the current connection, so a
// stale close never evicts a newer one.
func (g *Gateway) unregister(c *Client) {
	if !g.registry.Remove(c.userID, c) {
		g.logger.Debug().Str("user_id", c.userID).Str("conn_id", c.connID).Msg("stale connection closed")
		return
	}
	metrics.ActiveConnections.Set(float64(g.registry.Len()))

	if g.presence != nil {
		ctx := context.Background()
		if err := g.presence.Offline(ctx, c.userID); err != nil {
			g.logger.Warn().Err(err).Str("user_id", c.userID).Msg("failed to clear presence")
		}
		// A successor may have set presence before our clear landed.
		if _, ok := g.registry.Get(c.userID); ok {
			if err := g.presence.Online(ctx, c.userID); err != nil {
				g.logger.Warn().Err(err).Str("user_id", c.userID).Msg("failed to restore presence")
			}
		}
	}
	g.logger.Info().Str("user_id", c.userID).Str("conn_id", c.connID).Msg("client unregistered")
}

type invitationRequest struct {
	InvitationID string `json:"invitationId" validate:"required,uuid"`
	InviterID    string `json:"inviterId" validate:"required"`
	InviteeID    string `json:"inviteeId" validate:"required"`
}

// handleInvitation delivers a game invite created by another service.
func (g *Gateway) handleInvitation(w http.ResponseWriter, r *http.Request) {
	var req invitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "Invalid request body")
		return
	}
	if err := g.validate.Struct(req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}

	payload := map[string]any{"invitationId": req.InvitationID}
	if _, err := g.router.DeliverInvite(r.Context(), req.InviterID, req.InviteeID, payload); err != nil {
		g.logger.Error().Err(err).
			Str("invitation_id", req.InvitationID).
			Str("inviter_id", req.InviterID).
			Str("invitee_id", req.InviteeID).
			Msg("failed to deliver invitation")
		respond.Internal(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
