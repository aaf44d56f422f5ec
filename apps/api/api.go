package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-delivery/pkg/auth"
	"github.com/mahaj/chat-delivery/pkg/logging"
	"github.com/mahaj/chat-delivery/pkg/mailbox"
	"github.com/mahaj/chat-delivery/pkg/metrics"
	"github.com/mahaj/chat-delivery/pkg/respond"
)

// OnlineChecker reports whether a user holds a live gateway connection.
type OnlineChecker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// API serves conversation history and the internal account endpoints.
type API struct {
	mailbox  mailbox.Mailbox
	auth     *auth.Authenticator
	presence OnlineChecker
	logger   zerolog.Logger
	validate *validator.Validate

	defaultLimit int
	maxLimit     int
	devLogin     bool
}

type Options struct {
	DefaultLimit int
	MaxLimit     int
	// DevLogin exposes POST /login, which issues a token for any user id.
	DevLogin bool
}

func NewAPI(mb mailbox.Mailbox, authn *auth.Authenticator, presence OnlineChecker, logger zerolog.Logger, opts Options) *API {
	return &API{
		mailbox:      mb,
		auth:         authn,
		presence:     presence,
		logger:       logger,
		validate:     validator.New(),
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		devLogin:     opts.DevLogin,
	}
}

func (a *API) Routes(serviceToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(a.logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if a.devLogin {
		r.Post("/login", a.Login)
	}

	r.Group(func(r chi.Router) {
		r.Use(a.auth.Middleware(respond.Unauthorized))
		r.Get("/conversations", a.ListConversations)
		r.Get("/conversations/{userId}", a.History)
		r.Delete("/conversations/{userId}", a.DeleteConversation)
		r.Get("/presence/{userId}", a.Presence)
	})

	r.Route("/internal/users/{userId}", func(r chi.Router) {
		r.Use(auth.ServiceToken(serviceToken, respond.Unauthorized))
		r.Delete("/", a.DeleteUser)
		r.Get("/partners", a.Partners)
	})
	return r
}

// caller returns the authenticated user, answering 401 when there is none.
func (a *API) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserFromContext(r.Context())
	if userID == "" {
		respond.Unauthorized(w, auth.ErrMissingCredential)
		return "", false
	}
	return userID, true
}
