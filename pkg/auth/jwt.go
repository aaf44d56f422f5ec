package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential = errors.New("auth: missing credential")
	ErrInvalidCredential = errors.New("auth: invalid credential")
)

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type contextKey string

const UserKey contextKey = "user"

// Authenticator issues and validates HS256 tokens.
type Authenticator struct {
	key []byte
	ttl time.Duration
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{key: []byte(secret), ttl: 24 * time.Hour}
}

// Issue creates a token for userID.
func (a *Authenticator) Issue(userID string) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.key)
}

// Authorize resolves the user id carried by credential. A "Bearer " prefix
// is accepted and stripped.
func (a *Authenticator) Authorize(credential string) (string, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return "", ErrMissingCredential
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidCredential
	}
	return claims.UserID, nil
}

// CredentialFromRequest reads the Authorization header, falling back to the
// token query parameter for websocket clients that cannot set headers.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return h
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects requests without a valid credential and stores the
// caller's user id in the request context.
func (a *Authenticator) Middleware(onError func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := a.Authorize(r.Header.Get("Authorization"))
			if err != nil {
				onError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserKey, userID)
}

// UserFromContext returns the authenticated user id, or "" if none.
func UserFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserKey).(string)
	return userID
}
