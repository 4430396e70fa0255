// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hubbub-social/hubbub/internal/auth"
)

type cookieJar struct {
	name   string
	secure bool
	maxAge time.Duration
}

func (c cookieJar) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieJar) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type sessionKey struct{}

type sessionValue struct {
	token  string
	claims *auth.SessionClaims
}

// sessionFrom returns the verified session token and claims, if any.
func sessionFrom(ctx context.Context) (string, *auth.SessionClaims) {
	v, ok := ctx.Value(sessionKey{}).(sessionValue)
	if !ok {
		return "", nil
	}
	return v.token, v.claims
}

// session decodes the session cookie when present. Requests without a
// valid session pass through anonymously.
func session(parser SessionParser, cookies cookieJar, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookies.name)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := parser.ParseSessionToken(c.Value)
			if err != nil {
				logger.DebugContext(r.Context(), "ignoring invalid session cookie", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey{}, sessionValue{token: c.Value, claims: claims})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
