// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

// Package httpapi exposes the auth service over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/hubbub-social/hubbub/internal/auth"
)

// AuthService is the orchestrator the handlers call.
type AuthService interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.SignUpResult, error)
	SignIn(ctx context.Context, in auth.SignInInput) (*auth.SignInResult, error)
	CurrentUser(ctx context.Context, token string, claims *auth.SessionClaims) (*auth.CurrentUserResult, error)
	RequestPasswordReset(ctx context.Context, in auth.ForgotPasswordInput) (*auth.MessageResult, error)
	ConfirmPasswordReset(ctx context.Context, in auth.ResetPasswordInput, token string, meta auth.RequestMeta) (*auth.MessageResult, error)
}

// SessionParser verifies session tokens.
type SessionParser interface {
	ParseSessionToken(token string) (*auth.SessionClaims, error)
}

// Recorder counts served requests.
type Recorder interface {
	HTTPRequest(method, route string, status int)
}

type noopRecorder struct{}

func (noopRecorder) HTTPRequest(string, string, int) {}

// Default option values.
const (
	DefaultBasePath     = "/api/v1"
	DefaultCookieName   = "session"
	DefaultCookieMaxAge = 7 * 24 * time.Hour
	DefaultMaxBodyBytes = 10 << 20
)

// Options configures the router.
type Options struct {
	Service  AuthService
	Sessions SessionParser
	Logger   *slog.Logger
	Metrics  Recorder

	BasePath       string
	CookieName     string
	CookieSecure   bool
	CookieMaxAge   time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter builds the HTTP handler for the auth API.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Service == nil {
		return nil, oops.Code("HTTP_INVALID_DEPS").Errorf("auth service is required")
	}
	if opts.Sessions == nil {
		return nil, oops.Code("HTTP_INVALID_DEPS").Errorf("session parser is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopRecorder{}
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = DefaultCookieMaxAge
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	basePath := normalizeBasePath(opts.BasePath)

	corsHandler, err := newCORS(opts.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	h := &handlers{
		svc:     opts.Service,
		logger:  opts.Logger,
		cookies: cookieJar{name: opts.CookieName, secure: opts.CookieSecure, maxAge: opts.CookieMaxAge},
		maxBody: opts.MaxBodyBytes,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger, opts.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Route(basePath, func(r chi.Router) {
		r.Post("/signup", h.signUp)
		r.Post("/signin", h.signIn)
		r.Post("/signout", h.signOut)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password/{token}", h.resetPassword)

		r.With(session(opts.Sessions, h.cookies, opts.Logger)).Get("/currentuser", h.currentUser)
	})

	return r, nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultBasePath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
