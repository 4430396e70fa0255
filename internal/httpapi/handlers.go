// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package httpapi

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hubbub-social/hubbub/internal/auth"
	"github.com/hubbub-social/hubbub/pkg/errutil"
)

type handlers struct {
	svc     AuthService
	logger  *slog.Logger
	cookies cookieJar
	maxBody int64
}

type signOutResponse struct {
	Message string   `json:"message"`
	User    struct{} `json:"user"`
	Token   string   `json:"token"`
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var in auth.SignUpInput
	if !h.decode(w, r, &in) {
		return
	}
	res, err := h.svc.SignUp(r.Context(), in)
	if err != nil {
		h.fail(w, r, "signup", err)
		return
	}
	h.cookies.set(w, res.Token)
	writeJSON(w, http.StatusCreated, res)
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var in auth.SignInInput
	if !h.decode(w, r, &in) {
		return
	}
	res, err := h.svc.SignIn(r.Context(), in)
	if err != nil {
		h.fail(w, r, "signin", err)
		return
	}
	h.cookies.set(w, res.Token)
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) signOut(w http.ResponseWriter, _ *http.Request) {
	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, signOutResponse{Message: msgSignoutSuccess})
}

func (h *handlers) currentUser(w http.ResponseWriter, r *http.Request) {
	token, claims := sessionFrom(r.Context())
	res, err := h.svc.CurrentUser(r.Context(), token, claims)
	if err != nil {
		h.fail(w, r, "currentuser", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in auth.ForgotPasswordInput
	if !h.decode(w, r, &in) {
		return
	}
	res, err := h.svc.RequestPasswordReset(r.Context(), in)
	if err != nil {
		h.fail(w, r, "forgot password", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in auth.ResetPasswordInput
	if !h.decode(w, r, &in) {
		return
	}
	meta := auth.RequestMeta{IPAddress: clientIP(r)}
	res, err := h.svc.ConfirmPasswordReset(r.Context(), in, chi.URLParam(r, "token"), meta)
	if err != nil {
		h.fail(w, r, "reset password", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(w, r, h.maxBody, v); err != nil {
		h.logger.DebugContext(r.Context(), "rejecting request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// fail renders err. Classified errors show their own message; backend
// failures and anything unclassified are logged with their cause.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	authErr, ok := auth.AsError(err)
	if !ok {
		errutil.LogErrorContext(r.Context(), h.logger, operation+" failed", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	if authErr.Kind == auth.KindDependency {
		errutil.LogErrorContext(r.Context(), h.logger, operation+" failed", authErr.Err)
	}
	writeError(w, authErr.StatusCode(), authErr.Message)
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
