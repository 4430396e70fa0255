// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32        // 32 bytes = 64 hex chars
	ResetTokenExpiry = time.Hour // 1 hour expiry
)

// minSessionSecretLen is the minimum HS256 key length accepted.
const minSessionSecretLen = 32

// NormalizeUsername returns the canonical lookup form of a username:
// first letter upper-cased, remainder lower-cased.
func NormalizeUsername(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(raw)
	return string(unicode.ToUpper(first)) + strings.ToLower(raw[size:])
}

// SessionClaims is the payload carried by a session token.
type SessionClaims struct {
	AccountID   string `json:"accountId"`
	Username    string `json:"username"`
	AvatarColor string `json:"avatarColor"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses session tokens.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates a TokenIssuer using HS256 with the given secret.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if len(secret) < minSessionSecretLen {
		return nil, oops.Code("AUTH_WEAK_SECRET").
			With("min_length", minSessionSecretLen).
			Errorf("session secret must be at least %d bytes", minSessionSecretLen)
	}
	return &TokenIssuer{secret: []byte(secret)}, nil
}

// IssueSessionToken signs the session payload for an account. The token
// carries no time-based claims; its lifetime is the session cookie's.
func (i *TokenIssuer) IssueSessionToken(account *AuthAccount) (string, error) {
	claims := &SessionClaims{
		AccountID:   account.ID.String(),
		Username:    account.Username,
		AvatarColor: account.AvatarColor,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("account_id", claims.AccountID).
			Wrap(err)
	}
	return token, nil
}

// ParseSessionToken verifies a session token and returns its claims.
func (i *TokenIssuer) ParseSessionToken(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").Wrap(err)
	}
	if claims.AccountID == "" {
		return nil, oops.Code("SESSION_INVALID").Errorf("session token has no account id")
	}
	return claims, nil
}

// IssuePasswordResetToken creates a random reset token.
// The plaintext token is emailed; tokenHash is what gets stored.
func IssuePasswordResetToken(now time.Time) (token, tokenHash string, expires time.Time, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", time.Time{}, oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(buf)
	return token, HashResetToken(token), now.Add(ResetTokenExpiry), nil
}

// HashResetToken computes the SHA-256 hex digest of a reset token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
