// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// CacheGateway reads and writes hydrated user records in the fast cache.
// A miss returns (nil, nil). Errors are never fatal to callers; the durable
// store is always the fallback.
type CacheGateway interface {
	// GetUserFromCache returns the cached profile for an account, or nil on miss.
	GetUserFromCache(ctx context.Context, accountID string) (*UserProfile, error)

	// SaveToUserCache upserts the cached profile for an account.
	SaveToUserCache(ctx context.Context, accountID, username string, user *UserProfile) error
}

// AccountStore manages durable credential records.
// Lookups return an error wrapping ErrNotFound when nothing matches.
type AccountStore interface {
	// GetAuthUserByUsername looks up an account by normalized username.
	GetAuthUserByUsername(ctx context.Context, username string) (*AuthAccount, error)

	// GetAuthUserByEmail looks up an account by email (case-insensitive).
	GetAuthUserByEmail(ctx context.Context, email string) (*AuthAccount, error)

	// GetUserByUsernameOrEmail returns any account holding either value.
	GetUserByUsernameOrEmail(ctx context.Context, username, email string) (*AuthAccount, error)

	// GetAuthUserByPasswordToken looks up an account by reset token hash.
	// Expired tokens are indistinguishable from unknown ones.
	GetAuthUserByPasswordToken(ctx context.Context, tokenHash string, now time.Time) (*AuthAccount, error)

	// UpdatePasswordToken stores a reset token hash and its expiry.
	UpdatePasswordToken(ctx context.Context, accountID ulid.ULID, tokenHash string, expires time.Time) error

	// UpdatePassword replaces the password hash and clears any reset token.
	UpdatePassword(ctx context.Context, accountID ulid.ULID, passwordHash string) error

	// ConsumePasswordToken sets a new password hash on the account holding a
	// live reset token and clears the token in one step. Only one caller can
	// consume a given token; the others get ErrNotFound.
	ConsumePasswordToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*AuthAccount, error)

	// CreateAuthAccount inserts a new account.
	CreateAuthAccount(ctx context.Context, account *AuthAccount) error
}

// ProfileStore manages durable user profiles.
type ProfileStore interface {
	// GetUserByID returns the profile for an account.
	GetUserByID(ctx context.Context, accountID string) (*UserProfile, error)

	// CreateUserProfile inserts a new profile.
	CreateUserProfile(ctx context.Context, profile *UserProfile) error
}

// StoreGateway is the durable source of truth for accounts and profiles.
type StoreGateway interface {
	AccountStore
	ProfileStore
}

// JobDispatcher enqueues fire-and-forget work for background workers.
// Delivery is at-least-once; callers never wait for completion.
type JobDispatcher interface {
	Enqueue(ctx context.Context, queue, job string, payload any) error
}

// ImageHost stores avatar images and returns their public URL.
type ImageHost interface {
	// Upload stores a base64 data URI under the given id.
	Upload(ctx context.Context, dataURI, id string) (string, error)
}
