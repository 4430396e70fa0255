// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hubbub-social/hubbub/internal/auth"
)

const accountColumns = `id, username, email, password_hash, avatar_color,
		       password_reset_token, password_reset_expires, created_at`

// AccountRepository stores auth accounts.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateAuthAccount inserts an account. Re-inserting the same id is a no-op
// so that redelivered jobs succeed; a clash on username or email with a
// different id wraps auth.ErrAlreadyExists.
func (r *AccountRepository) CreateAuthAccount(ctx context.Context, account *auth.AuthAccount) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth_accounts (id, username, email, password_hash, avatar_color, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`,
		account.ID.String(),
		account.Username,
		account.Email,
		account.PasswordHash,
		account.AvatarColor,
		account.CreatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_CONFLICT").
			With("id", account.ID.String()).
			With("username", account.Username).
			Wrap(errors.Join(err, auth.ErrAlreadyExists))
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert auth account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetAuthUserByUsername looks up an account by username, ignoring case.
func (r *AccountRepository) GetAuthUserByUsername(ctx context.Context, username string) (*auth.AuthAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM auth_accounts
		WHERE LOWER(username) = LOWER($1)
	`, username)
	return r.one(row, "get account by username", "username", username)
}

// GetAuthUserByEmail looks up an account by email, ignoring case.
func (r *AccountRepository) GetAuthUserByEmail(ctx context.Context, email string) (*auth.AuthAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM auth_accounts
		WHERE LOWER(email) = LOWER($1)
	`, email)
	return r.one(row, "get account by email", "email", email)
}

// GetUserByUsernameOrEmail returns the first account holding either value.
func (r *AccountRepository) GetUserByUsernameOrEmail(ctx context.Context, username, email string) (*auth.AuthAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM auth_accounts
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($2)
		LIMIT 1
	`, username, email)
	return r.one(row, "get account by username or email", "username", username)
}

// GetAuthUserByPasswordToken returns the account holding tokenHash if the
// token expires after now.
func (r *AccountRepository) GetAuthUserByPasswordToken(ctx context.Context, tokenHash string, now time.Time) (*auth.AuthAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM auth_accounts
		WHERE password_reset_token = $1 AND password_reset_expires > $2
	`, tokenHash, now)
	return r.one(row, "get account by reset token", "token", "redacted")
}

// UpdatePasswordToken records a reset token hash and its expiry, replacing
// any earlier token.
func (r *AccountRepository) UpdatePasswordToken(ctx context.Context, accountID ulid.ULID, tokenHash string, expires time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE auth_accounts
		SET password_reset_token = $2, password_reset_expires = $3, updated_at = now()
		WHERE id = $1
	`, accountID.String(), tokenHash, expires)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_TOKEN_FAILED").
			With("operation", "update reset token").
			With("id", accountID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword replaces the password hash and clears the reset token so it
// cannot be used twice.
func (r *AccountRepository) UpdatePassword(ctx context.Context, accountID ulid.ULID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE auth_accounts
		SET password_hash = $2, password_reset_token = NULL, password_reset_expires = NULL, updated_at = now()
		WHERE id = $1
	`, accountID.String(), passwordHash)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", accountID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumePasswordToken replaces the password of the account holding a live
// tokenHash and clears the token in a single statement, so concurrent
// confirms with the same token cannot both succeed.
func (r *AccountRepository) ConsumePasswordToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*auth.AuthAccount, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE auth_accounts
		SET password_hash = $2, password_reset_token = NULL, password_reset_expires = NULL, updated_at = now()
		WHERE password_reset_token = $1 AND password_reset_expires > $3
		RETURNING `+accountColumns+`
	`, tokenHash, passwordHash, now)
	return r.one(row, "consume reset token", "token", "redacted")
}

func (r *AccountRepository) one(row pgx.Row, operation, key, value string) (*auth.AuthAccount, error) {
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", operation).
			With(key, value).
			Wrap(err)
	}
	return account, nil
}

// scanAccount returns pgx.ErrNoRows unwrapped.
func scanAccount(row pgx.Row) (*auth.AuthAccount, error) {
	var (
		idStr      string
		account    auth.AuthAccount
		resetToken *string
	)
	err := row.Scan(
		&idStr,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.AvatarColor,
		&resetToken,
		&account.PasswordResetExpires,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers attach context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	account.ID = id
	if resetToken != nil {
		account.PasswordResetToken = *resetToken
	}
	return &account, nil
}
