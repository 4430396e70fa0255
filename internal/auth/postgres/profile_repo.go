// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/hubbub-social/hubbub/internal/auth"
)

// ProfileRepository stores user profiles.
type ProfileRepository struct {
	db DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// CreateUserProfile inserts a profile. Re-inserting the same account id is a
// no-op.
func (r *ProfileRepository) CreateUserProfile(ctx context.Context, profile *auth.UserProfile) error {
	notifications, err := json.Marshal(profile.Notifications)
	if err != nil {
		return oops.Code("PROFILE_CREATE_FAILED").With("operation", "marshal notifications").Wrap(err)
	}
	social, err := json.Marshal(profile.Social)
	if err != nil {
		return oops.Code("PROFILE_CREATE_FAILED").With("operation", "marshal social").Wrap(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_profiles (
			account_id, username, email, avatar_color, profile_picture,
			posts_count, followers_count, following_count,
			quote, work, school, location, notifications, social, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (account_id) DO NOTHING
	`,
		profile.AccountID,
		profile.Username,
		profile.Email,
		profile.AvatarColor,
		profile.ProfilePicture,
		profile.PostsCount,
		profile.FollowersCount,
		profile.FollowingCount,
		profile.Quote,
		profile.Work,
		profile.School,
		profile.Location,
		notifications,
		social,
		profile.CreatedAt,
	)
	if err != nil {
		return oops.Code("PROFILE_CREATE_FAILED").
			With("operation", "insert user profile").
			With("account_id", profile.AccountID).
			Wrap(err)
	}
	return nil
}

// GetUserByID returns the profile for accountID.
func (r *ProfileRepository) GetUserByID(ctx context.Context, accountID string) (*auth.UserProfile, error) {
	row := r.db.QueryRow(ctx, `
		SELECT account_id, username, email, avatar_color, profile_picture,
		       posts_count, followers_count, following_count,
		       quote, work, school, location, notifications, social, created_at
		FROM user_profiles
		WHERE account_id = $1
	`, accountID)

	var (
		p             auth.UserProfile
		notifications []byte
		social        []byte
	)
	err := row.Scan(
		&p.AccountID,
		&p.Username,
		&p.Email,
		&p.AvatarColor,
		&p.ProfilePicture,
		&p.PostsCount,
		&p.FollowersCount,
		&p.FollowingCount,
		&p.Quote,
		&p.Work,
		&p.School,
		&p.Location,
		&notifications,
		&social,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").With("account_id", accountID).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROFILE_QUERY_FAILED").
			With("operation", "get user profile").
			With("account_id", accountID).
			Wrap(err)
	}

	if err := json.Unmarshal(notifications, &p.Notifications); err != nil {
		return nil, oops.Code("PROFILE_CORRUPT").With("field", "notifications").With("account_id", accountID).Wrap(err)
	}
	if err := json.Unmarshal(social, &p.Social); err != nil {
		return nil, oops.Code("PROFILE_CORRUPT").With("field", "social").With("account_id", accountID).Wrap(err)
	}
	return &p, nil
}
