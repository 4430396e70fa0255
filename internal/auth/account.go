// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AuthAccount is the durable credential record for a user.
type AuthAccount struct {
	ID          ulid.ULID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	AvatarColor string    `json:"avatarColor"`
	CreatedAt   time.Time `json:"createdAt"`

	// PasswordHash is an argon2id PHC string (bcrypt for legacy rows).
	PasswordHash string `json:"-"`

	// PasswordResetToken is the SHA-256 hex of the emailed reset token.
	PasswordResetToken   string     `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`
}

// NewAuthAccount creates an AuthAccount. The username is normalized and the
// email lower-cased.
func NewAuthAccount(id ulid.ULID, username, email, passwordHash, avatarColor string, now time.Time) (*AuthAccount, error) {
	if id == (ulid.ULID{}) {
		return nil, oops.Code("AUTH_INVALID_ID").Errorf("account id cannot be zero")
	}
	username = NormalizeUsername(username)
	if username == "" {
		return nil, oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &AuthAccount{
		ID:           id,
		Username:     username,
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		AvatarColor:  avatarColor,
		CreatedAt:    now.UTC(),
	}, nil
}

// NotificationSettings controls which events notify the user.
type NotificationSettings struct {
	Messages  bool `json:"messages"`
	Reactions bool `json:"reactions"`
	Comments  bool `json:"comments"`
	Follows   bool `json:"follows"`
}

// SocialLinks holds optional external profile links.
type SocialLinks struct {
	Facebook  string `json:"facebook"`
	Instagram string `json:"instagram"`
	Twitter   string `json:"twitter"`
	Youtube   string `json:"youtube"`
}

// UserProfile is the public, denormalized view of a user.
// The same projection is stored in the user cache.
type UserProfile struct {
	AccountID      string               `json:"id"`
	Username       string               `json:"username"`
	Email          string               `json:"email"`
	AvatarColor    string               `json:"avatarColor"`
	ProfilePicture string               `json:"profilePicture"`
	PostsCount     int                  `json:"postsCount"`
	FollowersCount int                  `json:"followersCount"`
	FollowingCount int                  `json:"followingCount"`
	Quote          string               `json:"quote"`
	Work           string               `json:"work"`
	School         string               `json:"school"`
	Location       string               `json:"location"`
	Notifications  NotificationSettings `json:"notifications"`
	Social         SocialLinks          `json:"social"`
	CreatedAt      time.Time            `json:"createdAt"`
}

// NewUserProfile builds the initial profile for a freshly created account.
func NewUserProfile(account *AuthAccount, profilePicture string) *UserProfile {
	return &UserProfile{
		AccountID:      account.ID.String(),
		Username:       account.Username,
		Email:          account.Email,
		AvatarColor:    account.AvatarColor,
		ProfilePicture: profilePicture,
		Notifications: NotificationSettings{
			Messages:  true,
			Reactions: true,
			Comments:  true,
			Follows:   true,
		},
		CreatedAt: account.CreatedAt,
	}
}

// IsZero reports whether the profile carries no identity. A cached empty
// object resolves to a zero profile and is treated as absent.
func (p *UserProfile) IsZero() bool {
	return p == nil || p.AccountID == ""
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
