// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package queue

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/hubbub-social/hubbub/internal/auth"
)

// RegisterAuthJobs binds the handlers for every job the auth service
// enqueues.
func RegisterAuthJobs(r *Registry, store auth.StoreGateway, mailer Mailer) {
	r.Register(auth.QueueAuth, auth.JobPersistAuthAccount, PersistAccount(store))
	r.Register(auth.QueueUser, auth.JobPersistUserProfile, PersistProfile(store))
	r.Register(auth.QueueEmail, auth.JobForgotPasswordEmail, SendEmail(mailer))
	r.Register(auth.QueueEmail, auth.JobResetPasswordEmail, SendEmail(mailer))
}

// PersistAccount writes a signed-up account to the durable store. A
// redelivered job is a no-op in the store; a conflict with a different
// account cannot succeed on retry.
func PersistAccount(store auth.AccountStore) Handler {
	return func(ctx context.Context, env Envelope) error {
		var record auth.AccountRecord
		if err := env.Decode(&record); err != nil {
			return Permanent(err)
		}
		account := record.Account()
		if account.ID.IsZero() || account.Username == "" || account.PasswordHash == "" {
			return Permanent(oops.Code("QUEUE_PAYLOAD_INVALID").
				With("job", env.Job).
				Errorf("account record is incomplete"))
		}
		err := store.CreateAuthAccount(ctx, account)
		if errors.Is(err, auth.ErrAlreadyExists) {
			return Permanent(err)
		}
		return err
	}
}

// PersistProfile writes a signed-up user's profile to the durable store.
// Inserts are keyed on the account id alone, so a redelivered profile is a
// no-op and every store error is retryable.
func PersistProfile(store auth.ProfileStore) Handler {
	return func(ctx context.Context, env Envelope) error {
		var profile auth.UserProfile
		if err := env.Decode(&profile); err != nil {
			return Permanent(err)
		}
		if profile.AccountID == "" {
			return Permanent(oops.Code("QUEUE_PAYLOAD_INVALID").With("job", env.Job).Errorf("profile has no account id"))
		}
		return store.CreateUserProfile(ctx, &profile)
	}
}

// SendEmail delivers an email job through mailer.
func SendEmail(mailer Mailer) Handler {
	return func(ctx context.Context, env Envelope) error {
		var job auth.EmailJob
		if err := env.Decode(&job); err != nil {
			return Permanent(err)
		}
		if job.ReceiverEmail == "" || job.Template == "" {
			return Permanent(oops.Code("QUEUE_PAYLOAD_INVALID").
				With("job", env.Job).
				Errorf("email job needs a receiver and a template"))
		}
		return mailer.Send(ctx, job)
	}
}
