// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

// Queue names.
const (
	QueueAuth  = "auth"
	QueueUser  = "user"
	QueueEmail = "email"
)

// Job names.
const (
	JobPersistAuthAccount  = "persist_auth_account"
	JobPersistUserProfile  = "persist_user_profile"
	JobForgotPasswordEmail = "forgot_password_email"
	JobResetPasswordEmail  = "reset_password_email"
)

// Email templates referenced by email jobs.
const (
	TemplateForgotPassword = "forgot-password"
	TemplateResetPassword  = "reset-password-confirmation"
)

// AccountRecord is the queue payload for persisting an AuthAccount.
// Unlike AuthAccount it serializes the password hash, since the payload
// only travels between the API and workers.
type AccountRecord struct {
	AuthAccount
	PasswordHash string `json:"passwordHash"`
}

// NewAccountRecord wraps an account for the persistence queue.
func NewAccountRecord(account *AuthAccount) AccountRecord {
	return AccountRecord{AuthAccount: *account, PasswordHash: account.PasswordHash}
}

// Account returns the AuthAccount carried by the record.
func (r AccountRecord) Account() *AuthAccount {
	account := r.AuthAccount
	account.PasswordHash = r.PasswordHash
	return &account
}

// EmailJob is the queue payload for an outgoing email.
type EmailJob struct {
	ReceiverEmail string            `json:"receiverEmail"`
	Subject       string            `json:"subject"`
	Template      string            `json:"template"`
	Data          map[string]string `json:"data"`
}
