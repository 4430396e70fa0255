// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Client-facing messages.
const (
	MsgUserCreated            = "User created successfully"
	MsgUserLoggedIn           = "User login successfully"
	MsgResetEmailSent         = "Password reset email sent."
	MsgPasswordUpdated        = "Password successfully updated."
	MsgInvalidCredentials     = "Invalid credentials"
	MsgInvalidUserCredentials = "Invalid credentials for this user"
	MsgResetTokenInvalid      = "Reset token has expired or invalid."
	MsgFileUploadFailed       = "File upload: Error occurred. Try again."
)

// dummyPasswordHash is verified when a user doesn't exist so that unknown
// usernames take as long as wrong passwords.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// userLoadTimeout bounds a shared current-user store read.
const userLoadTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/hubbub-social/hubbub/internal/auth")

// Recorder receives operational events from the service.
type Recorder interface {
	AuthOperation(operation, outcome string)
	CacheLookup(result string)
	EnqueueFailure(queue, job string)
}

type noopRecorder struct{}

func (noopRecorder) AuthOperation(string, string)  {}
func (noopRecorder) CacheLookup(string)            {}
func (noopRecorder) EnqueueFailure(string, string) {}

// Deps holds the collaborators of a Service.
type Deps struct {
	Store  StoreGateway
	Cache  CacheGateway
	Jobs   JobDispatcher
	Images ImageHost
	Tokens *TokenIssuer
	Hasher PasswordHasher

	// Optional.
	Schemas   *Schemas
	Logger    *slog.Logger
	Metrics   Recorder
	ClientURL string
	Now       func() time.Time
}

// Service coordinates sign-up, sign-in, current-user resolution and
// password reset over the gateways.
type Service struct {
	store     StoreGateway
	cache     CacheGateway
	jobs      JobDispatcher
	images    ImageHost
	tokens    *TokenIssuer
	hasher    PasswordHasher
	schemas   *Schemas
	logger    *slog.Logger
	metrics   Recorder
	clientURL string
	now       func() time.Time

	userLoads singleflight.Group
}

// NewService creates a Service. Store, Cache, Jobs, Images, Tokens and Hasher
// are required.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("store gateway is required")
	case deps.Cache == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("cache gateway is required")
	case deps.Jobs == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("job dispatcher is required")
	case deps.Images == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("image host is required")
	case deps.Tokens == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("token issuer is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}

	s := &Service{
		store:     deps.Store,
		cache:     deps.Cache,
		jobs:      deps.Jobs,
		images:    deps.Images,
		tokens:    deps.Tokens,
		hasher:    deps.Hasher,
		schemas:   deps.Schemas,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		clientURL: strings.TrimRight(deps.ClientURL, "/"),
		now:       deps.Now,
	}
	if s.schemas == nil {
		schemas, err := DefaultSchemas()
		if err != nil {
			return nil, err
		}
		s.schemas = schemas
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// SignUpInput is the sign-up form.
type SignUpInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AvatarColor string `json:"avatarColor"`
	AvatarImage string `json:"avatarImage"`
}

func (in SignUpInput) fields() map[string]string {
	return map[string]string{
		"username":    in.Username,
		"email":       in.Email,
		"password":    in.Password,
		"avatarColor": in.AvatarColor,
		"avatarImage": in.AvatarImage,
	}
}

// SignInInput is the sign-in form.
type SignInInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (in SignInInput) fields() map[string]string {
	return map[string]string{"username": in.Username, "password": in.Password}
}

// ForgotPasswordInput is the password reset request form.
type ForgotPasswordInput struct {
	Email string `json:"email"`
}

// ResetPasswordInput is the password reset confirmation form.
type ResetPasswordInput struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (in ResetPasswordInput) fields() map[string]string {
	return map[string]string{"password": in.Password, "confirmPassword": in.ConfirmPassword}
}

// RequestMeta describes the client that issued a request.
type RequestMeta struct {
	IPAddress string
}

// SignUpResult is returned by SignUp.
type SignUpResult struct {
	Message string       `json:"message"`
	User    *UserProfile `json:"user"`
	Token   string       `json:"token"`
}

// SignInResult is returned by SignIn.
type SignInResult struct {
	Message string       `json:"message"`
	User    *AuthAccount `json:"user"`
	Token   string       `json:"token"`
}

// CurrentUserResult is returned by CurrentUser. Token and User are nil when
// there is no resolvable session.
type CurrentUserResult struct {
	Token  *string      `json:"token"`
	IsUser bool         `json:"isUser"`
	User   *UserProfile `json:"user"`
}

// MessageResult carries a single confirmation message.
type MessageResult struct {
	Message string `json:"message"`
}

// SignUp registers a new user. The cache write is synchronous; durable
// persistence of the account and profile is handed to the job queue.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (result *SignUpResult, err error) {
	ctx, done := s.begin(ctx, "signup")
	defer func() { done(err) }()

	if err := Validate(in.fields(), s.schemas.SignUp); err != nil {
		return nil, err
	}

	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)

	existing, err := s.store.GetUserByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil && existing != nil:
		return nil, NewAuthError(MsgInvalidUserCredentials)
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, NewDependencyError(err)
	}

	accountID := ulid.Make()
	pictureURL, err := s.images.Upload(ctx, in.AvatarImage, accountID.String())
	if errors.Is(err, ErrInvalidImage) {
		return nil, &Error{Kind: KindValidation, Message: MsgFileUploadFailed, Err: err}
	}
	if err != nil {
		return nil, NewDependencyError(err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := NewAuthAccount(accountID, username, email, passwordHash, in.AvatarColor, s.now())
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "build account").Wrap(err)
	}
	profile := NewUserProfile(account, pictureURL)

	token, err := s.tokens.IssueSessionToken(account)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "issue session token").Wrap(err)
	}

	if err := s.cache.SaveToUserCache(ctx, profile.AccountID, account.Username, profile); err != nil {
		s.metrics.CacheLookup("write_error")
		s.logger.WarnContext(ctx, "user cache write failed, durable store remains authoritative",
			"account_id", profile.AccountID,
			"error", err,
		)
	}

	s.enqueue(ctx, QueueAuth, JobPersistAuthAccount, NewAccountRecord(account))
	s.enqueue(ctx, QueueUser, JobPersistUserProfile, profile)

	return &SignUpResult{Message: MsgUserCreated, User: profile, Token: token}, nil
}

// SignIn verifies credentials and issues a session token. Unknown usernames
// and wrong passwords produce the same error.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (result *SignInResult, err error) {
	ctx, done := s.begin(ctx, "signin")
	defer func() { done(err) }()

	if err := Validate(in.fields(), s.schemas.SignIn); err != nil {
		return nil, err
	}

	account, err := s.store.GetAuthUserByUsername(ctx, NormalizeUsername(in.Username))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, NewDependencyError(err)
		}
		_, _ = s.hasher.Verify(in.Password, dummyPasswordHash) //nolint:errcheck // timing parity only
		return nil, NewAuthError(MsgInvalidCredentials)
	}

	valid, err := s.hasher.Verify(in.Password, account.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	if !valid {
		return nil, NewAuthError(MsgInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, in.Password)
	}

	token, err := s.tokens.IssueSessionToken(account)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue session token").Wrap(err)
	}

	return &SignInResult{Message: MsgUserLoggedIn, User: account, Token: token}, nil
}

// upgradeHash re-hashes a legacy password with argon2id. Failures are logged;
// the sign-in still succeeds.
func (s *Service) upgradeHash(ctx context.Context, account *AuthAccount, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "account_id", account.ID.String(), "error", err)
		return
	}
	if err := s.store.UpdatePassword(ctx, account.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade not persisted", "account_id", account.ID.String(), "error", err)
		return
	}
	account.PasswordHash = newHash
}

// CurrentUser resolves the user behind a session. A missing session, or one
// whose account can no longer be found, is a normal unauthenticated result.
func (s *Service) CurrentUser(ctx context.Context, token string, claims *SessionClaims) (result *CurrentUserResult, err error) {
	ctx, done := s.begin(ctx, "currentuser")
	defer func() { done(err) }()

	anonymous := &CurrentUserResult{}
	if token == "" || claims == nil || claims.AccountID == "" {
		return anonymous, nil
	}

	user, err := s.resolveUser(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return anonymous, nil
		}
		return nil, NewDependencyError(err)
	}
	if user.IsZero() {
		return anonymous, nil
	}

	return &CurrentUserResult{Token: &token, IsUser: true, User: user}, nil
}

// resolveUser reads through the cache to the durable store. Concurrent
// misses for the same account share one store read, and the result is
// written back to the cache.
func (s *Service) resolveUser(ctx context.Context, accountID string) (*UserProfile, error) {
	cached, err := s.cache.GetUserFromCache(ctx, accountID)
	switch {
	case err != nil:
		s.metrics.CacheLookup("error")
		s.logger.WarnContext(ctx, "user cache read failed, falling back to store",
			"account_id", accountID,
			"error", err,
		)
	case !cached.IsZero():
		s.metrics.CacheLookup("hit")
		return cached, nil
	default:
		s.metrics.CacheLookup("miss")
	}

	// The shared read outlives any single caller; each waiter gives up only
	// when its own context ends.
	loads := s.userLoads.DoChan(accountID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), userLoadTimeout)
		defer cancel()

		profile, err := s.store.GetUserByID(loadCtx, accountID)
		if err != nil {
			return nil, err
		}
		if !profile.IsZero() {
			if err := s.cache.SaveToUserCache(loadCtx, accountID, profile.Username, profile); err != nil {
				s.logger.WarnContext(ctx, "user cache backfill failed", "account_id", accountID, "error", err)
			}
		}
		return profile, nil
	})

	select {
	case <-ctx.Done():
		return nil, oops.Code("USER_LOAD_ABANDONED").With("account_id", accountID).Wrap(ctx.Err())
	case res := <-loads:
		if res.Err != nil {
			return nil, res.Err
		}
		profile, _ := res.Val.(*UserProfile)
		return profile, nil
	}
}

// RequestPasswordReset stores a reset token for the account that owns the
// email and queues the reset email. The token is written synchronously so
// the confirm step can find it immediately.
func (s *Service) RequestPasswordReset(ctx context.Context, in ForgotPasswordInput) (result *MessageResult, err error) {
	ctx, done := s.begin(ctx, "forgot_password")
	defer func() { done(err) }()

	if err := Validate(map[string]string{"email": in.Email}, s.schemas.ForgotPassword); err != nil {
		return nil, err
	}

	account, err := s.store.GetAuthUserByEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewAuthError(MsgInvalidCredentials)
		}
		return nil, NewDependencyError(err)
	}

	token, tokenHash, expires, err := IssuePasswordResetToken(s.now())
	if err != nil {
		return nil, oops.Code("RESET_REQUEST_FAILED").With("operation", "issue reset token").Wrap(err)
	}

	if err := s.store.UpdatePasswordToken(ctx, account.ID, tokenHash, expires); err != nil {
		return nil, NewDependencyError(err)
	}

	s.enqueue(ctx, QueueEmail, JobForgotPasswordEmail, EmailJob{
		ReceiverEmail: account.Email,
		Subject:       "Reset your password",
		Template:      TemplateForgotPassword,
		Data: map[string]string{
			"username":  account.Username,
			"resetLink": s.clientURL + "/reset-password?token=" + token,
		},
	})

	return &MessageResult{Message: MsgResetEmailSent}, nil
}

// ConfirmPasswordReset sets a new password for the account holding a live
// reset token, clears the token and queues a confirmation email.
func (s *Service) ConfirmPasswordReset(ctx context.Context, in ResetPasswordInput, routeToken string, meta RequestMeta) (result *MessageResult, err error) {
	ctx, done := s.begin(ctx, "reset_password")
	defer func() { done(err) }()

	if err := Validate(in.fields(), s.schemas.ResetPassword); err != nil {
		return nil, err
	}

	invalid := &Error{Kind: KindAuth, Message: MsgResetTokenInvalid, Err: NewNotFoundError("password reset token not found")}
	if routeToken == "" {
		return nil, invalid
	}

	now := s.now()
	tokenHash := HashResetToken(routeToken)
	if _, err := s.store.GetAuthUserByPasswordToken(ctx, tokenHash, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalid
		}
		return nil, NewDependencyError(err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	// A concurrent confirm may have consumed the token since the lookup.
	account, err := s.store.ConsumePasswordToken(ctx, tokenHash, passwordHash, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalid
		}
		return nil, NewDependencyError(err)
	}

	s.enqueue(ctx, QueueEmail, JobResetPasswordEmail, EmailJob{
		ReceiverEmail: account.Email,
		Subject:       "Password Reset Confirmation",
		Template:      TemplateResetPassword,
		Data: map[string]string{
			"username":  account.Username,
			"email":     account.Email,
			"ipaddress": meta.IPAddress,
			"date":      now.UTC().Format("2006-01-02 15:04 MST"),
		},
	})

	return &MessageResult{Message: MsgPasswordUpdated}, nil
}

// enqueue dispatches a job. Failures are logged and counted but never
// reach the client.
func (s *Service) enqueue(ctx context.Context, queue, job string, payload any) {
	if err := s.jobs.Enqueue(ctx, queue, job, payload); err != nil {
		s.metrics.EnqueueFailure(queue, job)
		s.logger.ErrorContext(ctx, "job enqueue failed",
			"queue", queue,
			"job", job,
			"error", err,
		)
	}
}

// begin starts a span for an operation and returns a completion func that
// records the outcome.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "auth."+operation, trace.WithAttributes(attribute.String("auth.operation", operation)))
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			if authErr, ok := AsError(err); ok {
				outcome = authErr.Kind.String()
			}
			if outcome == "error" || outcome == KindDependency.String() {
				span.RecordError(err)
				span.SetStatus(codes.Error, outcome)
			}
		}
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		span.End()
		s.metrics.AuthOperation(operation, outcome)
	}
}
