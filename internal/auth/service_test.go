// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hubbub-social/hubbub/internal/auth"
	"github.com/hubbub-social/hubbub/internal/auth/mocks"
	"github.com/hubbub-social/hubbub/pkg/errutil"
)

// Spans wrap the caller context, so gateway calls are matched on any context.
const anyCtx = mock.Anything

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type recordedOp struct {
	operation string
	outcome   string
}

type captureRecorder struct {
	mu       sync.Mutex
	ops      []recordedOp
	lookups  []string
	failures []string
}

func (r *captureRecorder) AuthOperation(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{operation, outcome})
}

func (r *captureRecorder) CacheLookup(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, result)
}

func (r *captureRecorder) EnqueueFailure(queue, job string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, queue+"/"+job)
}

type serviceFixture struct {
	store   *mocks.MockStoreGateway
	cache   *mocks.MockCacheGateway
	jobs    *mocks.MockJobDispatcher
	images  *mocks.MockImageHost
	tokens  *auth.TokenIssuer
	hasher  auth.PasswordHasher
	metrics *captureRecorder
	logs    *bytes.Buffer
	svc     *auth.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	tokens, err := auth.NewTokenIssuer(testSecret)
	require.NoError(t, err)

	f := &serviceFixture{
		store:   mocks.NewMockStoreGateway(t),
		cache:   mocks.NewMockCacheGateway(t),
		jobs:    mocks.NewMockJobDispatcher(t),
		images:  mocks.NewMockImageHost(t),
		tokens:  tokens,
		hasher:  newTestHasher(),
		metrics: &captureRecorder{},
		logs:    &bytes.Buffer{},
	}

	f.svc, err = auth.NewService(auth.Deps{
		Store:     f.store,
		Cache:     f.cache,
		Jobs:      f.jobs,
		Images:    f.images,
		Tokens:    f.tokens,
		Hasher:    f.hasher,
		Logger:    slog.New(slog.NewJSONHandler(f.logs, nil)),
		Metrics:   f.metrics,
		ClientURL: "https://hubbub.test/",
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return f
}

func (f *serviceFixture) existingAccount(t *testing.T, username, email, password string) *auth.AuthAccount {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	account, err := auth.NewAuthAccount(ulid.Make(), username, email, hash, "#9c27b0", fixedNow.Add(-24*time.Hour))
	require.NoError(t, err)
	return account
}

func notFound(what string) error {
	return errors.Join(errors.New(what), auth.ErrNotFound)
}

func requireKind(t *testing.T, err error, kind auth.Kind, message string) *auth.Error {
	t.Helper()
	require.Error(t, err)
	authErr, ok := auth.AsError(err)
	require.True(t, ok, "expected *auth.Error, got %T: %v", err, err)
	assert.Equal(t, kind, authErr.Kind)
	if message != "" {
		assert.Equal(t, message, authErr.Message)
	}
	return authErr
}

func TestNewService_NilDependencies(t *testing.T) {
	tokens, err := auth.NewTokenIssuer(testSecret)
	require.NoError(t, err)

	full := func() auth.Deps {
		return auth.Deps{
			Store:  mocks.NewMockStoreGateway(t),
			Cache:  mocks.NewMockCacheGateway(t),
			Jobs:   mocks.NewMockJobDispatcher(t),
			Images: mocks.NewMockImageHost(t),
			Tokens: tokens,
			Hasher: newTestHasher(),
		}
	}

	tests := []struct {
		name        string
		mutate      func(*auth.Deps)
		expectError string
	}{
		{"nil store", func(d *auth.Deps) { d.Store = nil }, "store gateway is required"},
		{"nil cache", func(d *auth.Deps) { d.Cache = nil }, "cache gateway is required"},
		{"nil jobs", func(d *auth.Deps) { d.Jobs = nil }, "job dispatcher is required"},
		{"nil images", func(d *auth.Deps) { d.Images = nil }, "image host is required"},
		{"nil tokens", func(d *auth.Deps) { d.Tokens = nil }, "token issuer is required"},
		{"nil hasher", func(d *auth.Deps) { d.Hasher = nil }, "password hasher is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full()
			tt.mutate(&deps)
			svc, err := auth.NewService(deps)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_DEPS")
		})
	}

	t.Run("optional fields default", func(t *testing.T) {
		svc, err := auth.NewService(full())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestService_SignUp(t *testing.T) {
	ctx := context.Background()
	input := auth.SignUpInput{
		Username:    "yorman",
		Email:       "Yorman@Gmail.com",
		Password:    "yorpro",
		AvatarColor: "red",
		AvatarImage: "data:image/png;base64,iVBORw0KGgo=",
	}

	t.Run("creates user and enqueues persistence jobs", func(t *testing.T) {
		f := newServiceFixture(t)

		f.store.On("GetUserByUsernameOrEmail", anyCtx, "Yorman", "yorman@gmail.com").
			Return(nil, notFound("auth account")).Once()
		f.images.On("Upload", anyCtx, input.AvatarImage, mock.AnythingOfType("string")).
			Return("https://cdn.test/avatars/x.png", nil).Once()

		var cached *auth.UserProfile
		f.cache.On("SaveToUserCache", anyCtx, mock.AnythingOfType("string"), "Yorman", mock.AnythingOfType("*auth.UserProfile")).
			Run(func(args mock.Arguments) { cached = args.Get(3).(*auth.UserProfile) }).
			Return(nil).Once()

		var record auth.AccountRecord
		f.jobs.On("Enqueue", anyCtx, auth.QueueAuth, auth.JobPersistAuthAccount, mock.AnythingOfType("auth.AccountRecord")).
			Run(func(args mock.Arguments) { record = args.Get(3).(auth.AccountRecord) }).
			Return(nil).Once()
		f.jobs.On("Enqueue", anyCtx, auth.QueueUser, auth.JobPersistUserProfile, mock.AnythingOfType("*auth.UserProfile")).
			Return(nil).Once()

		res, err := f.svc.SignUp(ctx, input)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, "User created successfully", res.Message)
		assert.Equal(t, "Yorman", res.User.Username)
		assert.Equal(t, "yorman@gmail.com", res.User.Email)
		assert.Equal(t, "https://cdn.test/avatars/x.png", res.User.ProfilePicture)
		assert.True(t, res.User.Notifications.Messages)
		assert.Equal(t, fixedNow, res.User.CreatedAt)
		assert.Same(t, res.User, cached)

		claims, err := f.tokens.ParseSessionToken(res.Token)
		require.NoError(t, err)
		assert.Equal(t, res.User.AccountID, claims.AccountID)
		assert.Equal(t, "Yorman", claims.Username)

		account := record.Account()
		assert.Equal(t, res.User.AccountID, account.ID.String())
		valid, err := f.hasher.Verify("yorpro", account.PasswordHash)
		require.NoError(t, err)
		assert.True(t, valid)

		assert.Contains(t, f.metrics.ops, recordedOp{"signup", "success"})
	})

	t.Run("upload id matches account id", func(t *testing.T) {
		f := newServiceFixture(t)

		var uploadID string
		f.store.On("GetUserByUsernameOrEmail", anyCtx, "Yorman", "yorman@gmail.com").Return(nil, notFound("auth account"))
		f.images.On("Upload", anyCtx, input.AvatarImage, mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) { uploadID = args.String(2) }).
			Return("https://cdn.test/a.png", nil)
		f.cache.On("SaveToUserCache", anyCtx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.jobs.On("Enqueue", anyCtx, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		res, err := f.svc.SignUp(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, res.User.AccountID, uploadID)
	})

	t.Run("rejects taken username or email", func(t *testing.T) {
		f := newServiceFixture(t)
		existing := f.existingAccount(t, "Yorman", "other@gmail.com", "secret")
		f.store.On("GetUserByUsernameOrEmail", anyCtx, "Yorman", "yorman@gmail.com").Return(existing, nil)

		res, err := f.svc.SignUp(ctx, input)
		assert.Nil(t, res)
		requireKind(t, err, auth.KindAuth, "Invalid credentials for this user")
		assert.Contains(t, f.metrics.ops, recordedOp{"signup", "auth"})
	})

	t.Run("validation runs before any gateway call", func(t *testing.T) {
		f := newServiceFixture(t)
		bad := input
		bad.Username = "abc"

		res, err := f.svc.SignUp(ctx, bad)
		assert.Nil(t, res)
		requireKind(t, err, auth.KindValidation, "Username must be at least 4 characters")
	})

	t.Run("store failure is a dependency error", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetUserByUsernameOrEmail", anyCtx, "Yorman", "yorman@gmail.com").Return(nil, errors.New("connection refused"))

		_, err := f.svc.SignUp(ctx, input)
		authErr := requireKind(t, err, auth.KindDependency, "Service temporarily unavailable")
		assert.Equal(t, http.StatusServiceUnavailable, authErr.StatusCode())
		assert.NotContains(t, authErr.Message, "connection refused")
	})

	t.Run("upload failure aborts before persistence", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetUserByUsernameOrEmail", anyCtx, "Yorman", "yorman@gmail.com").Return(nil, notFound("auth account"))
		f.images.On("Upload", anyCtx, input.AvatarImage, mock.Anything).Return("", errors.New("bucket gone"))

		_, err := f.svc.SignUp(ctx, input)
		requireKind(t, err, auth.KindDependency, "")
		f.cache.AssertNotCalled(t, "SaveToUserCache", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("undecodable avatar is a validation error", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetUserByUsernameOrEmail", anyCtx, "Yorman", "yorman@gmail.com").Return(nil, notFound("auth account"))
		f.images.On("Upload", anyCtx, input.AvatarImage, mock.Anything).
			Return("", fmt.Errorf("decode avatar: %w", auth.ErrInvalidImage))

		_, err := f.svc.SignUp(ctx, input)
		authErr := requireKind(t, err, auth.KindValidation, "File upload: Error occurred. Try again.")
		assert.ErrorIs(t, authErr, auth.ErrInvalidImage)
		f.jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache and queue failures do not fail the request", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetUserByUsernameOrEmail", anyCtx, "Yorman", "yorman@gmail.com").Return(nil, notFound("auth account"))
		f.images.On("Upload", anyCtx, input.AvatarImage, mock.Anything).Return("https://cdn.test/a.png", nil)
		f.cache.On("SaveToUserCache", anyCtx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
		f.jobs.On("Enqueue", anyCtx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("stream unavailable")).Twice()

		res, err := f.svc.SignUp(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, "User created successfully", res.Message)

		assert.Equal(t, []string{"auth/persist_auth_account", "user/persist_user_profile"}, f.metrics.failures)
		assert.Contains(t, f.logs.String(), "job enqueue failed")
		assert.Contains(t, f.logs.String(), "user cache write failed")
	})
}

func TestService_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("returns account and session token", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		f.store.On("GetAuthUserByUsername", anyCtx, "Yorman").Return(account, nil)

		res, err := f.svc.SignIn(ctx, auth.SignInInput{Username: "YORMAN", Password: "yorpro"})
		require.NoError(t, err)
		assert.Equal(t, "User login successfully", res.Message)
		assert.Equal(t, account.ID, res.User.ID)

		claims, err := f.tokens.ParseSessionToken(res.Token)
		require.NoError(t, err)
		assert.Equal(t, account.ID.String(), claims.AccountID)

		body, err := json.Marshal(res)
		require.NoError(t, err)
		assert.NotContains(t, string(body), "argon2id")
	})

	t.Run("unknown user and wrong password are indistinguishable", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		f.store.On("GetAuthUserByUsername", anyCtx, "Yorman").Return(account, nil)
		f.store.On("GetAuthUserByUsername", anyCtx, "Nobody").Return(nil, notFound("auth account"))

		_, wrongPassword := f.svc.SignIn(ctx, auth.SignInInput{Username: "yorman", Password: "nope1"})
		_, unknownUser := f.svc.SignIn(ctx, auth.SignInInput{Username: "nobody", Password: "nope1"})

		a := requireKind(t, wrongPassword, auth.KindAuth, "Invalid credentials")
		b := requireKind(t, unknownUser, auth.KindAuth, "Invalid credentials")
		assert.Equal(t, a.StatusCode(), b.StatusCode())
	})

	t.Run("rejects invalid input without touching the store", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.SignIn(ctx, auth.SignInInput{Username: "yo", Password: "yorpro"})
		requireKind(t, err, auth.KindValidation, "Invalid username")
	})

	t.Run("corrupt stored hash is an internal error", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		account.PasswordHash = "$argon2id$garbage"
		f.store.On("GetAuthUserByUsername", anyCtx, "Yorman").Return(account, nil)

		_, err := f.svc.SignIn(ctx, auth.SignInInput{Username: "yorman", Password: "yorpro"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
		errutil.AssertErrorContext(t, err, "operation", "verify password")
		_, isClientErr := auth.AsError(err)
		assert.False(t, isClientErr)
	})

	t.Run("upgrades legacy bcrypt hash", func(t *testing.T) {
		f := newServiceFixture(t)
		legacy, err := bcrypt.GenerateFromPassword([]byte("yorpro"), bcrypt.MinCost)
		require.NoError(t, err)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		account.PasswordHash = string(legacy)

		var upgraded string
		f.store.On("GetAuthUserByUsername", anyCtx, "Yorman").Return(account, nil)
		f.store.On("UpdatePassword", anyCtx, account.ID, mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) { upgraded = args.String(2) }).
			Return(nil).Once()

		res, err := f.svc.SignIn(ctx, auth.SignInInput{Username: "yorman", Password: "yorpro"})
		require.NoError(t, err)
		assert.Contains(t, upgraded, "$argon2id$")
		assert.Equal(t, upgraded, res.User.PasswordHash)
	})

	t.Run("failed upgrade still signs in", func(t *testing.T) {
		f := newServiceFixture(t)
		legacy, err := bcrypt.GenerateFromPassword([]byte("yorpro"), bcrypt.MinCost)
		require.NoError(t, err)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		account.PasswordHash = string(legacy)

		f.store.On("GetAuthUserByUsername", anyCtx, "Yorman").Return(account, nil)
		f.store.On("UpdatePassword", anyCtx, account.ID, mock.Anything).Return(errors.New("timeout"))

		res, err := f.svc.SignIn(ctx, auth.SignInInput{Username: "yorman", Password: "yorpro"})
		require.NoError(t, err)
		assert.Equal(t, string(legacy), res.User.PasswordHash)
		assert.Contains(t, f.logs.String(), "password hash upgrade not persisted")
	})
}

func TestService_CurrentUser(t *testing.T) {
	ctx := context.Background()
	profile := &auth.UserProfile{AccountID: ulid.Make().String(), Username: "Yorman", Email: "yorman@gmail.com"}
	token := "session-token"
	claims := &auth.SessionClaims{AccountID: profile.AccountID, Username: "Yorman"}

	t.Run("no session yields anonymous result", func(t *testing.T) {
		f := newServiceFixture(t)

		res, err := f.svc.CurrentUser(ctx, "", nil)
		require.NoError(t, err)
		assert.Nil(t, res.Token)
		assert.False(t, res.IsUser)
		assert.Nil(t, res.User)

		body, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, `{"token":null,"isUser":false,"user":null}`, string(body))
	})

	t.Run("cache hit skips the store", func(t *testing.T) {
		f := newServiceFixture(t)
		f.cache.On("GetUserFromCache", anyCtx, profile.AccountID).Return(profile, nil)

		res, err := f.svc.CurrentUser(ctx, token, claims)
		require.NoError(t, err)
		require.NotNil(t, res.Token)
		assert.Equal(t, token, *res.Token)
		assert.True(t, res.IsUser)
		assert.Same(t, profile, res.User)
		assert.Equal(t, []string{"hit"}, f.metrics.lookups)
	})

	t.Run("cache miss falls back to store and backfills", func(t *testing.T) {
		f := newServiceFixture(t)
		f.cache.On("GetUserFromCache", anyCtx, profile.AccountID).Return(nil, nil)
		f.store.On("GetUserByID", anyCtx, profile.AccountID).Return(profile, nil).Once()
		f.cache.On("SaveToUserCache", anyCtx, profile.AccountID, "Yorman", profile).Return(nil).Once()

		res, err := f.svc.CurrentUser(ctx, token, claims)
		require.NoError(t, err)
		assert.True(t, res.IsUser)
		assert.Equal(t, profile.AccountID, res.User.AccountID)
		assert.Equal(t, []string{"miss"}, f.metrics.lookups)
	})

	t.Run("empty cached record is treated as a miss", func(t *testing.T) {
		f := newServiceFixture(t)
		f.cache.On("GetUserFromCache", anyCtx, profile.AccountID).Return(&auth.UserProfile{}, nil)
		f.store.On("GetUserByID", anyCtx, profile.AccountID).Return(profile, nil)
		f.cache.On("SaveToUserCache", anyCtx, profile.AccountID, "Yorman", profile).Return(nil)

		res, err := f.svc.CurrentUser(ctx, token, claims)
		require.NoError(t, err)
		assert.True(t, res.IsUser)
	})

	t.Run("cache error falls back to store", func(t *testing.T) {
		f := newServiceFixture(t)
		f.cache.On("GetUserFromCache", anyCtx, profile.AccountID).Return(nil, errors.New("redis down"))
		f.store.On("GetUserByID", anyCtx, profile.AccountID).Return(profile, nil)
		f.cache.On("SaveToUserCache", anyCtx, profile.AccountID, "Yorman", profile).Return(errors.New("redis down"))

		res, err := f.svc.CurrentUser(ctx, token, claims)
		require.NoError(t, err)
		assert.True(t, res.IsUser)
		assert.Equal(t, []string{"error"}, f.metrics.lookups)
		assert.Contains(t, f.logs.String(), "user cache backfill failed")
	})

	t.Run("unknown account yields anonymous result", func(t *testing.T) {
		f := newServiceFixture(t)
		f.cache.On("GetUserFromCache", anyCtx, profile.AccountID).Return(nil, nil)
		f.store.On("GetUserByID", anyCtx, profile.AccountID).Return(nil, notFound("user profile"))

		res, err := f.svc.CurrentUser(ctx, token, claims)
		require.NoError(t, err)
		assert.False(t, res.IsUser)
		assert.Nil(t, res.Token)
	})

	t.Run("store failure is a dependency error", func(t *testing.T) {
		f := newServiceFixture(t)
		f.cache.On("GetUserFromCache", anyCtx, profile.AccountID).Return(nil, nil)
		f.store.On("GetUserByID", anyCtx, profile.AccountID).Return(nil, errors.New("pool closed"))

		res, err := f.svc.CurrentUser(ctx, token, claims)
		assert.Nil(t, res)
		requireKind(t, err, auth.KindDependency, "")
	})

	t.Run("concurrent misses resolve to the same user", func(t *testing.T) {
		f := newServiceFixture(t)
		f.cache.On("GetUserFromCache", anyCtx, profile.AccountID).Return(nil, nil)
		f.store.On("GetUserByID", anyCtx, profile.AccountID).Return(profile, nil)
		f.cache.On("SaveToUserCache", anyCtx, profile.AccountID, "Yorman", profile).Return(nil)

		var wg sync.WaitGroup
		results := make([]*auth.CurrentUserResult, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := f.svc.CurrentUser(ctx, token, claims)
				assert.NoError(t, err)
				results[i] = res
			}(i)
		}
		wg.Wait()

		for _, res := range results {
			require.NotNil(t, res)
			assert.Equal(t, profile.AccountID, res.User.AccountID)
		}
	})

	t.Run("cancelled caller does not fail others sharing the store read", func(t *testing.T) {
		f := newServiceFixture(t)
		f.cache.On("GetUserFromCache", anyCtx, profile.AccountID).Return(nil, nil)
		f.cache.On("SaveToUserCache", anyCtx, profile.AccountID, "Yorman", profile).Return(nil)

		store := &blockingProfileStore{
			MockStoreGateway: f.store,
			profile:          profile,
			started:          make(chan struct{}),
			release:          make(chan struct{}),
		}
		svc, err := auth.NewService(auth.Deps{
			Store:  store,
			Cache:  f.cache,
			Jobs:   f.jobs,
			Images: f.images,
			Tokens: f.tokens,
			Hasher: f.hasher,
			Logger: slog.New(slog.NewJSONHandler(f.logs, nil)),
			Now:    func() time.Time { return fixedNow },
		})
		require.NoError(t, err)

		first, cancelFirst := context.WithCancel(ctx)
		firstDone := make(chan error, 1)
		go func() {
			_, err := svc.CurrentUser(first, token, claims)
			firstDone <- err
		}()
		<-store.started

		secondDone := make(chan *auth.CurrentUserResult, 1)
		go func() {
			res, err := svc.CurrentUser(ctx, token, claims)
			assert.NoError(t, err)
			secondDone <- res
		}()
		// Let the second caller join the in-flight read.
		time.Sleep(50 * time.Millisecond)

		cancelFirst()
		requireKind(t, <-firstDone, auth.KindDependency, "")

		close(store.release)
		res := <-secondDone
		require.NotNil(t, res)
		assert.True(t, res.IsUser)
		assert.Equal(t, profile.AccountID, res.User.AccountID)
		assert.Equal(t, int32(1), store.calls.Load())
	})
}

// blockingProfileStore holds GetUserByID open until released or until the
// read's context ends.
type blockingProfileStore struct {
	*mocks.MockStoreGateway
	profile *auth.UserProfile
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *blockingProfileStore) GetUserByID(ctx context.Context, _ string) (*auth.UserProfile, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	select {
	case <-s.release:
		return s.profile, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestService_RequestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("stores token hash and enqueues email", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		f.store.On("GetAuthUserByEmail", anyCtx, "yorman@gmail.com").Return(account, nil)

		var storedHash string
		f.store.On("UpdatePasswordToken", anyCtx, account.ID, mock.AnythingOfType("string"), fixedNow.Add(auth.ResetTokenExpiry)).
			Run(func(args mock.Arguments) { storedHash = args.String(2) }).
			Return(nil).Once()

		var email auth.EmailJob
		f.jobs.On("Enqueue", anyCtx, auth.QueueEmail, auth.JobForgotPasswordEmail, mock.AnythingOfType("auth.EmailJob")).
			Run(func(args mock.Arguments) { email = args.Get(3).(auth.EmailJob) }).
			Return(nil).Once()

		res, err := f.svc.RequestPasswordReset(ctx, auth.ForgotPasswordInput{Email: " Yorman@Gmail.com "})
		require.NoError(t, err)
		assert.Equal(t, "Password reset email sent.", res.Message)

		assert.Equal(t, "yorman@gmail.com", email.ReceiverEmail)
		assert.Equal(t, auth.TemplateForgotPassword, email.Template)
		assert.Equal(t, "Yorman", email.Data["username"])

		link := email.Data["resetLink"]
		require.Contains(t, link, "https://hubbub.test/reset-password?token=")
		token := link[len("https://hubbub.test/reset-password?token="):]
		assert.Equal(t, auth.HashResetToken(token), storedHash)
		assert.NotEqual(t, token, storedHash)
	})

	t.Run("unknown email is a generic auth error", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetAuthUserByEmail", anyCtx, "ghost@gmail.com").Return(nil, notFound("auth account"))

		_, err := f.svc.RequestPasswordReset(ctx, auth.ForgotPasswordInput{Email: "ghost@gmail.com"})
		requireKind(t, err, auth.KindAuth, "Invalid credentials")
	})

	t.Run("malformed email fails validation", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.RequestPasswordReset(ctx, auth.ForgotPasswordInput{Email: "not-an-email"})
		requireKind(t, err, auth.KindValidation, "")
	})

	t.Run("token write failure is a dependency error", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		f.store.On("GetAuthUserByEmail", anyCtx, "yorman@gmail.com").Return(account, nil)
		f.store.On("UpdatePasswordToken", anyCtx, account.ID, mock.Anything, mock.Anything).Return(errors.New("deadlock"))

		_, err := f.svc.RequestPasswordReset(ctx, auth.ForgotPasswordInput{Email: "yorman@gmail.com"})
		requireKind(t, err, auth.KindDependency, "")
	})
}

func TestService_ConfirmPasswordReset(t *testing.T) {
	ctx := context.Background()
	meta := auth.RequestMeta{IPAddress: "203.0.113.7"}
	input := auth.ResetPasswordInput{Password: "newpass", ConfirmPassword: "newpass"}

	t.Run("updates password and enqueues confirmation", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")

		f.store.On("GetAuthUserByPasswordToken", anyCtx, auth.HashResetToken("route-token"), fixedNow).Return(account, nil)

		var newHash string
		f.store.On("ConsumePasswordToken", anyCtx, auth.HashResetToken("route-token"), mock.AnythingOfType("string"), fixedNow).
			Run(func(args mock.Arguments) { newHash = args.String(2) }).
			Return(account, nil).Once()

		var email auth.EmailJob
		f.jobs.On("Enqueue", anyCtx, auth.QueueEmail, auth.JobResetPasswordEmail, mock.AnythingOfType("auth.EmailJob")).
			Run(func(args mock.Arguments) { email = args.Get(3).(auth.EmailJob) }).
			Return(nil).Once()

		res, err := f.svc.ConfirmPasswordReset(ctx, input, "route-token", meta)
		require.NoError(t, err)
		assert.Equal(t, "Password successfully updated.", res.Message)

		valid, err := f.hasher.Verify("newpass", newHash)
		require.NoError(t, err)
		assert.True(t, valid)

		assert.Equal(t, auth.TemplateResetPassword, email.Template)
		assert.Equal(t, "203.0.113.7", email.Data["ipaddress"])
		assert.Equal(t, "yorman@gmail.com", email.Data["email"])
		assert.NotEmpty(t, email.Data["date"])
	})

	t.Run("mismatched confirmation fails before store access", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.ConfirmPasswordReset(ctx, auth.ResetPasswordInput{Password: "newpass", ConfirmPassword: "other"}, "route-token", meta)
		requireKind(t, err, auth.KindValidation, "Passwords should match")
	})

	t.Run("expired or unknown token", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetAuthUserByPasswordToken", anyCtx, auth.HashResetToken("stale"), fixedNow).Return(nil, notFound("reset token"))

		_, err := f.svc.ConfirmPasswordReset(ctx, input, "stale", meta)
		authErr := requireKind(t, err, auth.KindAuth, "Reset token has expired or invalid.")
		assert.Equal(t, http.StatusBadRequest, authErr.StatusCode())
	})

	t.Run("empty route token", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.ConfirmPasswordReset(ctx, input, "", meta)
		requireKind(t, err, auth.KindAuth, "Reset token has expired or invalid.")
	})

	t.Run("token consumed by a concurrent confirm", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		f.store.On("GetAuthUserByPasswordToken", anyCtx, auth.HashResetToken("route-token"), fixedNow).Return(account, nil)
		f.store.On("ConsumePasswordToken", anyCtx, auth.HashResetToken("route-token"), mock.Anything, fixedNow).
			Return(nil, notFound("reset token"))

		_, err := f.svc.ConfirmPasswordReset(ctx, input, "route-token", meta)
		requireKind(t, err, auth.KindAuth, "Reset token has expired or invalid.")
		f.jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("password write failure is a dependency error", func(t *testing.T) {
		f := newServiceFixture(t)
		account := f.existingAccount(t, "Yorman", "yorman@gmail.com", "yorpro")
		f.store.On("GetAuthUserByPasswordToken", anyCtx, auth.HashResetToken("route-token"), fixedNow).Return(account, nil)
		f.store.On("ConsumePasswordToken", anyCtx, auth.HashResetToken("route-token"), mock.Anything, fixedNow).
			Return(nil, errors.New("read only"))

		_, err := f.svc.ConfirmPasswordReset(ctx, input, "route-token", meta)
		requireKind(t, err, auth.KindDependency, "")
		f.jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
