// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

//go:build integration

package auth_test

import (
	"context"
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/hubbub-social/hubbub/internal/auth"
)

const avatarPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

var _ = Describe("Account lifecycle", Ordered, func() {
	var (
		ctx       context.Context
		accountID string
	)

	BeforeAll(func() {
		ctx = context.Background()
	})

	It("signs up and persists the account through the job queue", func() {
		res, err := env.service.SignUp(ctx, auth.SignUpInput{
			Username:    "alice",
			Email:       "alice@example.com",
			Password:    "s3cret",
			AvatarColor: "#ff8800",
			AvatarImage: avatarPNG,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Token).NotTo(BeEmpty())
		Expect(res.User.ProfilePicture).To(HavePrefix("https://cdn.test/avatars/"))
		accountID = res.User.AccountID

		Eventually(func() error {
			_, err := env.store.GetAuthUserByUsername(ctx, "alice")
			return err
		}).WithTimeout(10 * time.Second).Should(Succeed())

		Eventually(func() error {
			_, err := env.store.GetUserByID(ctx, accountID)
			return err
		}).WithTimeout(10 * time.Second).Should(Succeed())
	})

	It("rejects a second sign-up with the same username", func() {
		_, err := env.service.SignUp(ctx, auth.SignUpInput{
			Username:    "ALICE",
			Email:       "other@example.com",
			Password:    "s3cret",
			AvatarColor: "#000000",
			AvatarImage: avatarPNG,
		})
		authErr, ok := auth.AsError(err)
		Expect(ok).To(BeTrue())
		Expect(authErr.Kind).To(Equal(auth.KindAuth))
		Expect(authErr.Message).To(Equal(auth.MsgInvalidUserCredentials))
	})

	It("signs in and resolves the session", func() {
		res, err := env.service.SignIn(ctx, auth.SignInInput{Username: "alice", Password: "s3cret"})
		Expect(err).NotTo(HaveOccurred())

		claims, err := env.tokens.ParseSessionToken(res.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.AccountID).To(Equal(accountID))

		current, err := env.service.CurrentUser(ctx, res.Token, claims)
		Expect(err).NotTo(HaveOccurred())
		Expect(current.IsUser).To(BeTrue())
		Expect(current.User.Username).To(Equal("alice"))
	})

	It("resets the password with the emailed token", func() {
		_, err := env.service.RequestPasswordReset(ctx, auth.ForgotPasswordInput{Email: "alice@example.com"})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() []auth.EmailJob {
			return env.mailer.byTemplate(auth.TemplateForgotPassword)
		}).WithTimeout(10 * time.Second).Should(HaveLen(1))
		link := env.mailer.byTemplate(auth.TemplateForgotPassword)[0].Data["resetLink"]

		parsed, err := url.Parse(link)
		Expect(err).NotTo(HaveOccurred())
		token := parsed.Query().Get("token")
		Expect(token).NotTo(BeEmpty())

		_, err = env.service.ConfirmPasswordReset(ctx,
			auth.ResetPasswordInput{Password: "n3wpass", ConfirmPassword: "n3wpass"},
			token, auth.RequestMeta{IPAddress: "203.0.113.7"})
		Expect(err).NotTo(HaveOccurred())

		_, err = env.service.SignIn(ctx, auth.SignInInput{Username: "alice", Password: "s3cret"})
		Expect(err).To(HaveOccurred())

		_, err = env.service.SignIn(ctx, auth.SignInInput{Username: "alice", Password: "n3wpass"})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() []auth.EmailJob {
			return env.mailer.byTemplate(auth.TemplateResetPassword)
		}).WithTimeout(10 * time.Second).Should(HaveLen(1))
	})

	It("does not accept a reset token twice", func() {
		link := env.mailer.byTemplate(auth.TemplateForgotPassword)[0].Data["resetLink"]
		parsed, err := url.Parse(link)
		Expect(err).NotTo(HaveOccurred())

		_, err = env.service.ConfirmPasswordReset(ctx,
			auth.ResetPasswordInput{Password: "again1", ConfirmPassword: "again1"},
			parsed.Query().Get("token"), auth.RequestMeta{})
		Expect(err).To(HaveOccurred())
	})

	It("lets only one of two concurrent confirms consume a token", func() {
		_, err := env.service.RequestPasswordReset(ctx, auth.ForgotPasswordInput{Email: "alice@example.com"})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() []auth.EmailJob {
			return env.mailer.byTemplate(auth.TemplateForgotPassword)
		}).WithTimeout(10 * time.Second).Should(HaveLen(2))
		parsed, err := url.Parse(env.mailer.byTemplate(auth.TemplateForgotPassword)[1].Data["resetLink"])
		Expect(err).NotTo(HaveOccurred())
		token := parsed.Query().Get("token")

		passwords := []string{"racer1", "racer2"}
		errs := make([]error, len(passwords))
		var wg sync.WaitGroup
		for i, password := range passwords {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, errs[i] = env.service.ConfirmPasswordReset(ctx,
					auth.ResetPasswordInput{Password: password, ConfirmPassword: password},
					token, auth.RequestMeta{})
			}()
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			authErr, ok := auth.AsError(err)
			Expect(ok).To(BeTrue())
			Expect(authErr.Message).To(Equal(auth.MsgResetTokenInvalid))
		}
		Expect(winners).To(Equal(1))

		Eventually(func() []auth.EmailJob {
			return env.mailer.byTemplate(auth.TemplateResetPassword)
		}).WithTimeout(10 * time.Second).Should(HaveLen(2))
		Consistently(func() []auth.EmailJob {
			return env.mailer.byTemplate(auth.TemplateResetPassword)
		}).WithDuration(time.Second).Should(HaveLen(2))
	})
})
