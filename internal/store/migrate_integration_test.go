// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hubbub-social/hubbub/internal/store"
)

var _ = Describe("Migrator", func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("hubbub_test"),
			postgres.WithUsername("hubbub"),
			postgres.WithPassword("hubbub"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = container.Terminate(ctx) })

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	It("applies, steps and rolls back the schema", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = migrator.Close() })

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed())
		latest, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(latest).To(Equal(uint(3)))

		pending, err := migrator.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest - 1))

		Expect(migrator.Down()).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})

	It("creates tables reachable through the pool", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err := store.OpenPool(ctx, connStr, store.PoolConfig{MaxConns: 2})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)

		var n int
		Expect(pool.QueryRow(ctx, `SELECT count(*) FROM auth_accounts`).Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
		Expect(pool.QueryRow(ctx, `SELECT count(*) FROM user_profiles`).Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})
})
