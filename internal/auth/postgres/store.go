// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

// Package postgres implements the auth store gateway on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hubbub-social/hubbub/internal/auth"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the durable auth.StoreGateway.
type Store struct {
	*AccountRepository
	*ProfileRepository
}

var _ auth.StoreGateway = (*Store)(nil)

// NewStore creates a Store backed by db.
func NewStore(db DB) *Store {
	return &Store{
		AccountRepository: NewAccountRepository(db),
		ProfileRepository: NewProfileRepository(db),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
