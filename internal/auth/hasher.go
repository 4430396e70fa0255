// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Default argon2id parameters (OWASP baseline).
const (
	defaultArgon2Time    = 1
	defaultArgon2Memory  = 64 * 1024
	defaultArgon2Threads = 4
	argon2SaltLen        = 16
	argon2KeyLen         = 32
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash produces an argon2id hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be re-hashed with argon2id.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id. Hashes written by
// the previous bcrypt-based backend still verify.
type Argon2idHasher struct {
	time    uint32
	memory  uint32
	threads uint8
}

// HasherOption configures an Argon2idHasher.
type HasherOption func(*Argon2idHasher)

// WithArgon2Params overrides the argon2id cost parameters.
func WithArgon2Params(time, memoryKiB uint32, threads uint8) HasherOption {
	return func(h *Argon2idHasher) {
		h.time = time
		h.memory = memoryKiB
		h.threads = threads
	}
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher(opts ...HasherOption) *Argon2idHasher {
	h := &Argon2idHasher{
		time:    defaultArgon2Time,
		memory:  defaultArgon2Memory,
		threads: defaultArgon2Threads,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash produces an argon2id hash in PHC format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
		}
		return true, nil
	}

	params, salt, expected, err := parseArgon2idHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected))) //nolint:gosec // length bounded in parseArgon2idHash
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g., bcrypt).
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
}

func parseArgon2idHash(encoded string) (argon2Params, []byte, []byte, error) {
	var p argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").With("version", version).Errorf("unsupported argon2 version")
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &threads); err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	p.threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return p, salt, key, nil
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
