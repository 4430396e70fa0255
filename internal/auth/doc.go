// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

// Package auth implements account registration, sign-in, session
// resolution and password reset for Hubbub.
//
// # Gateways
//
// The Service talks to the outside world only through small interfaces:
//   - StoreGateway - durable accounts and profiles (source of truth)
//   - CacheGateway - hydrated profiles keyed by account id; failures are absorbed
//   - JobDispatcher - fire-and-forget background work
//   - ImageHost - avatar uploads
//
// # Errors
//
// Every client-facing failure is an *Error with a Kind that maps to an HTTP
// status. Anything else returned by the Service is internal and must be
// rendered as a generic 500 by the transport.
//
// # Validation
//
// Form rules live in YAML documents under schemas/. Validate is fail-fast and
// reports exactly one message for the first offending field.
package auth
