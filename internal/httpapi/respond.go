// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Client-facing messages produced by the HTTP layer itself.
const (
	msgInvalidBody    = "Invalid request body"
	msgInternalError  = "Internal server error"
	msgSignoutSuccess = "Logout successful"
)

type errorBody struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message, StatusCode: status, Status: "error"})
}

var errEmptyBody = errors.New("empty request body")

// decodeJSON reads a single JSON object from the body, capped at limit bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err //nolint:wrapcheck // caller maps every decode failure to 400
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}
