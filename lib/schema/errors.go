// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"net/http"
)

// Taxonomy errors. Every failure a caller can observe wraps exactly one
// of these; test with errors.Is.
var (
	// ErrConnection means the daemon could not be reached or returned
	// something that is not a keybridge response. Never produced by the
	// daemon itself.
	ErrConnection = errors.New("daemon connection failed")

	// ErrNoKeys means the custodian holds no keypair.
	ErrNoKeys = errors.New("no keys configured")

	// ErrConsentDenied means the human denied the request or the
	// consent deadline expired.
	ErrConsentDenied = errors.New("consent denied")

	// ErrValidation means the request was malformed.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists means a keypair is already held.
	ErrAlreadyExists = errors.New("keys already exist")

	// ErrAlreadyMigrated means the client is already in bridge mode.
	// Client-side only.
	ErrAlreadyMigrated = errors.New("already migrated")

	// ErrRateLimited means the origin exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrInternal is any other daemon-side failure.
	ErrInternal = errors.New("internal error")
)

// Wire codes carried in ErrorResponse.Code.
const (
	CodeConnection      = "connection_error"
	CodeNoKeys          = "no_keys"
	CodeConsentDenied   = "consent_denied"
	CodeValidation      = "validation_error"
	CodeAlreadyExists   = "already_exists"
	CodeAlreadyMigrated = "already_migrated"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal_error"
)

type taxonomyEntry struct {
	err    error
	code   string
	status int
}

// The first match wins in Classify.
var taxonomy = []taxonomyEntry{
	{ErrConsentDenied, CodeConsentDenied, http.StatusForbidden},
	{ErrNoKeys, CodeNoKeys, http.StatusNotFound},
	{ErrValidation, CodeValidation, http.StatusBadRequest},
	{ErrAlreadyExists, CodeAlreadyExists, http.StatusConflict},
	{ErrRateLimited, CodeRateLimited, http.StatusTooManyRequests},
	{ErrAlreadyMigrated, CodeAlreadyMigrated, http.StatusConflict},
	{ErrConnection, CodeConnection, http.StatusBadGateway},
	{ErrInternal, CodeInternal, http.StatusInternalServerError},
}

// Classify returns the wire code and HTTP status for err. Errors
// outside the taxonomy classify as internal.
func Classify(err error) (code string, status int) {
	for _, entry := range taxonomy {
		if errors.Is(err, entry.err) {
			return entry.code, entry.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// ErrorForCode returns the taxonomy sentinel for a wire code, or nil
// for an unknown code.
func ErrorForCode(code string) error {
	for _, entry := range taxonomy {
		if entry.code == code {
			return entry.err
		}
	}
	return nil
}

// ErrorForStatus returns the taxonomy sentinel a daemon response status
// maps to, for responses whose body carries no recognizable code.
// Unknown 4xx/5xx statuses map to ErrInternal; anything else the daemon
// never emits maps to ErrConnection.
func ErrorForStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusForbidden:
		return ErrConsentDenied
	case http.StatusNotFound:
		return ErrNoKeys
	case http.StatusConflict:
		return ErrAlreadyExists
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if status >= 400 && status < 600 {
		return ErrInternal
	}
	return ErrConnection
}
