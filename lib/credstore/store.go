// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import "github.com/bureau-foundation/keybridge/lib/secret"

// Store is a put/get/delete credential store.
type Store interface {
	// Put stores value under name, replacing any previous value.
	Put(name string, value *secret.Buffer) error

	// Get returns a new buffer holding the value stored under name, or
	// ErrNotFound.
	Get(name string) (*secret.Buffer, error)

	// Delete removes name, or returns ErrNotFound.
	Delete(name string) error

	// Close releases backend resources.
	Close() error
}
