// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/bureau-foundation/keybridge/lib/secret"
)

// Keyring stores values in the platform credential store. Values are
// base64-encoded because several platform stores only accept text.
type Keyring struct {
	service string
}

// NewKeyring returns a store scoped to the given service name.
func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

func (k *Keyring) Put(name string, value *secret.Buffer) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := keyring.Set(k.service, name, base64.StdEncoding.EncodeToString(value.Bytes())); err != nil {
		return fmt.Errorf("credstore: keyring set %s/%s: %w", k.service, name, err)
	}
	return nil
}

func (k *Keyring) Get(name string) (*secret.Buffer, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	encoded, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: keyring get %s/%s: %w", k.service, name, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("credstore: keyring value %s/%s is not base64: %w", k.service, name, err)
	}
	return secret.NewFromBytes(decoded)
}

func (k *Keyring) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := keyring.Delete(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("credstore: keyring delete %s/%s: %w", k.service, name, err)
	}
	return nil
}

func (k *Keyring) Close() error { return nil }
