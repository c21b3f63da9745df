// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/keybridge/lib/sealed"
	"github.com/bureau-foundation/keybridge/lib/secret"
	"github.com/bureau-foundation/keybridge/lib/statefile"
)

// Sealed stores each value as an age-encrypted file named
// "<name>.age" in a directory.
type Sealed struct {
	directory string
	keypair   *sealed.Keypair
}

// OpenSealed loads (or creates) the age identity at keyFile and
// returns a store rooted at directory.
func OpenSealed(directory, keyFile string) (*Sealed, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("credstore: creating %s: %w", directory, err)
	}
	keypair, err := sealed.LoadOrCreateKeyFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("credstore: %w", err)
	}
	return &Sealed{directory: directory, keypair: keypair}, nil
}

func (s *Sealed) path(name string) string {
	return filepath.Join(s.directory, name+".age")
}

func (s *Sealed) Put(name string, value *secret.Buffer) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	ciphertext, err := sealed.Encrypt(value.Bytes(), []string{s.keypair.PublicKey})
	if err != nil {
		return fmt.Errorf("credstore: sealing %s: %w", name, err)
	}
	if err := statefile.Write(s.path(name), ciphertext, 0600); err != nil {
		return fmt.Errorf("credstore: %w", err)
	}
	return nil
}

func (s *Sealed) Get(name string) (*secret.Buffer, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ciphertext, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", name, err)
	}
	value, err := sealed.Decrypt(ciphertext, s.keypair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("credstore: unsealing %s: %w", name, err)
	}
	return value, nil
}

func (s *Sealed) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("credstore: removing %s: %w", name, err)
	}
	return nil
}

func (s *Sealed) Close() error { return s.keypair.Close() }
