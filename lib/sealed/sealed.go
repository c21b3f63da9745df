// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"

	"github.com/bureau-foundation/keybridge/lib/secret"
	"github.com/bureau-foundation/keybridge/lib/statefile"
)

// Keypair holds an age x25519 identity. The private half lives in a
// secret.Buffer; the public half is a recipient string safe to log.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the identity in AGE-SECRET-KEY-1... form.
	PrivateKey *secret.Buffer

	// PublicKey is the recipient in age1... form.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair creates a fresh x25519 identity.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	// age exposes identities only as strings; the heap copy is
	// unavoidable and short-lived.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting age identity: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// LoadOrCreateKeyFile reads the identity at path, creating it (mode
// 0600) if the file does not exist. The file format is the one
// age-keygen writes: comment lines starting with '#' and one
// AGE-SECRET-KEY line.
func LoadOrCreateKeyFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		keypair, err := GenerateKeypair()
		if err != nil {
			return nil, err
		}
		var contents bytes.Buffer
		fmt.Fprintf(&contents, "# public key: %s\n", keypair.PublicKey)
		contents.Write(keypair.PrivateKey.Bytes())
		contents.WriteByte('\n')
		writeErr := statefile.Write(path, contents.Bytes(), 0600)
		secret.Zero(contents.Bytes())
		if writeErr != nil {
			keypair.Close()
			return nil, fmt.Errorf("writing age key file: %w", writeErr)
		}
		return keypair, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading age key file: %w", err)
	}
	defer secret.Zero(data)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parsing age key file %s: %w", path, err)
		}
		privateKey, err := secret.NewFromBytes([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("protecting age identity: %w", err)
		}
		return &Keypair{PrivateKey: privateKey, PublicKey: identity.Recipient().String()}, nil
	}
	return nil, fmt.Errorf("age key file %s contains no identity", path)
}

// Encrypt encrypts plaintext to each recipient (age1... strings) and
// returns the binary age ciphertext. At least one recipient is
// required.
func Encrypt(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Decrypt decrypts ciphertext with privateKey into a new protected
// buffer. privateKey is borrowed, not closed.
func Decrypt(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, errors.New("decrypted payload is empty")
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// ParsePublicKey validates an age recipient string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}
