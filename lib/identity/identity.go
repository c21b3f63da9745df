// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity derives the public names of a signing key: its
// did:key DID and its short fingerprint. Both are pure functions of the
// Ed25519 public key, so any party holding the public key computes the
// same values.
//
// A DID is "did:key:" followed by the multibase (base58btc) encoding
// of the unsigned-varint multicodec code for ed25519-pub and the 32 raw
// public key bytes. A fingerprint is the unpadded standard base64 of
// the first 8 bytes of SHA-256(public key). The fingerprint doubles as
// the key record id.
package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"
)

// DIDPrefix is the method prefix of every DID this package produces.
const DIDPrefix = "did:key:"

const fingerprintBytes = 8

var (
	// ErrInvalidPublicKey is returned when a public key is not exactly
	// ed25519.PublicKeySize bytes.
	ErrInvalidPublicKey = errors.New("identity: invalid Ed25519 public key")

	// ErrInvalidDID is returned by ParseDID for malformed input.
	ErrInvalidDID = errors.New("identity: invalid did:key")
)

// Identity is the public face of a keypair.
type Identity struct {
	PublicKey   ed25519.PublicKey
	DID         string
	Fingerprint string
}

// FromPublicKey computes the Identity for an Ed25519 public key. The
// key bytes are copied.
func FromPublicKey(publicKey []byte) (Identity, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return Identity{}, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(publicKey))
	}
	owned := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(owned, publicKey)
	did, _ := DID(owned)
	fingerprint, _ := Fingerprint(owned)
	return Identity{PublicKey: owned, DID: did, Fingerprint: fingerprint}, nil
}

// DID returns the did:key identifier for an Ed25519 public key.
func DID(publicKey []byte) (string, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(publicKey))
	}
	payload := varint.ToUvarint(uint64(multicodec.Ed25519Pub))
	payload = append(payload, publicKey...)
	return DIDPrefix + multibase.MustNewEncoder(multibase.Base58BTC).Encode(payload), nil
}

// ParseDID extracts the Ed25519 public key from a did:key identifier.
// Only base58btc multibase and the ed25519-pub multicodec are accepted.
func ParseDID(did string) (ed25519.PublicKey, error) {
	encoded, found := strings.CutPrefix(did, DIDPrefix)
	if !found {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidDID, DIDPrefix)
	}
	encoding, payload, err := multibase.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDID, err)
	}
	if encoding != multibase.Base58BTC {
		return nil, fmt.Errorf("%w: unsupported multibase encoding %q", ErrInvalidDID, string(rune(encoding)))
	}
	code, read, err := varint.FromUvarint(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDID, err)
	}
	if multicodec.Code(code) != multicodec.Ed25519Pub {
		return nil, fmt.Errorf("%w: unsupported key codec %v", ErrInvalidDID, multicodec.Code(code))
	}
	raw := payload[read:]
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: key is %d bytes", ErrInvalidDID, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Fingerprint returns the short fingerprint of a public key.
func Fingerprint(publicKey []byte) (string, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(publicKey))
	}
	digest := sha256.Sum256(publicKey)
	return base64.RawStdEncoding.EncodeToString(digest[:fingerprintBytes]), nil
}

// ContentHash returns the lowercase hex SHA-256 of content. Consent
// requests, audit records, and sign responses identify content by this
// value.
func ContentHash(content []byte) string {
	digest := sha256.Sum256(content)
	return hex.EncodeToString(digest[:])
}
