// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Endpoint paths served by the daemon.
const (
	PathStatus    = "/status"
	PathPublicKey = "/keys/public"
	PathGenerate  = "/keys/generate"
	PathKeys      = "/keys"
	PathSign      = "/sign"
	PathImportKey = "/import-key"
	PathMetrics   = "/metrics"
)

// DefaultPort is the daemon's default loopback TCP port.
const DefaultPort = 7823

// MaxRequestBodySize caps daemon request bodies.
const MaxRequestBodySize = 1 << 20

// StatusOK is the Status field value of a healthy daemon.
const StatusOK = "ok"

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status        string  `json:"status"`
	Reachable     bool    `json:"reachable"`
	HasKeys       bool    `json:"has_keys"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`

	// PublicKeyFingerprint is present only when HasKeys is true.
	PublicKeyFingerprint string `json:"public_key_fingerprint,omitempty"`
}

// PublicKeyResponse is the body of GET /keys/public and POST
// /keys/generate.
type PublicKeyResponse struct {
	// PublicKey is standard base64 of the 32 raw Ed25519 bytes.
	PublicKey   string `json:"public_key"`
	DID         string `json:"did"`
	Fingerprint string `json:"fingerprint"`
}

// GenerateRequest is the optional body of POST /keys/generate.
type GenerateRequest struct {
	Origin string `json:"origin,omitempty"`
}

// SignRequest is the body of POST /sign.
type SignRequest struct {
	// Content is the UTF-8 text to sign. The signature covers exactly
	// its bytes.
	Content string `json:"content"`
	Origin  string `json:"origin"`
}

// SignResponse is the body of a successful POST /sign.
type SignResponse struct {
	// Signature is standard base64 of the 64-byte Ed25519 signature.
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
	DID       string `json:"did"`

	// Timestamp is RFC 3339 in UTC.
	Timestamp string `json:"timestamp"`

	// ContentHash is lowercase hex SHA-256 of the signed content.
	ContentHash string `json:"content_hash"`
}

// ImportKeyRequest is the body of POST /import-key.
type ImportKeyRequest struct {
	// PrivateKey is a 32-byte seed or a 64-byte seed||public, in
	// standard base64 or hex.
	PrivateKey string `json:"private_key"`

	// PublicKey is the 32-byte public key in standard base64 or hex.
	PublicKey string `json:"public_key"`

	// Source names the surface the key comes from (e.g.
	// "browser-extension", "keybridge-cli"). Shown in the consent
	// prompt and used as the rate-limit key.
	Source string `json:"source"`
}

// ImportKeyResponse is the body of a successful POST /import-key.
type ImportKeyResponse struct {
	DID         string `json:"did"`
	Fingerprint string `json:"fingerprint"`
}

// DeleteKeysResponse is the body of a successful DELETE /keys.
type DeleteKeysResponse struct {
	Deleted bool `json:"deleted"`
}

// ErrorResponse is the body of every non-2xx daemon response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
