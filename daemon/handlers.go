// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/identity"
	"github.com/bureau-foundation/keybridge/lib/netutil"
	"github.com/bureau-foundation/keybridge/lib/schema"
	"github.com/bureau-foundation/keybridge/lib/secret"
)

func (s *Server) handleStatus(writer http.ResponseWriter, request *http.Request) {
	status := s.custodian.Status()
	s.writeJSON(writer, http.StatusOK, schema.StatusResponse{
		Status:               schema.StatusOK,
		Reachable:            true,
		HasKeys:              status.HasKeys,
		Version:              s.version,
		UptimeSeconds:        s.clock.Now().Sub(s.startedAt).Seconds(),
		PublicKeyFingerprint: status.Fingerprint,
	})
}

func (s *Server) handlePublicKey(writer http.ResponseWriter, request *http.Request) {
	held, err := s.custodian.PublicKey()
	if err != nil {
		s.writeError(writer, request, err)
		return
	}
	s.writeJSON(writer, http.StatusOK, publicKeyResponse(held))
}

func (s *Server) handleGenerate(writer http.ResponseWriter, request *http.Request) {
	var body schema.GenerateRequest
	if err := netutil.DecodeRequest(writer, request, &body, schema.MaxRequestBodySize); err != nil {
		s.writeError(writer, request, requestError(err))
		return
	}
	origin := originOf(request, body.Origin)
	if !s.allow(writer, request, origin) {
		return
	}

	created, err := s.custodian.Generate(request.Context(), origin)
	if err != nil {
		s.writeError(writer, request, err)
		return
	}
	s.writeJSON(writer, http.StatusOK, publicKeyResponse(created))
}

func (s *Server) handleSign(writer http.ResponseWriter, request *http.Request) {
	var body schema.SignRequest
	if err := netutil.DecodeRequest(writer, request, &body, schema.MaxRequestBodySize); err != nil {
		s.writeError(writer, request, requestError(err))
		return
	}
	if strings.TrimSpace(body.Origin) == "" {
		s.writeError(writer, request, fmt.Errorf("%w: origin is required", schema.ErrValidation))
		return
	}
	if !s.allow(writer, request, body.Origin) {
		return
	}

	result, err := s.custodian.Sign(request.Context(), []byte(body.Content), body.Origin)
	if err != nil {
		s.writeError(writer, request, err)
		return
	}
	s.writeJSON(writer, http.StatusOK, schema.SignResponse{
		Signature:   base64.StdEncoding.EncodeToString(result.Signature),
		PublicKey:   base64.StdEncoding.EncodeToString(result.Identity.PublicKey),
		DID:         result.Identity.DID,
		Timestamp:   result.Timestamp.UTC().Format(time.RFC3339),
		ContentHash: result.ContentHash,
	})
}

// importKeyBody mirrors schema.ImportKeyRequest with the private key
// kept as raw bytes so it can be zeroed.
type importKeyBody struct {
	PrivateKey json.RawMessage `json:"private_key"`
	PublicKey  string          `json:"public_key"`
	Source     string          `json:"source"`
}

func (s *Server) handleImportKey(writer http.ResponseWriter, request *http.Request) {
	data, err := netutil.ReadRequest(writer, request, schema.MaxRequestBodySize)
	if err != nil {
		s.writeError(writer, request, requestError(err))
		return
	}
	defer secret.Zero(data)

	var body importKeyBody
	err = json.Unmarshal(data, &body)
	defer secret.Zero(body.PrivateKey)
	if err != nil {
		s.writeError(writer, request, fmt.Errorf("%w: decoding request body: %v", schema.ErrValidation, err))
		return
	}

	source := originOf(request, body.Source)
	if !s.allow(writer, request, source) {
		return
	}

	publicKey, err := schema.DecodeKeyMaterial([]byte(body.PublicKey), 32)
	if err != nil {
		s.writeError(writer, request, fmt.Errorf("public_key: %w", err))
		return
	}
	encodedPrivate, err := unquoteKey(body.PrivateKey)
	if err != nil {
		s.writeError(writer, request, err)
		return
	}
	privateKey, err := schema.DecodeKeyMaterial(encodedPrivate, 32, 64)
	if err != nil {
		s.writeError(writer, request, fmt.Errorf("private_key: %w", err))
		return
	}

	// ImportKey zeroes privateKey on every path.
	imported, err := s.custodian.ImportKey(request.Context(), privateKey, publicKey, source)
	if err != nil {
		s.writeError(writer, request, err)
		return
	}
	s.writeJSON(writer, http.StatusOK, schema.ImportKeyResponse{
		DID:         imported.DID,
		Fingerprint: imported.Fingerprint,
	})
}

// unquoteKey returns the contents of a JSON string holding base64 or
// hex, without copying. Neither alphabet needs escapes, so an escaped
// string is rejected rather than decoded.
func unquoteKey(raw json.RawMessage) ([]byte, error) {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return nil, fmt.Errorf("%w: private_key must be a string", schema.ErrValidation)
	}
	inner := raw[1 : len(raw)-1]
	for _, character := range inner {
		if character == '\\' {
			return nil, fmt.Errorf("%w: private_key contains escapes", schema.ErrValidation)
		}
	}
	if len(inner) == 0 {
		return nil, fmt.Errorf("%w: private_key is required", schema.ErrValidation)
	}
	return inner, nil
}

func (s *Server) handleDeleteKeys(writer http.ResponseWriter, request *http.Request) {
	origin := originOf(request, request.URL.Query().Get("origin"))
	if !s.allow(writer, request, origin) {
		return
	}
	if err := s.custodian.DeleteKeys(request.Context(), origin); err != nil {
		s.writeError(writer, request, err)
		return
	}
	s.writeJSON(writer, http.StatusOK, schema.DeleteKeysResponse{Deleted: true})
}

// originOf returns the declared origin, falling back to the browser's
// Origin header and then "unknown".
func originOf(request *http.Request, declared string) string {
	if origin := strings.TrimSpace(declared); origin != "" {
		return origin
	}
	if origin := request.Header.Get("Origin"); origin != "" {
		return origin
	}
	return "unknown"
}

// allow applies the per-origin rate limit, writing 429 on rejection.
func (s *Server) allow(writer http.ResponseWriter, request *http.Request, origin string) bool {
	if s.rateLimiter.Allow(origin, s.clock.Now()) {
		return true
	}
	if s.metrics != nil {
		s.metrics.observeRateLimited(request.Pattern)
	}
	s.writeError(writer, request, fmt.Errorf("%w: too many requests from %s", schema.ErrRateLimited, origin))
	return false
}

// requestError classifies a body read or decode failure, oversized
// bodies included, as a validation error.
func requestError(err error) error {
	return fmt.Errorf("%w: %v", schema.ErrValidation, err)
}

func publicKeyResponse(held identity.Identity) schema.PublicKeyResponse {
	return schema.PublicKeyResponse{
		PublicKey:   base64.StdEncoding.EncodeToString(held.PublicKey),
		DID:         held.DID,
		Fingerprint: held.Fingerprint,
	}
}

// writeError classifies err and writes the taxonomy response. Internal
// errors are logged with detail and returned generically.
func (s *Server) writeError(writer http.ResponseWriter, request *http.Request, err error) {
	code, status := schema.Classify(err)
	message := err.Error()

	switch {
	case status == http.StatusInternalServerError:
		s.logger.Error("request failed", "route", request.Pattern, "error", err)
		message = "internal error"
	case consent.IsDenied(err):
		s.logger.Info("request denied", "route", request.Pattern, "error", err)
	default:
		s.logger.Debug("request rejected", "route", request.Pattern, "code", code, "error", err)
	}

	s.writeJSON(writer, status, schema.ErrorResponse{Error: message, Code: code})
}

func (s *Server) writeJSON(writer http.ResponseWriter, status int, value any) {
	if err := netutil.WriteJSON(writer, status, value); err != nil {
		s.logger.Warn("writing JSON response", "error", err, "status", status)
	}
}
