// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP JSON I/O helpers shared by the keybridge
// daemon and its client.
//
// Response helpers (ReadResponse, DecodeResponse, ErrorBody) bound all
// response body reads at MaxResponseSize so a misbehaving process
// listening on the daemon port cannot exhaust client memory. Request
// helpers (DecodeRequest, WriteJSON) do the same on the server side
// with a caller-chosen limit.
package netutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxResponseSize is the bound on JSON API response body reads: 4 MB.
// Daemon responses are a few hundred bytes; the limit only guards
// against something else answering on the port.
const MaxResponseSize int64 = 4 << 20

// ErrBodyTooLarge is returned by DecodeRequest when the request body
// exceeds its limit.
var ErrBodyTooLarge = errors.New("request body too large")

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a JSON API response body (up to MaxResponseSize bytes)
// and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body and returns it as a string for
// diagnostic error messages. Read errors are silently ignored: a partial or
// empty body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}

// ReadRequest reads a request body of at most limit bytes. An
// oversized body yields ErrBodyTooLarge. The returned slice is owned by
// the caller; handlers reading key material zero it when done.
func ReadRequest(writer http.ResponseWriter, request *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, limit))
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBytesError.Limit)
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return data, nil
}

// DecodeRequest JSON-decodes a request body of at most limit bytes into
// v. An oversized body yields ErrBodyTooLarge; an empty body decodes as
// an empty object. Trailing data after the first JSON value is an
// error.
func DecodeRequest(writer http.ResponseWriter, request *http.Request, v any, limit int64) error {
	data, err := ReadRequest(writer, request, limit)
	if err != nil {
		return err
	}
	return DecodeBody(data, v)
}

// DecodeBody is the decoding half of DecodeRequest, for callers that
// read the body themselves.
func DecodeBody(data []byte, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("{}")
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	if decoder.More() {
		return errors.New("decoding request body: unexpected data after JSON value")
	}
	return nil
}

// WriteJSON writes v as a JSON response with the given status code.
// Encoding errors are returned but the status line is already sent.
func WriteJSON(writer http.ResponseWriter, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		return fmt.Errorf("encoding response: %w", err)
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_, err = writer.Write(append(data, '\n'))
	return err
}
