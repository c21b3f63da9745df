// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridgeclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bureau-foundation/keybridge/lib/netutil"
	"github.com/bureau-foundation/keybridge/lib/schema"
	"github.com/bureau-foundation/keybridge/lib/secret"
	"github.com/bureau-foundation/keybridge/lib/version"
)

// DefaultRequestTimeout bounds consent-gated calls. It exceeds the
// daemon's default consent deadline so a timed-out prompt comes back
// as a denial rather than a client-side timeout.
const DefaultRequestTimeout = 90 * time.Second

// APIError is a non-2xx daemon response.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Code is the taxonomy code from the response body, if any.
	Code string

	// Message is the daemon's error text, or the raw body when it was
	// not a JSON error response.
	Message string

	kind error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v: daemon returned %d: %s", e.kind, e.Status, e.Message)
}

// Unwrap returns the taxonomy sentinel.
func (e *APIError) Unwrap() error { return e.kind }

// Config configures a Client.
type Config struct {
	// BaseURL is the daemon's base URL, e.g. "http://127.0.0.1:7823".
	// Required.
	BaseURL string

	// HTTPClient defaults to a client with no overall timeout; every
	// call is bounded by its context instead.
	HTTPClient *http.Client

	// RequestTimeout bounds consent-gated calls. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Client calls the daemon API. Safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
}

// New validates the configuration and returns a Client.
func New(config Config) (*Client, error) {
	parsed, err := url.Parse(config.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("bridgeclient: base URL %q is not an absolute URL", config.BaseURL)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := config.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		httpClient:     httpClient,
		requestTimeout: timeout,
	}, nil
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Status fetches GET /status. A response that does not report status
// "ok" is treated as some other program on the port.
func (c *Client) Status(ctx context.Context) (schema.StatusResponse, error) {
	var response schema.StatusResponse
	if err := c.do(ctx, http.MethodGet, schema.PathStatus, nil, &response); err != nil {
		return schema.StatusResponse{}, err
	}
	if response.Status != schema.StatusOK {
		return schema.StatusResponse{}, fmt.Errorf("%w: unexpected status %q from %s", schema.ErrConnection, response.Status, c.baseURL)
	}
	return response, nil
}

// PublicKey fetches GET /keys/public.
func (c *Client) PublicKey(ctx context.Context) (schema.PublicKeyResponse, error) {
	var response schema.PublicKeyResponse
	err := c.do(ctx, http.MethodGet, schema.PathPublicKey, nil, &response)
	return response, err
}

// Generate asks the daemon to create its keypair.
func (c *Client) Generate(ctx context.Context, origin string) (schema.PublicKeyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	body, err := json.Marshal(schema.GenerateRequest{Origin: origin})
	if err != nil {
		return schema.PublicKeyResponse{}, fmt.Errorf("%w: encoding request: %v", schema.ErrInternal, err)
	}
	var response schema.PublicKeyResponse
	err = c.do(ctx, http.MethodPost, schema.PathGenerate, body, &response)
	return response, err
}

// Sign asks the daemon to sign content on behalf of origin. Content
// must be valid UTF-8; the daemon signs exactly its bytes.
func (c *Client) Sign(ctx context.Context, content []byte, origin string) (schema.SignResponse, error) {
	if !utf8.Valid(content) {
		return schema.SignResponse{}, fmt.Errorf("%w: content is not valid UTF-8", schema.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	body, err := json.Marshal(schema.SignRequest{Content: string(content), Origin: origin})
	if err != nil {
		return schema.SignResponse{}, fmt.Errorf("%w: encoding request: %v", schema.ErrInternal, err)
	}
	var response schema.SignResponse
	err = c.do(ctx, http.MethodPost, schema.PathSign, body, &response)
	return response, err
}

// ImportKey transfers a private key to the daemon. The request body
// holding the encoded key is built in a plain byte slice and zeroed
// once the call returns; privateKey itself is left to the caller.
func (c *Client) ImportKey(ctx context.Context, privateKey *secret.Buffer, publicKey []byte, source string) (schema.ImportKeyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	body, err := importBody(privateKey.Bytes(), publicKey, source)
	if err != nil {
		return schema.ImportKeyResponse{}, err
	}
	defer secret.Zero(body)

	var response schema.ImportKeyResponse
	err = c.do(ctx, http.MethodPost, schema.PathImportKey, body, &response)
	return response, err
}

// importBody assembles the import request JSON without passing the
// private key through an immutable string.
func importBody(privateKey, publicKey []byte, source string) ([]byte, error) {
	publicJSON, err := json.Marshal(base64.StdEncoding.EncodeToString(publicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: encoding public key: %v", schema.ErrInternal, err)
	}
	sourceJSON, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding source: %v", schema.ErrInternal, err)
	}

	encodedLength := base64.StdEncoding.EncodedLen(len(privateKey))
	body := make([]byte, 0, encodedLength+len(publicJSON)+len(sourceJSON)+64)
	body = append(body, `{"private_key":"`...)
	start := len(body)
	body = body[:start+encodedLength]
	base64.StdEncoding.Encode(body[start:], privateKey)
	body = append(body, `","public_key":`...)
	body = append(body, publicJSON...)
	body = append(body, `,"source":`...)
	body = append(body, sourceJSON...)
	body = append(body, '}')
	return body, nil
}

// DeleteKeys asks the daemon to remove its keypair.
func (c *Client) DeleteKeys(ctx context.Context, origin string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	path := schema.PathKeys + "?" + url.Values{"origin": {origin}}.Encode()
	var response schema.DeleteKeysResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, &response); err != nil {
		return err
	}
	if !response.Deleted {
		return fmt.Errorf("%w: daemon did not confirm deletion", schema.ErrConnection)
	}
	return nil
}

// do performs one request and decodes a 2xx body into result.
func (c *Client) do(ctx context.Context, method, path string, body []byte, result any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", schema.ErrInternal, err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", schema.ErrConnection, method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		if err := netutil.DecodeResponse(response.Body, result); err != nil {
			return fmt.Errorf("%w: %s %s: malformed response: %v", schema.ErrConnection, method, path, err)
		}
		return nil
	}

	return decodeError(response)
}

// decodeError translates a non-2xx response. The body code wins when it
// is a known taxonomy code; otherwise the status decides.
func decodeError(response *http.Response) error {
	raw := netutil.ErrorBody(response.Body)

	var body schema.ErrorResponse
	apiError := &APIError{Status: response.StatusCode, Message: strings.TrimSpace(raw)}
	if json.Unmarshal([]byte(raw), &body) == nil && body.Code != "" {
		apiError.Code = body.Code
		apiError.Message = body.Error
		apiError.kind = schema.ErrorForCode(body.Code)
	}
	if apiError.kind == nil {
		apiError.kind = schema.ErrorForStatus(response.StatusCode)
	}
	return apiError
}
