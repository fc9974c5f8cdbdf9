// Package ticketclient is a typed client for the support desk HTTP API.
package ticketclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Requester performs one API call: a verb, a path relative to the API
// prefix, an optional query and JSON body. The decoded response is stored in
// out when out is non-nil.
type Requester interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) error
}

// HTTPRequester is a Requester backed by net/http.
type HTTPRequester struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures an HTTPRequester.
type Option func(*HTTPRequester)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(r *HTTPRequester) { r.token = token }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *HTTPRequester) { r.client = c }
}

// NewHTTPRequester targets baseURL, which includes the API prefix, e.g.
// http://localhost:8080/api/v1/support.
func NewHTTPRequester(baseURL string, opts ...Option) *HTTPRequester {
	r := &HTTPRequester{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// Do implements Requester. Error envelopes come back as *errorutil.DomainError.
func (r *HTTPRequester) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := r.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		return apperrors.NewDomainError(apperrors.CodeInternal,
			fmt.Sprintf("unexpected status %d: %s", status, strings.TrimSpace(string(raw))), status, nil)
	}
	return apperrors.NewDomainError(envelope.Error.Code, envelope.Error.Message, status, envelope.Error.Details)
}
