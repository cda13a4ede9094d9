// Package apiclient is the REST client for the chat backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chat-app-client/internal/dto"
	"chat-app-client/internal/logging"

	"go.uber.org/zap"
)

const DefaultTimeout = 15 * time.Second

// Options configure a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the backend REST API. Safe for concurrent use.
type Client struct {
	baseURL *url.URL
	token   string
	timeout time.Duration
	http    *http.Client
	log     *zap.Logger
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: base url %q must be absolute", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	instrumented := *hc
	instrumented.Transport = instrument(hc.Transport)

	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		timeout: timeout,
		http:    &instrumented,
		log:     logging.OrComponent(opts.Logger, "apiclient"),
	}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(p string, query url.Values) string {
	// p is already escaped; JoinPath keeps RawPath consistent.
	u := c.baseURL.JoinPath(p)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends a request and decodes the envelope's data into out (which may be nil).
// Every returned error is an *ApiError or a *NetworkError.
func (c *Client) do(ctx context.Context, method, p string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &NetworkError{Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p, query), reader)
	if err != nil {
		return &NetworkError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", p), zap.Error(err))
		return &NetworkError{Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return &NetworkError{Status: res.StatusCode, StatusText: http.StatusText(res.StatusCode), Err: err}
	}

	var env dto.Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(raw, &env)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		// Error responses still carry the envelope when the backend produced them.
		if decodeErr == nil && env.Code != 0 && env.Code != dto.CodeOK {
			return &ApiError{Code: env.Code, Message: env.Message, Err: env.Error}
		}
		return &NetworkError{Status: res.StatusCode, StatusText: http.StatusText(res.StatusCode)}
	}
	if decodeErr != nil {
		return &NetworkError{Status: res.StatusCode, StatusText: http.StatusText(res.StatusCode), Err: fmt.Errorf("decode envelope: %w", decodeErr)}
	}
	if env.Code != dto.CodeOK {
		return &ApiError{Code: env.Code, Message: env.Message, Err: env.Error}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &NetworkError{Status: res.StatusCode, StatusText: http.StatusText(res.StatusCode), Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func (c *Client) get(ctx context.Context, p string, query url.Values, out any) error {
	return normalize(c.do(ctx, http.MethodGet, p, query, nil, out))
}

func (c *Client) post(ctx context.Context, p string, body, out any) error {
	return normalize(c.do(ctx, http.MethodPost, p, nil, body, out))
}

func (c *Client) put(ctx context.Context, p string, body, out any) error {
	return normalize(c.do(ctx, http.MethodPut, p, nil, body, out))
}

func (c *Client) delete(ctx context.Context, p string, query url.Values) error {
	return normalize(c.do(ctx, http.MethodDelete, p, query, nil, nil))
}

// IsTimeout reports whether err came from the per-request deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
