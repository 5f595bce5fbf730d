package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client provides HTTP client functionality with authentication. A Client
// carries one credential and is bound to the application that credential
// belongs to.
type Client struct {
	http       *http.Client
	auth       Authenticator
	credential string
	app        string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithApp names the application used in errors and logs.
func WithApp(app string) Option {
	return func(c *Client) {
		c.app = app
	}
}

// New creates a new transport client with the specified authenticator and credential.
func New(auth Authenticator, credential string, opts ...Option) *Client {
	if auth == nil {
		auth = &NoAuth{}
	}
	c := &Client{
		http:       &http.Client{Timeout: DefaultHTTPTimeout},
		auth:       auth,
		credential: credential,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs an HTTP request with authentication applied.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.credential != "" {
		c.auth.Apply(req, c.credential)
	}

	// Set common headers
	req.Header.Set("Accept", "application/json")
	if req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	logging.FromContext(ctx).Trace().
		Str("app", c.app).
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Msg("HTTP request")

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.WrapAPI(c.app, 0, err)
	}
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapResource("create", "request", "GET "+url, err)
	}
	return c.Do(ctx, req)
}

// JSON sends body encoded as JSON and decodes a 200 response into target.
// A nil body sends no payload; a nil target discards the response.
func (c *Client) JSON(ctx context.Context, method, url string, body, target any) error {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.WrapParse("json", "request", err)
		}
		r = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return errors.WrapResource("create", "request", method+" "+url, err)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return c.decode(ctx, resp, target)
}

func (c *Client) decode(ctx context.Context, resp *http.Response, target any) error {
	err := DecodeResponse(resp, target)
	var apiErr *errors.APIError
	if errors.As(err, &apiErr) {
		apiErr.App = c.app
		logger := logging.FromContext(ctx)
		event := logger.Debug()
		if errors.IsRateLimited(err) {
			// throttling goes to the operational log
			event = logger.Warn()
		}
		event.
			Str("app", c.app).
			Str("endpoint", apiErr.Endpoint).
			Int("status", apiErr.StatusCode).
			Str("body", apiErr.Message).
			Msg("Remote store rejected request")
	}
	return err
}
