// Package client talks to a forage-launch server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
)

// DefaultTimeout bounds calls that are not expected to wait on a sandbox.
const DefaultTimeout = 30 * time.Second

// Client is an HTTP client for the forage-launch API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the timeout for short calls. Run and Events are bounded
// only by their context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client for the server at baseURL (e.g. "http://localhost:3002").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.InvalidField("server", fmt.Sprintf("%q is not an http URL", baseURL))
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run provisions a sandbox and waits until it is reachable.
func (c *Client) Run(ctx context.Context, req api.RunRequest) (*api.RunResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out api.RunResponse
	if err := c.do(ctx, http.MethodPost, api.PathRun, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sandboxes lists live sandboxes.
func (c *Client) Sandboxes(ctx context.Context) ([]api.Sandbox, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out []api.Sandbox
	return out, c.do(ctx, http.MethodGet, api.PathSandboxes, nil, &out)
}

// Sandbox returns one live sandbox.
func (c *Client) Sandbox(ctx context.Context, id string) (*api.Sandbox, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out api.Sandbox
	if err := c.do(ctx, http.MethodGet, api.PathSandboxes+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Down tears a sandbox down.
func (c *Client) Down(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.do(ctx, http.MethodDelete, api.PathSandboxes+"/"+url.PathEscape(id), nil, nil)
}

// History returns the lifecycle events recorded for a sandbox.
func (c *Client) History(ctx context.Context, id string) ([]api.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out []api.AuditEvent
	return out, c.do(ctx, http.MethodGet, api.PathSandboxes+"/"+url.PathEscape(id)+"/events", nil, &out)
}

// Kinds lists the project kinds the server can run.
func (c *Client) Kinds(ctx context.Context) ([]api.Kind, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out []api.Kind
	return out, c.do(ctx, http.MethodGet, api.PathKinds, nil, &out)
}

// Health returns the server summary.
func (c *Client) Health(ctx context.Context) (*api.Health, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out api.Health
	if err := c.do(ctx, http.MethodGet, api.PathHealth, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events subscribes to the server's event stream and calls fn for every
// message, starting with the initial empty one. It returns when ctx ends,
// the server closes the stream or fn returns an error.
func (c *Client) Events(ctx context.Context, fn func(api.EventMessage) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+api.PathEvents, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to reach server", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	err = readEvents(resp.Body, func(data []byte) error {
		var msg api.EventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("malformed event %q: %w", data, err)
		}
		return fn(msg)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents splits a text/event-stream body into event data payloads.
// Multi-line data fields are joined with newlines; other fields are ignored.
func readEvents(r io.Reader, fn func(data []byte) error) error {
	sc := bufio.NewScanner(r)
	var data []byte
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if data != nil {
				if err := fn(data); err != nil {
					return err
				}
				data = nil
			}
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" "))
			if data != nil {
				data = append(data, '\n')
			}
			data = append(data, v...)
		}
	}
	return sc.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.KindInternal, "failed to reach server", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.KindInternal, "malformed server response", err)
	}
	return nil
}

// decodeError rebuilds the server's error so its kind, and with it the
// exit code, survives the round trip.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body api.ErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Type == "" {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return errors.New(errors.KindInternal, fmt.Sprintf("server returned %s: %s", resp.Status, msg))
	}
	return errors.New(errors.Kind(body.Error.Type), body.Error.Message)
}
