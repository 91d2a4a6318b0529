// Package remote is the REST client for the remote order source.
package remote

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

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iliamunaev/orderdesk/internal/apperr"
	"github.com/iliamunaev/orderdesk/internal/model"
)

// idempotencyNamespace scopes the deterministic idempotency keys.
var idempotencyNamespace = uuid.MustParse("6f1c8d2e-3b4a-5c6d-8e9f-0a1b2c3d4e5f")

const maxBodyBytes = 8 << 20

// Client talks to the order source over HTTP/JSON.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	maxBody int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a Client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse source url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("source url %q must be absolute", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 15 * time.Second},
		maxBody: maxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchOrders returns the full order snapshot of a business as raw rows.
// A body that holds no recognizable list is an empty snapshot, not an error.
func (c *Client) FetchOrders(ctx context.Context, businessID string) ([]json.RawMessage, error) {
	endpoint := c.endpoint("businesses", businessID, "orders")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build fetch request")
	}

	body, err := c.do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch orders of business %s", businessID)
	}
	return decodeList(body), nil
}

// SetOrderStatus asks the source to move orderID to status. The request
// carries an idempotency key derived from (orderID, status) so a retry of
// the same change is recognized upstream.
func (c *Client) SetOrderStatus(ctx context.Context, orderID string, status model.Status) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return nil, errors.Wrap(err, "encode status")
	}

	endpoint := c.endpoint("orders", orderID, "status")
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build status request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", IdempotencyKey(orderID, status))

	body, err := c.do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "set status of order %s to %s", orderID, status)
	}
	return json.RawMessage(body), nil
}

// IdempotencyKey is stable for the same order and target status.
func IdempotencyKey(orderID string, status model.Status) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(orderID+"\x00"+string(status))).String()
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u := *c.base
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(parts, "/")
	return u.String()
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if int64(len(body)) > c.maxBody {
		return nil, errors.Errorf("response body exceeds %d bytes", c.maxBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// StatusError is a non-2xx answer from the source.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote status %d", e.Code)
	}
	return fmt.Sprintf("remote status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == apperr.ErrRemote }
func (e *StatusError) Kind() string          { return "remote_error" }

// decodeList accepts a bare array or an object wrapping it under
// "orders" or "data".
func decodeList(body []byte) []json.RawMessage {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		return nonNull(list)
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return []json.RawMessage{}
	}
	for _, key := range []string{"orders", "data"} {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err == nil {
			return nonNull(list)
		}
	}
	return []json.RawMessage{}
}

func nonNull(list []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(list))
	for _, raw := range list {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		out = append(out, raw)
	}
	return out
}
