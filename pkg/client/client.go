// Package client submits signed operations to a stash node and queries its
// projection over HTTP.
//
// Every call runs under a finite timeout. Failures are returned as
// *SubmitError or *QueryError and are never retried here.
package client

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

	"github.com/dyluth/stash/pkg/api"
	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/identity"
	"github.com/dyluth/stash/pkg/operation"
	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

const (
	// DefaultSubmitTimeout bounds a submission round trip.
	DefaultSubmitTimeout = 10 * time.Second

	// DefaultQueryTimeout bounds a query round trip.
	DefaultQueryTimeout = 10 * time.Second

	maxResponseBytes = 16 << 20
)

// Client talks to one node endpoint. It is safe for concurrent use.
type Client struct {
	endpoint      string
	http          *http.Client
	submitTimeout time.Duration
	queryTimeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSubmitTimeout sets the submission timeout. Non-positive values are ignored.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.submitTimeout = d
		}
	}
}

// WithQueryTimeout sets the query timeout. Non-positive values are ignored.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

// New creates a client for the node at endpoint (e.g. http://localhost:2020).
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	c := &Client{
		endpoint:      strings.TrimRight(endpoint, "/"),
		http:          &http.Client{},
		submitTimeout: DefaultSubmitTimeout,
		queryTimeout:  DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the node's base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Submit signs op with kp and submits it. On success the returned reference
// is enough to build a local Document without reading it back. An operation
// that cannot be encoded fails with *operation.BuildError before any request
// is made.
func (c *Client) Submit(ctx context.Context, kp *identity.KeyPair, op *operation.Operation) (operation.EntryReference, error) {
	signed, err := operation.Sign(kp, op)
	if err != nil {
		return operation.EntryReference{}, err
	}
	return c.SubmitSigned(ctx, signed)
}

// SubmitSigned submits an already signed operation. Resubmitting the same
// signed operation returns the same reference.
func (c *Client) SubmitSigned(ctx context.Context, signed *operation.SignedOperation) (operation.EntryReference, error) {
	body, err := json.Marshal(signed)
	if err != nil {
		return operation.EntryReference{}, fmt.Errorf("failed to encode signed operation: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	status, data, err := c.post(ctx, api.PathOperations, body)
	if err != nil {
		return operation.EntryReference{}, &SubmitError{Kind: transportKind(err), Err: err}
	}

	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		var ref operation.EntryReference
		if err := json.Unmarshal(data, &ref); err != nil {
			return operation.EntryReference{}, &SubmitError{Kind: KindMalformedResponse, Err: err}
		}
		if err := ref.Validate(); err != nil {
			return operation.EntryReference{}, &SubmitError{Kind: KindMalformedResponse, Err: err}
		}
		return ref, nil
	case status >= 400 && status < 500:
		rej := decodeRejection(status, data)
		return operation.EntryReference{}, &SubmitError{Kind: KindRejected, Code: rej.Code, Err: fmt.Errorf("%s", rej.Message)}
	default:
		rej := decodeRejection(status, data)
		return operation.EntryReference{}, &SubmitError{Kind: KindUnreachable, Code: rej.Code, Err: fmt.Errorf("node returned %d: %s", status, rej.Message)}
	}
}

// Rows runs q against the node and returns the raw projection rows.
func (c *Client) Rows(ctx context.Context, q query.Query) ([]document.Row, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, &QueryError{Kind: KindRejected, Code: api.CodeInvalidQuery, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	status, data, err := c.post(ctx, api.PathQuery, body)
	if err != nil {
		return nil, &QueryError{Kind: transportKind(err), Err: err}
	}

	switch {
	case status == http.StatusOK:
		var resp api.QueryResponse
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&resp); err != nil {
			return nil, &QueryError{Kind: KindMalformedResponse, Err: err}
		}
		return resp.Documents, nil
	case status >= 400 && status < 500:
		rej := decodeRejection(status, data)
		return nil, &QueryError{Kind: KindRejected, Code: rej.Code, Err: fmt.Errorf("%s", rej.Message)}
	default:
		rej := decodeRejection(status, data)
		return nil, &QueryError{Kind: KindUnreachable, Code: rej.Code, Err: fmt.Errorf("node returned %d: %s", status, rej.Message)}
	}
}

// QueryAll returns every document of desc's schema matching filter (nil for
// all), in the given order. Rows that do not conform to desc or to T fail
// the whole query with KindMalformedResponse.
func QueryAll[T any](ctx context.Context, c *Client, desc *schema.Descriptor, filter query.Predicate, order query.Order) (document.Collection[T], error) {
	if desc == nil {
		return nil, &QueryError{Kind: KindRejected, Code: api.CodeInvalidQuery, Err: fmt.Errorf("no schema descriptor")}
	}
	q := query.Query{SchemaID: desc.ID, Filter: filter, Order: order}
	if err := q.Validate(desc); err != nil {
		return nil, &QueryError{Kind: KindRejected, Code: api.CodeInvalidQuery, Err: err}
	}

	rows, err := c.Rows(ctx, q)
	if err != nil {
		return nil, err
	}

	docs, err := document.FromQueryRows[T](desc, rows)
	if err != nil {
		return nil, &QueryError{Kind: KindMalformedResponse, Err: err}
	}
	return docs, nil
}

// Health checks the node's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+api.PathHealth, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var health api.HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&health); err != nil {
		return fmt.Errorf("malformed health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node unhealthy: %s", health.Error)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func decodeRejection(status int, data []byte) api.Rejection {
	var rej api.Rejection
	if err := json.Unmarshal(data, &rej); err != nil || rej.Code == "" {
		return api.Rejection{Message: fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(string(data)))}
	}
	return rej
}
