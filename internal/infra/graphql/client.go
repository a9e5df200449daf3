package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// SortHeightAsc orders the transactions query oldest block first.
const SortHeightAsc = "HEIGHT_ASC"

const (
	defaultPageSize     = 100
	maxErrorBodyPreview = 512
)

// ErrRateLimited is returned when the endpoint answers 429.
var ErrRateLimited = errors.New("graphql endpoint rate limited")

// TagFilter restricts results to messages carrying one of the values.
type TagFilter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// TransactionsQuery selects one page of the message feed.
type TransactionsQuery struct {
	EntityID      string
	Cursor        string
	Limit         int
	Sort          string
	IngestedAtMin int64
	Tags          []TagFilter
}

// Client is a minimal GraphQL client for Arweave-compatible endpoints.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the given endpoint.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// Do executes a query and decodes the data field into out.
func (c *Client) Do(ctx context.Context, query string, vars map[string]any, out any) error {
	payload, err := codec.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graphql call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w, retry after: %s", ErrRateLimited, resp.Header.Get("Retry-After"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, preview(body))
	}

	var gqlResp response
	if err := codec.Unmarshal(body, &gqlResp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		msgs := make([]string, 0, len(gqlResp.Errors))
		for _, e := range gqlResp.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql error: %s", strings.Join(msgs, "; "))
	}

	if out == nil {
		return nil
	}
	if len(gqlResp.Data) == 0 {
		return errors.New("graphql response has no data")
	}
	if err := codec.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// Transactions reads one page of the feed. Each edge keeps the raw node
// alongside its decoded form.
func (c *Client) Transactions(ctx context.Context, q TransactionsQuery) ([]domain.Edge, error) {
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Sort == "" {
		q.Sort = SortHeightAsc
	}
	if q.IngestedAtMin == 0 {
		q.IngestedAtMin = DefaultIngestedAtMin
	}

	vars := map[string]any{
		"entityId":      q.EntityID,
		"limit":         q.Limit,
		"sortOrder":     q.Sort,
		"ingestedAtMin": q.IngestedAtMin,
		"tags":          q.Tags,
	}
	if q.Cursor != "" {
		vars["cursor"] = q.Cursor
	}

	var data struct {
		Transactions struct {
			Edges []struct {
				Cursor string          `json:"cursor"`
				Node   json.RawMessage `json:"node"`
			} `json:"edges"`
		} `json:"transactions"`
	}
	if err := c.Do(ctx, transactionsQuery, vars, &data); err != nil {
		return nil, err
	}

	edges := make([]domain.Edge, 0, len(data.Transactions.Edges))
	for _, e := range data.Transactions.Edges {
		var node domain.TransactionNode
		if err := codec.Unmarshal(e.Node, &node); err != nil {
			return nil, fmt.Errorf("decode node at cursor %s: %w", e.Cursor, err)
		}
		edges = append(edges, domain.Edge{
			Cursor: e.Cursor,
			Node:   node,
			Raw:    e.Node,
		})
	}
	return edges, nil
}

// Transaction looks up a single transaction. It returns nil when the
// endpoint reports no such transaction.
func (c *Client) Transaction(ctx context.Context, id string) (json.RawMessage, error) {
	var data struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	if err := c.Do(ctx, transactionQuery, map[string]any{"id": id}, &data); err != nil {
		return nil, err
	}
	if len(data.Transaction) == 0 || string(data.Transaction) == "null" {
		return nil, nil
	}
	return data.Transaction, nil
}

func preview(body []byte) string {
	if len(body) > maxErrorBodyPreview {
		return string(body[:maxErrorBodyPreview]) + "..."
	}
	return string(body)
}
