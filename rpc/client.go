// Package rpc calls the backend procedures that mediate provider token
// exchanges, so client secrets never reach the device.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errs "github.com/jrsteele09/taskctl/internal/errors"
	"github.com/tidwall/gjson"
)

// DefaultHTTPTimeout bounds every backend call.
const DefaultHTTPTimeout = 30 * time.Second

const maxErrorBody = 512

// Client is a minimal tRPC-over-HTTP client. Queries are GET requests and
// mutations are POST requests with the JSON input as body; responses carry
// the output under result.data.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client for procedures served under baseURL, for
// example "http://localhost:3000/trpc".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GoogleExchangeToken exchanges a Google authorization code.
func (c *Client) GoogleExchangeToken(ctx context.Context, in CodeExchangeInput) (*ProviderTokens, error) {
	var out ProviderTokens
	if err := c.Mutate(ctx, ProcGoogleExchangeToken, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GoogleRefreshToken redeems a Google refresh token.
func (c *Client) GoogleRefreshToken(ctx context.Context, in RefreshInput) (*ProviderTokens, error) {
	var out ProviderTokens
	if err := c.Mutate(ctx, ProcGoogleRefreshToken, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GitHubExchangeToken exchanges a GitHub authorization code.
func (c *Client) GitHubExchangeToken(ctx context.Context, in CodeExchangeInput) (*ProviderTokens, error) {
	var out ProviderTokens
	if err := c.Mutate(ctx, ProcGitHubExchangeToken, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InternalExchange trades a provider credential for an internal token.
func (c *Client) InternalExchange(ctx context.Context, in InternalExchangeInput) (*InternalExchangeOutput, error) {
	var out InternalExchangeOutput
	if err := c.Mutate(ctx, ProcInternalExchange, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClientConfig fetches the public OAuth client configuration.
func (c *Client) ClientConfig(ctx context.Context) (*ClientConfig, error) {
	var out ClientConfig
	if err := c.Query(ctx, ProcClientConfig, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query calls a query procedure.
func (c *Client) Query(ctx context.Context, procedure string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+procedure, nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", procedure, err)
	}
	return c.do(req, procedure, out)
}

// Mutate calls a mutation procedure with a JSON input.
func (c *Client) Mutate(ctx context.Context, procedure string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s input: %w", procedure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+procedure, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", procedure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, procedure, out)
}

func (c *Client) do(req *http.Request, procedure string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Network(err, "calling %s", procedure)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Network(err, "reading %s response", procedure)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.HTTPStatus("backend "+procedure, resp.StatusCode, errorMessage(body))
	}

	data := gjson.GetBytes(body, "result.data.json")
	if !data.Exists() {
		data = gjson.GetBytes(body, "result.data")
	}
	if !data.Exists() {
		return errs.Network(nil, "%s response has no result.data", procedure)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		return errs.Network(err, "decoding %s response", procedure)
	}
	return nil
}

func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "error.json.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
