// Package identity resolves display names through the external identity
// provider. The arena core only ever consumes the resulting name string;
// when the provider is unreachable or returns nothing, the client falls
// back to the requested name or an anonymous placeholder.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena-go/internal/obslog"
)

const anonymousName = "anonymous"

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type resolveResponse struct {
	DisplayName string `json:"displayName"`
}

// DisplayName asks the provider for the canonical display name of the
// requested identity. Any failure degrades to the requested string, and a
// blank request degrades to the anonymous placeholder.
func (c *Client) DisplayName(ctx context.Context, requested string) string {
	requested = strings.TrimSpace(requested)
	fallback := requested
	if fallback == "" {
		fallback = anonymousName
	}
	if c == nil || c.baseURL == "" {
		return fallback
	}

	var out resolveResponse
	path := "/names/resolve?name=" + url.QueryEscape(requested)
	if err := c.getJSON(ctx, path, &out); err != nil {
		obslog.L().Warn("identity_resolve_error", zap.String("requested", requested), zap.Error(err))
		return fallback
	}
	if name := strings.TrimSpace(out.DisplayName); name != "" {
		return name
	}
	return fallback
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return fmt.Errorf("identity api error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
