// Package fetch provides the HTTP page fetcher wrapped by the request cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	rotel "github.com/Strob0t/recall/internal/adapter/otel"
	"github.com/Strob0t/recall/internal/config"
	"github.com/Strob0t/recall/internal/domain"
	"github.com/Strob0t/recall/internal/resilience"
)

// MaxBodySize caps how much of a page is read into memory.
const MaxBodySize = 10 << 20

// ErrBodyTooLarge is returned for pages longer than MaxBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

// Client fetches pages over HTTP(S).
type Client struct {
	userAgent  string
	httpClient *http.Client
	breaker    *resilience.Breaker
	pool       *resilience.Pool
}

// NewClient creates a Client from cfg. Requests carry client spans; with
// cfg.OAuth2.TokenURL set they also carry a client-credentials bearer token.
func NewClient(cfg config.Fetch) *Client {
	transport := rotel.Transport(nil)

	if cfg.OAuth2.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient,
			&http.Client{Transport: transport, Timeout: cfg.Timeout})
		transport = &oauth2.Transport{Source: cc.TokenSource(tokenCtx), Base: transport}
	}

	return &Client{
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetPool bounds the number of requests in flight. Waiting for a slot
// honors the request context.
func (c *Client) SetPool(p *resilience.Pool) {
	c.pool = p
}

// Get fetches rawURL and returns the body as text. Only http and https URLs
// are accepted.
func (c *Client) Get(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: url must be absolute http(s): %q", domain.ErrValidation, rawURL)
	}

	var result string
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize))
			return &StatusError{URL: rawURL, Code: resp.StatusCode}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if len(data) > MaxBodySize {
			return fmt.Errorf("fetch %s: %w (limit %d bytes)", rawURL, ErrBodyTooLarge, MaxBodySize)
		}
		result = string(data)
		return nil
	}

	guarded := call
	if c.breaker != nil {
		guarded = func(ctx context.Context) error { return c.breaker.ExecuteContext(ctx, call) }
	}

	if err := c.pool.Run(ctx, func() error { return guarded(ctx) }); err != nil {
		return "", err
	}
	return result, nil
}
