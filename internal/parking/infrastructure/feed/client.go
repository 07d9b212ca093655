package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxBodyLen = 64 << 20
)

// Client fetches live and history documents over HTTP.
type Client struct {
	client     *http.Client
	cacheBust  bool
	now        func() time.Time
	maxBodyLen int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithCacheBusting toggles the t=<unix ms> query parameter.
func WithCacheBusting(enabled bool) Option {
	return func(c *Client) {
		c.cacheBust = enabled
	}
}

// WithMaxBodyLen caps the accepted response size; larger bodies fail the fetch.
func WithMaxBodyLen(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyLen = n
		}
	}
}

// NewClient constructs a feed client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: defaultTimeout},
		cacheBust:  true,
		now:        time.Now,
		maxBodyLen: defaultMaxBodyLen,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchJSON decodes the document at rawURL into out.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.get(ctx, rawURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("feed: decode %s: %w", rawURL, err)
	}
	return nil
}

// FetchText returns the document at rawURL as text.
func (c *Client) FetchText(ctx context.Context, rawURL string) (string, error) {
	body, err := c.get(ctx, rawURL, "text/csv, text/plain, */*")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	target, err := c.withCacheBust(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed: http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyLen+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBodyLen {
		return nil, fmt.Errorf("feed: body exceeds %d bytes", c.maxBodyLen)
	}
	return body, nil
}

func (c *Client) withCacheBust(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("feed: empty url")
	}
	if !c.cacheBust {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
