package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
	ErrBodyTooLarge = errors.New("http: response body exceeds limit")

	// ErrDisallowed is returned when the response carries an X-Robots-Tag
	// directive that opts out of automated downloading.
	ErrDisallowed = errors.New("use of image disallowed by X-Robots-Tag directive")
)

const (
	baseUserAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:72.0) Gecko/20100101 Firefox/72.0"
	projectURL    = "https://github.com/ligustah/shardfetch"
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout is the total time allowed for one request, body included.
	// Default: 10s
	Timeout time.Duration

	// UserAgentToken is appended to the User-Agent header and matched
	// against X-Robots-Tag tokens.
	UserAgentToken string

	// DisallowedDirectives enables the X-Robots-Tag check when non-empty.
	DisallowedDirectives []string

	// RequestsPerSecond limits the request rate across the client.
	// Zero disables limiting.
	RequestsPerSecond float64

	// MaxBodySize caps the number of body bytes read. Zero means no cap.
	MaxBodySize int64

	// OnRetry is called before every repeated attempt with the error
	// of the previous one.
	OnRetry func(err error)
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		Timeout:             10 * time.Second,
	}
}

// Client fetches whole resources into memory.
type Client struct {
	client     *http.Client
	opts       Options
	userAgent  string
	disallowed map[string]struct{}
	limiter    *rate.Limiter
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	opts.UserAgentToken = strings.ToLower(strings.TrimSpace(opts.UserAgentToken))

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts:       opts,
		userAgent:  UserAgent(opts.UserAgentToken),
		disallowed: NewDirectiveSet(opts.DisallowedDirectives),
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// UserAgent returns the User-Agent header value for the given token.
func UserAgent(token string) string {
	if token == "" {
		return baseUserAgent
	}
	return fmt.Sprintf("%s (compatible; %s; +%s)", baseUserAgent, token, projectURL)
}

// Fetch performs a single GET request and reads the whole body.
// The caller owns the returned payload and must Close it.
func (c *Client) Fetch(ctx context.Context, url string) (*Payload, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return nil, err
	}

	if len(c.disallowed) > 0 && IsDisallowed(resp.Header, c.opts.UserAgentToken, c.disallowed) {
		return nil, ErrDisallowed
	}

	var body io.Reader = resp.Body
	if c.opts.MaxBodySize > 0 {
		body = io.LimitReader(resp.Body, c.opts.MaxBodySize+1)
	}

	p := newPayload()
	if _, err := p.buf.ReadFrom(body); err != nil {
		p.Close()
		return nil, fmt.Errorf("read body: %w", err)
	}
	if c.opts.MaxBodySize > 0 && int64(p.buf.Len()) > c.opts.MaxBodySize {
		p.Close()
		return nil, ErrBodyTooLarge
	}
	return p, nil
}

// FetchWithRetry calls Fetch up to retries+1 times and stops at the first
// attempt that yields a payload. Attempts are repeated immediately. If every
// attempt fails, the last error is returned.
func (c *Client) FetchWithRetry(ctx context.Context, url string, retries int) (*Payload, error) {
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				break
			}
			if c.opts.OnRetry != nil {
				c.opts.OnRetry(lastErr)
			}
		}

		p, err := c.Fetch(ctx, url)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
