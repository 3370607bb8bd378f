// Package http provides the HTTP client used to fetch sample resources.
//
// This package handles:
//   - Connection pooling for high parallelism
//   - Whole-body GET requests with a fixed total timeout
//   - Immediate retries without backoff
//   - X-Robots-Tag opt-out directives
//   - Pooled body buffers (Payload) with explicit release
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    Timeout:              10 * time.Second,
//	    UserAgentToken:       "mybot",
//	    DisallowedDirectives: []string{"noai", "noindex"},
//	})
//
//	p, err := client.FetchWithRetry(ctx, url, 2)
//	if err != nil {
//	    // err describes the last failed attempt
//	}
//	defer p.Close()
package http
