package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Doer is the request-execution contract shared by Client and
// CircuitBreakerClient. It matches the HTTP client interface the AWS SDK
// accepts, so either can be handed to an SDK client directly.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	DialTimeout     time.Duration
	MaxConnsPerHost int
}

// DefaultConfig returns sensible defaults for outbound calls to an identity provider.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		DialTimeout:     5 * time.Second,
		MaxConnsPerHost: 100,
	}
}

// Client wraps http.Client with a pooled transport and an overall timeout.
// Retries are left to the caller.
type Client struct {
	httpClient *http.Client
}

// New creates a new HTTP client with connection pooling.
func New(cfg Config) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// Do executes the request using the request's own context.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// HTTPClient exposes the underlying *http.Client for libraries that need one,
// such as OIDC discovery and JWKS fetching.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}
