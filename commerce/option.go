package commerce

import (
	"net/http"
	"time"

	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/metrics"
	"golang.org/x/time/rate"
)

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithAPIToken sets the bearer token sent with catalog requests.
func WithAPIToken(token string) Option {
	return func(c *Client) {
		c.apiToken = token
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// WithLimiter makes every catalog request wait on l. The limiter is owned by
// the caller and may be shared between clients.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithCacheTTL sets how long catalog responses are reused. Zero disables
// caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

func WithIntegrator(name string) Option {
	return func(c *Client) {
		c.integrator = name
	}
}
