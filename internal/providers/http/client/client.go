package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/climet-eu/corsbridge/internal/cors"
	"github.com/climet-eu/corsbridge/internal/infrastructure/config"
	"github.com/climet-eu/corsbridge/internal/infrastructure/monitoring"
	"github.com/climet-eu/corsbridge/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// errServerFailure marks 5xx responses as breaker failures. It never leaves
// the package.
var errServerFailure = errors.New("server failure")

// Client wraps resty with CORS rewriting, rate limiting and per-origin
// circuit breakers
type Client struct {
	Resty    *resty.Client
	Limiter  *rate.Limiter
	Breakers *resilience.Group
	Mu       sync.RWMutex

	resolver *cors.Resolver
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewClient builds a client from cfg. Requests go through a cors.Transport
// over a pooled transport, so origins without CORS support are reached via
// the configured proxy. logger and metrics may be nil.
func NewClient(cfg *config.Config, logger *zap.Logger, metrics *monitoring.Metrics) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	// Pooled transport shared by probes and real requests
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	pooled := retryClient.HTTPClient.Transport

	opts := cors.Options{
		PageOrigin:       cfg.CORS.PageOrigin,
		ProxyURL:         cfg.CORS.ProxyURL,
		ProbeMethods:     cfg.CORS.ProbeMethods,
		CheckAllowOrigin: cfg.CORS.CheckAllowOrigin,
		ProbeTimeout:     cfg.CORS.ProbeTimeout,
		ProbeTransport:   pooled,
		DisableWarnings:  !cfg.CORS.Warnings,
		Logger:           logger,
	}
	if metrics != nil {
		opts.Recorder = metrics
	}
	resolver, err := cors.NewResolver(opts)
	if err != nil {
		return nil, fmt.Errorf("cors resolver: %w", err)
	}

	restyClient := resty.New()
	restyClient.
		SetTimeout(cfg.HTTP.Timeout).
		SetRetryCount(cfg.HTTP.RetryCount).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(30*time.Second).
		SetHeader("User-Agent", cfg.HTTP.UserAgent).
		SetLogger(logger.Sugar())
	restyClient.SetTransport(&cors.Transport{Base: pooled, Resolver: resolver})

	c := &Client{
		Resty:    restyClient,
		Limiter:  newLimiter(cfg.HTTP.RateLimitRPS),
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
	c.Breakers = resilience.NewGroup(resilience.Settings{
		Threshold:     cfg.HTTP.BreakerThreshold,
		Cooldown:      cfg.HTTP.BreakerCooldown,
		OnStateChange: c.onBreakerChange,
	})
	return c, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *Client) onBreakerChange(origin string, from, to resilience.State) {
	c.logger.Warn("Circuit breaker state changed",
		zap.String("origin", origin),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	if c.metrics != nil {
		c.metrics.BreakerStateChange(origin, to.String())
	}
}

// Resolver returns the CORS resolver behind the transport
func (c *Client) Resolver() *cors.Resolver {
	return c.resolver
}

// RewriteURL exposes the resolver's rewrite hook
func (c *Client) RewriteURL(ctx context.Context, rawURL string) (string, error) {
	return c.resolver.RewriteURL(ctx, rawURL)
}

// UnmaskStatus exposes the resolver's status hook
func (c *Client) UnmaskStatus(rawURL string, status int) int {
	return c.resolver.UnmaskStatus(rawURL, status)
}

// SetHeader adds default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// RemoveHeader removes a default header
func (c *Client) RemoveHeader(key string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.Header.Del(key)
}

// Headers returns copy of all default headers
func (c *Client) Headers() map[string]string {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	headers := make(map[string]string, len(c.Resty.Header))
	for k, v := range c.Resty.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}

// SetTimeout configures request timeout
func (c *Client) SetTimeout(duration time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetTimeout(duration)
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, minWait, maxWait time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetRetryCount(maxRetries).
		SetRetryWaitTime(minWait).
		SetRetryMaxWaitTime(maxWait)
}

// SetRateLimit configures rate limiting (requests per second, 0 = unlimited)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Limiter = newLimiter(rps)
}

// SetBasicAuth configures basic authentication
func (c *Client) SetBasicAuth(username, password string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetBasicAuth(username, password)
}

// SetBearerAuth configures bearer token authentication
func (c *Client) SetBearerAuth(token string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetAuthToken(token)
}

// Request creates new rate-limited request bound to ctx
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// Execute sends req through the breaker of the target's origin. Transport
// errors and 5xx responses count as breaker failures; the response is still
// returned for 5xx.
func (c *Client) Execute(req *resty.Request, method, rawURL string) (*resty.Response, error) {
	origin, err := cors.OriginOf(rawURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := resilience.Call(c.Breakers.Get(origin), func() (*resty.Response, error) {
		resp, err := req.Execute(method, rawURL)
		if err == nil && resp.StatusCode() >= http.StatusInternalServerError {
			return resp, errServerFailure
		}
		return resp, err
	})

	switch {
	case errors.Is(err, errServerFailure):
		err = nil
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return nil, fmt.Errorf("%s: %w", origin, err)
	}

	status := 0
	if resp != nil && resp.RawResponse != nil {
		status = resp.StatusCode()
	}
	if c.metrics != nil {
		c.metrics.RecordRequest(method, status, time.Since(start))
	}
	if err != nil {
		c.logger.Debug("Request failed",
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.Error(err))
		return resp, err
	}
	return resp, nil
}

// Do issues a bodiless request
func (c *Client) Do(ctx context.Context, method, rawURL string) (*resty.Response, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}
	return c.Execute(req, method, rawURL)
}

// Get is Do with GET
func (c *Client) Get(ctx context.Context, rawURL string) (*resty.Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL)
}

// BreakerStates returns the breaker state of every origin contacted so far
func (c *Client) BreakerStates() map[string]string {
	states := c.Breakers.States()
	out := make(map[string]string, len(states))
	for origin, state := range states {
		out[origin] = state.String()
	}
	return out
}
