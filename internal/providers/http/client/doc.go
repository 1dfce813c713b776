// Package client provides the host HTTP client for corsbridge.
//
// Client is a resty client whose transport is a cors.Transport, so every
// request is checked against the origin capability cache and, for origins
// without CORS support, sent through the proxy with redirect statuses
// restored on the way back. Around that it adds:
//   - token bucket rate limiting (golang.org/x/time/rate)
//   - one circuit breaker per canonical origin
//   - retries with backoff (resty)
//   - Prometheus counters when a monitoring.Metrics is supplied
//
// Example Usage:
//
//	cfg, err := config.Load()
//	c, err := client.NewClient(cfg, logger, metrics)
//	resp, err := c.Get(ctx, "https://data.example.org/file.csv")
package client
