// Package config provides 12-factor configuration for corsbridge.
//
// Configuration is loaded from environment variables with sensible defaults.
//
// Configuration Sections:
//   - CORS: page origin, proxy URL, probe behavior, warnings
//   - HTTP: downstream client timeout, retries, rate limit, user agent
//   - Logging: Log level and output format
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	fmt.Printf("proxying through %s\n", cfg.CORS.ProxyURL)
//
// Environment Variables:
//   - CORS_PAGE_ORIGIN, CORS_PROXY_URL, CORS_PROBE_METHODS
//   - CORS_CHECK_ALLOW_ORIGIN, CORS_PROBE_TIMEOUT, CORS_WARNINGS
//   - HTTP_TIMEOUT, HTTP_RETRY_COUNT, HTTP_RATE_LIMIT_RPS, HTTP_USER_AGENT
//   - HTTP_BREAKER_THRESHOLD, HTTP_BREAKER_COOLDOWN
//   - LOG_LEVEL, LOG_DEV
package config
