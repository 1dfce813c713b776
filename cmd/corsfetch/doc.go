// Command corsfetch fetches URLs through the CORS compatibility layer.
//
// Each URL is resolved against the origin capability cache: origins that
// answer a probe with CORS headers are fetched directly, the rest through
// the proxy, with redirect statuses restored. One line per URL is printed:
//
//	<url>	<direct|proxied>	<status>	<size> bytes
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	corsfetch -origin https://lab.example.org https://data.example.org/a.csv
//
//	# Debug logs and a metrics dump
//	corsfetch -dev -metrics https://data.example.org/a.csv
package main
