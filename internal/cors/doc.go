// Package cors lets an HTTP client reach origins that do not support
// Cross-Origin Resource Sharing by routing their requests through a proxy.
//
// The package has two hooks for a host HTTP client:
//   - RewriteURL: called before dispatch. Resolves the target origin's
//     capability (probing it the first time it is seen) and returns either the
//     original URL or the proxy-wrapped URL.
//   - UnmaskStatus: called after the response arrives. Undoes the proxy's
//     redirect-status offset (301 → 251 and so on) for proxied origins.
//
// Capabilities live in a Store. An origin moves from Unknown to Supported or
// Unsupported exactly once and never moves again; the page origin and the
// proxy origin start out Supported.
//
// Transport packages both hooks as an http.RoundTripper:
//
//	resolver, err := cors.NewResolver(cors.Options{
//		PageOrigin: "https://lab.example.org",
//		ProxyURL:   "https://cors.climet.eu/",
//	})
//	client := &http.Client{Transport: &cors.Transport{Resolver: resolver}}
//
// Probing issues a real HEAD (then GET) against the target URL rather than an
// OPTIONS preflight, so the GET fallback can have side effects on endpoints
// that are not idempotent.
package cors
