package cors

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

const schemeHostSep = "://"

// defaultPorts are elided from origin keys, as browsers do when serializing
// an origin.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// OriginOf returns the canonical origin key (scheme://host[:port]) of an
// absolute URL. It returns ErrOpaqueOrigin for URLs without a host and
// ErrInvalidURL for anything that is not an absolute URL.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	return originOfURL(u)
}

func originOfURL(u *url.URL) (string, error) {
	if u.Scheme == "" {
		return "", fmt.Errorf("%w %q: missing scheme", ErrInvalidURL, u.String())
	}
	if u.Host == "" {
		return "", ErrOpaqueOrigin
	}

	scheme := strings.ToLower(u.Scheme)
	host := canonicalHost(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w %q: missing host", ErrInvalidURL, u.String())
	}
	if strings.Contains(host, ":") { // IPv6 literal
		host = "[" + host + "]"
	}

	var b strings.Builder
	b.Grow(len(scheme) + len(schemeHostSep) + len(host) + 6)
	b.WriteString(scheme)
	b.WriteString(schemeHostSep)
	b.WriteString(host)
	if port := u.Port(); port != "" && defaultPorts[scheme] != port {
		b.WriteByte(':')
		b.WriteString(port)
	}
	return b.String(), nil
}

// canonicalHost lower-cases host and converts internationalized names to
// their ASCII form. Hosts that idna refuses are kept as lower-cased text.
func canonicalHost(host string) string {
	host = strings.ToLower(host)
	if isASCII(host) {
		return host
	}
	if ascii, err := idna.Punycode.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
