package cors

import (
	"fmt"
	"net/http"
	"net/url"
)

// Transport is an http.RoundTripper that sends each request either directly
// or through the proxy, and unmasks proxied redirect statuses on the way back.
type Transport struct {
	// Base performs the actual request. Defaults to http.DefaultTransport.
	Base     http.RoundTripper
	Resolver *Resolver
}

// RoundTrip rewrites a clone of req, delegates to Base and normalizes the
// status. Errors from Base are returned unchanged.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	target := req.URL.String()
	rewritten, err := t.Resolver.RewriteURL(req.Context(), target)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	out := req
	if rewritten != target {
		u, err := url.Parse(rewritten)
		if err != nil {
			closeBody(req)
			return nil, fmt.Errorf("cors: proxied url: %w", err)
		}
		out = req.Clone(req.Context())
		out.URL = u
		out.Host = ""
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if code := t.Resolver.UnmaskStatus(target, resp.StatusCode); code != resp.StatusCode {
		resp.StatusCode = code
		resp.Status = fmt.Sprintf("%d %s", code, http.StatusText(code))
	}
	resp.Request = req
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// closeBody honors the RoundTripper contract of closing the body on error.
func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
