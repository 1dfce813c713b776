package cors

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testPageOrigin = "https://lab.test"
	testProxyURL   = "https://proxy.test/"
)

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// scriptedTransport answers probe requests from a script and records every
// request it sees.
type scriptedTransport struct {
	mu      sync.Mutex
	seen    []string
	respond func(*http.Request) (*http.Response, error)
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.seen = append(s.seen, req.Method+" "+req.URL.String())
	s.mu.Unlock()
	return s.respond(req)
}

func (s *scriptedTransport) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func response(req *http.Request, status int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
		ProtoMajor: 1,
		ProtoMinor: 1,
	}
}

func allowAll() http.Header {
	return http.Header{"Access-Control-Allow-Origin": []string{"*"}}
}

// newTestResolver builds a resolver whose prober talks to rt.
func newTestResolver(t *testing.T, rt http.RoundTripper, warnings io.Writer) *Resolver {
	t.Helper()
	r, err := NewResolver(Options{
		PageOrigin: testPageOrigin,
		ProxyURL:   testProxyURL,
		Prober: NewHTTPProber(ProberOptions{
			PageOrigin:       testPageOrigin,
			CheckAllowOrigin: true,
			Transport:        rt,
		}),
		Warnings:        warnings,
		DisableWarnings: warnings == nil,
	})
	require.NoError(t, err)
	return r
}

// fakeProber returns a fixed capability per origin and counts calls.
type fakeProber struct {
	mu       sync.Mutex
	verdicts map[string]Capability
	calls    map[string]int
	gate     chan struct{}
}

func newFakeProber(verdicts map[string]Capability) *fakeProber {
	return &fakeProber{verdicts: verdicts, calls: map[string]int{}}
}

func (f *fakeProber) Probe(ctx context.Context, rawURL string) (Verdict, error) {
	origin, _ := OriginOf(rawURL)
	f.mu.Lock()
	f.calls[origin]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.verdicts[origin]
	if !ok {
		c = Unsupported
	}
	return Verdict{ID: "fake", URL: rawURL, Capability: c}, nil
}

func (f *fakeProber) callsFor(origin string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[origin]
}

func (f *fakeProber) set(origin string, c Capability) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts[origin] = c
}
