package cors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultProxyURL is the CORS proxy used when none is configured.
const DefaultProxyURL = "https://cors.climet.eu/"

// Rewrite decisions, as reported to the Recorder.
const (
	DecisionDirect  = "direct"
	DecisionProxied = "proxied"
	DecisionOpaque  = "opaque"
)

// Options configures a Resolver.
type Options struct {
	// PageOrigin is the client's own origin. A full URL is accepted and
	// reduced to its origin.
	PageOrigin string
	// ProxyURL is the proxy base. Requests are rewritten to
	// <ProxyURL without trailing slash>/<original URL>.
	ProxyURL string

	// Store defaults to a fresh MemoryStore.
	Store Store
	// Prober defaults to an HTTPProber built from the Probe* fields.
	Prober Prober

	ProbeMethods     []string
	CheckAllowOrigin bool
	ProbeTimeout     time.Duration
	ProbeTransport   http.RoundTripper

	// Warnings receives the human-readable notice for each newly proxied
	// origin. Defaults to os.Stderr unless DisableWarnings is set. Writes are
	// serialized by the Resolver.
	Warnings        io.Writer
	DisableWarnings bool

	Logger   *zap.Logger
	Recorder Recorder
}

// Resolver implements the rewrite and unmask hooks over a shared Store.
// It is safe for concurrent use.
type Resolver struct {
	store      Store
	prober     Prober
	proxyBase  string
	pageOrigin string
	warnings   io.Writer
	logger     *zap.Logger
	recorder   Recorder
	inflight   singleflight.Group

	warnMu sync.Mutex // probes for different origins settle concurrently
}

// NewResolver validates opts and seeds the store with the page origin and
// the proxy origin.
func NewResolver(opts Options) (*Resolver, error) {
	pageOrigin, err := OriginOf(opts.PageOrigin)
	if err != nil {
		return nil, fmt.Errorf("page origin: %w", err)
	}

	proxyURL := opts.ProxyURL
	if proxyURL == "" {
		proxyURL = DefaultProxyURL
	}
	proxyOrigin, err := OriginOf(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("proxy url: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cors")

	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}

	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	store.Set(pageOrigin, Supported)
	store.Set(proxyOrigin, Supported)

	prober := opts.Prober
	if prober == nil {
		prober = NewHTTPProber(ProberOptions{
			PageOrigin:       pageOrigin,
			Methods:          opts.ProbeMethods,
			CheckAllowOrigin: opts.CheckAllowOrigin,
			Timeout:          opts.ProbeTimeout,
			Transport:        opts.ProbeTransport,
			Logger:           logger,
			Recorder:         recorder,
		})
	}

	warnings := opts.Warnings
	if opts.DisableWarnings {
		warnings = nil
	} else if warnings == nil {
		warnings = os.Stderr
	}

	return &Resolver{
		store:      store,
		prober:     prober,
		proxyBase:  strings.TrimRight(proxyURL, "/"),
		pageOrigin: pageOrigin,
		warnings:   warnings,
		logger:     logger,
		recorder:   recorder,
	}, nil
}

// PageOrigin returns the canonical page origin.
func (r *Resolver) PageOrigin() string {
	return r.pageOrigin
}

// ProxyBase returns the proxy base without trailing slash.
func (r *Resolver) ProxyBase() string {
	return r.proxyBase
}

// RewriteURL returns rawURL when its origin accepts direct cross-origin
// requests and the proxy-wrapped URL otherwise. The first call for an origin
// blocks on a probe; its verdict is cached before RewriteURL returns.
//
// URLs with an opaque origin are returned unchanged. Errors are returned only
// for URLs that are not absolute and when ctx ends before a verdict exists.
func (r *Resolver) RewriteURL(ctx context.Context, rawURL string) (string, error) {
	origin, err := OriginOf(rawURL)
	if errors.Is(err, ErrOpaqueOrigin) {
		r.recorder.Rewrite(DecisionOpaque)
		return rawURL, nil
	}
	if err != nil {
		return "", err
	}

	c, err := r.resolve(ctx, origin, rawURL)
	if err != nil {
		return "", err
	}

	if c == Supported {
		r.recorder.Rewrite(DecisionDirect)
		return rawURL, nil
	}
	r.recorder.Rewrite(DecisionProxied)
	return r.proxyBase + "/" + rawURL, nil
}

// UnmaskStatus reverses the proxy's redirect offset for URLs whose origin is
// Unsupported. rawURL is the URL the caller asked for, not the proxied one.
// It never probes and has no side effects beyond metrics.
func (r *Resolver) UnmaskStatus(rawURL string, status int) int {
	origin, err := OriginOf(rawURL)
	if err != nil {
		return status
	}
	if r.store.Get(origin) != Unsupported {
		return status
	}
	if unmasked := unmask(status); unmasked != status {
		r.recorder.StatusUnmasked(unmasked)
		return unmasked
	}
	return status
}

// Capability returns the cached capability of rawURL's origin without
// probing.
func (r *Resolver) Capability(rawURL string) Capability {
	origin, err := OriginOf(rawURL)
	if err != nil {
		return Unknown
	}
	return r.store.Get(origin)
}

// resolve returns the capability of origin, probing once if needed.
// Concurrent callers for one origin share the probe. The probe is detached
// from ctx cancellation so its verdict always lands in the store; a caller
// whose ctx ends first gets ctx.Err().
func (r *Resolver) resolve(ctx context.Context, origin, rawURL string) (Capability, error) {
	if c := r.store.Get(origin); c.Resolved() {
		return c, nil
	}

	probeCtx := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(origin, func() (any, error) {
		if c := r.store.Get(origin); c.Resolved() {
			return c, nil
		}
		v, err := r.prober.Probe(probeCtx, rawURL)
		if err != nil {
			return Unknown, err
		}
		r.settle(origin, v)
		return r.store.Get(origin), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Unknown, res.Err
		}
		return res.Val.(Capability), nil
	case <-ctx.Done():
		return Unknown, ctx.Err()
	}
}

// settle records v, treating a verdict without a capability as Unsupported.
// Only the call that resolves the origin logs and warns, so each origin is
// announced once.
func (r *Resolver) settle(origin string, v Verdict) {
	if !v.Capability.Resolved() {
		v.Capability = Unsupported
	}
	if !r.store.Set(origin, v.Capability) {
		return
	}
	r.recorder.OriginResolved(v.Capability.String())

	fields := []zap.Field{
		zap.String("origin", origin),
		zap.String("probe_id", v.ID),
		zap.Stringer("capability", v.Capability),
		zap.Stringer("outcome", v.Outcome),
		zap.Int("attempts", len(v.Attempts)),
	}
	if v.Capability != Unsupported {
		r.logger.Info("origin supports cors", fields...)
		return
	}

	r.logger.Warn("origin does not support cors, proxying requests",
		append(fields, zap.String("proxy", r.proxyBase))...)
	r.warnMu.Lock()
	writeWarning(r.warnings, origin)
	r.warnMu.Unlock()
}
