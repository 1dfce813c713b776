package cors

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome classifies a single probe attempt.
type Outcome int

const (
	// OutcomeInconclusive: a status that says nothing about CORS. Try the
	// next method.
	OutcomeInconclusive Outcome = iota
	// OutcomeAllowed: 2xx/3xx that the page origin may read.
	OutcomeAllowed
	// OutcomeForbidden: 403, the way some servers refuse cross-origin reads.
	OutcomeForbidden
	// OutcomeRejected: the request failed in transport or the response did
	// not allow the page origin. A browser raises a network error here.
	OutcomeRejected
	// OutcomeMethodRejected: the method itself was refused (405, 501 or
	// ErrMethodRejected). Try the next method.
	OutcomeMethodRejected
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeRejected:
		return "rejected"
	case OutcomeMethodRejected:
		return "method_rejected"
	default:
		return "inconclusive"
	}
}

// capability maps a decisive outcome to a verdict. Non-decisive outcomes
// return Unknown.
func (o Outcome) capability() Capability {
	switch o {
	case OutcomeAllowed:
		return Supported
	case OutcomeForbidden, OutcomeRejected:
		return Unsupported
	default:
		return Unknown
	}
}

// Attempt records one probe request.
type Attempt struct {
	Method  string
	Status  int
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// Verdict is the result of probing one URL.
type Verdict struct {
	ID         string
	URL        string
	Capability Capability
	// Outcome is the outcome of the last attempt.
	Outcome  Outcome
	Attempts []Attempt
}

// Prober decides whether an origin honors cross-origin requests.
// Probe blocks until a verdict exists. It returns an error only when ctx
// ends first; probe failures are folded into the verdict.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (Verdict, error)
}

// DefaultProbeMethods is the probe order: HEAD is side-effect free on well
// behaved origins, GET covers origins that refuse HEAD.
var DefaultProbeMethods = []string{http.MethodHead, http.MethodGet}

const headerAllowOrigin = "Access-Control-Allow-Origin"

// ProberOptions configures an HTTPProber.
type ProberOptions struct {
	// PageOrigin is sent as the Origin header and matched against
	// Access-Control-Allow-Origin.
	PageOrigin string
	// Methods overrides DefaultProbeMethods.
	Methods []string
	// CheckAllowOrigin requires a matching Access-Control-Allow-Origin on
	// 2xx/3xx responses before the origin counts as supported.
	CheckAllowOrigin bool
	// Timeout bounds each attempt. Zero leaves attempts unbounded.
	Timeout time.Duration
	// Transport is the round tripper used for probes. It must not be a
	// cors.Transport.
	Transport http.RoundTripper
	Logger    *zap.Logger
	Recorder  Recorder
}

// HTTPProber probes origins with real requests against the target URL.
type HTTPProber struct {
	resty      *resty.Client
	methods    []string
	pageOrigin string
	checkACAO  bool
	logger     *zap.Logger
	recorder   Recorder
}

// NewHTTPProber creates a prober. Probe requests carry no cookies or
// credentials, never follow redirects and are never retried.
func NewHTTPProber(opts ProberOptions) *HTTPProber {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}
	methods := opts.Methods
	if len(methods) == 0 {
		methods = DefaultProbeMethods
	}
	upper := make([]string, len(methods))
	for i, m := range methods {
		upper[i] = strings.ToUpper(strings.TrimSpace(m))
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetCookieJar(nil).
		SetLogger(logger.Sugar()).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}

	return &HTTPProber{
		resty:      client,
		methods:    upper,
		pageOrigin: opts.PageOrigin,
		checkACAO:  opts.CheckAllowOrigin,
		logger:     logger,
		recorder:   recorder,
	}
}

// Probe tries each method in turn until one gives a decisive outcome. With no
// decisive outcome the origin is Unsupported, preferring the proxy over
// requests that would fail.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) (Verdict, error) {
	v := Verdict{
		ID:         uuid.NewString(),
		URL:        rawURL,
		Capability: Unsupported,
	}
	log := p.logger.With(zap.String("probe_id", v.ID), zap.String("url", rawURL))

	for _, method := range p.methods {
		a := p.attempt(ctx, method, rawURL)
		if err := ctx.Err(); err != nil {
			return Verdict{ID: v.ID, URL: rawURL}, err
		}
		v.Attempts = append(v.Attempts, a)
		v.Outcome = a.Outcome
		p.recorder.ProbeAttempt(method, a.Outcome.String(), a.Elapsed)

		log.Debug("probe attempt",
			zap.String("method", method),
			zap.Int("status", a.Status),
			zap.Stringer("outcome", a.Outcome),
			zap.Duration("elapsed", a.Elapsed),
			zap.Error(a.Err),
		)

		if c := a.Outcome.capability(); c.Resolved() {
			v.Capability = c
			break
		}
	}
	return v, nil
}

func (p *HTTPProber) attempt(ctx context.Context, method, rawURL string) Attempt {
	start := time.Now()
	req := p.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if p.pageOrigin != "" {
		req.SetHeader("Origin", p.pageOrigin)
	}

	resp, err := req.Execute(method, rawURL)
	a := Attempt{Method: method, Err: err}
	if resp != nil {
		if body := resp.RawBody(); body != nil {
			body.Close()
		}
	}
	a.Elapsed = time.Since(start)

	if err != nil {
		if errors.Is(err, ErrMethodRejected) {
			a.Outcome = OutcomeMethodRejected
		} else {
			a.Outcome = OutcomeRejected
		}
		return a
	}

	a.Status = resp.StatusCode()
	a.Outcome = p.classify(a.Status, resp.Header())
	return a
}

func (p *HTTPProber) classify(status int, header http.Header) Outcome {
	switch {
	case status == http.StatusMethodNotAllowed, status == http.StatusNotImplemented:
		return OutcomeMethodRejected
	case status == http.StatusForbidden:
		return OutcomeForbidden
	case status >= 200 && status <= 399:
		if p.checkACAO && !p.allowsPageOrigin(header) {
			return OutcomeRejected
		}
		return OutcomeAllowed
	default:
		return OutcomeInconclusive
	}
}

func (p *HTTPProber) allowsPageOrigin(header http.Header) bool {
	acao := strings.TrimSpace(header.Get(headerAllowOrigin))
	return acao == "*" || (acao != "" && acao == p.pageOrigin)
}
