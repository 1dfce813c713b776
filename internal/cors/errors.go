package cors

import "errors"

var (
	// ErrInvalidURL is returned for URLs that are not absolute.
	ErrInvalidURL = errors.New("cors: invalid url")

	// ErrOpaqueOrigin marks URLs without a host, whose origin cannot be
	// shared with anything else (data:, blob:, file: ...).
	ErrOpaqueOrigin = errors.New("cors: opaque origin")

	// ErrMethodRejected lets a transport report that the platform refused the
	// probe method itself. The prober then moves on to the next method
	// instead of treating the origin as unsupported.
	ErrMethodRejected = errors.New("cors: method rejected")
)
