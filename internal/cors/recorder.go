package cors

import "time"

// Recorder receives counters from the resolver and the prober. See
// internal/infrastructure/monitoring for the Prometheus implementation.
type Recorder interface {
	ProbeAttempt(method, outcome string, elapsed time.Duration)
	OriginResolved(capability string)
	Rewrite(decision string)
	StatusUnmasked(status int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ProbeAttempt(string, string, time.Duration) {}
func (NopRecorder) OriginResolved(string)                      {}
func (NopRecorder) Rewrite(string)                             {}
func (NopRecorder) StatusUnmasked(int)                         {}
