package cors

// Capability is the cached verdict on whether an origin accepts direct
// cross-origin requests.
type Capability int

const (
	Unknown Capability = iota
	Supported
	Unsupported
)

// String returns the string representation of the capability
func (c Capability) String() string {
	switch c {
	case Supported:
		return "supported"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Resolved reports whether c is a final verdict.
func (c Capability) Resolved() bool {
	return c == Supported || c == Unsupported
}
