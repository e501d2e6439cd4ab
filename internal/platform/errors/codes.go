package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup outcomes
	CodeNotFound        Code = "NOT_FOUND"
	CodeTooManyMatches  Code = "TOO_MANY_MATCHES"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Cache availability
	CodeUnavailable Code = "UNAVAILABLE"

	// Refresh pipeline
	CodeUpstreamFetch Code = "UPSTREAM_FETCH"
	CodeDataIntegrity Code = "DATA_INTEGRITY"
)

// Expected reports whether the code describes a normal caller-facing outcome
// rather than a failure of the service itself.
func (c Code) Expected() bool {
	switch c {
	case CodeNotFound, CodeTooManyMatches, CodeInvalidArgument:
		return true
	default:
		return false
	}
}
