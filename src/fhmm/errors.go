package fhmm

import "fmt"

// ConfigurationError reports a request the caller should not have made, such
// as composing zero appliances. It is never worth retrying.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "fhmm: configuration error: " + e.Reason
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// DimensionMismatchError is the panic value used when the bookkeeping between
// composition and decomposition disagrees. Seeing one means a bug, not bad
// input, so it is raised rather than returned.
type DimensionMismatchError struct {
	Reason string
}

func (e *DimensionMismatchError) Error() string {
	return "fhmm: invariant violated: " + e.Reason
}

func mismatchf(format string, args ...any) {
	panic(&DimensionMismatchError{Reason: fmt.Sprintf(format, args...)})
}
