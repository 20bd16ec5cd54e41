package verification

import "github.com/getmockd/expectd/pkg/expectation"

// Failure is a verification that did not hold. It is an assertion result,
// not an operational error.
type Failure struct {
	Message  string
	Expected []*expectation.RequestMatcher
	// Found is the number of matching requests, or for sequences the
	// length of the longest matched prefix.
	Found int
}

func (f *Failure) Error() string { return f.Message }

// UnknownIdentifierError is returned when a target names an expectation id
// that was never created.
type UnknownIdentifierError struct {
	ID string
}

func (e *UnknownIdentifierError) Error() string {
	return "No expectation found with id " + e.ID
}
