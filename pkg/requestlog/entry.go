package requestlog

import (
	"fmt"
	"time"

	"github.com/getmockd/expectd/pkg/expectation"
)

// EntryType classifies a log entry.
type EntryType string

// Entry types recorded by the dispatch pipeline and the admin operations.
const (
	ReceivedRequest       EntryType = "RECEIVED_REQUEST"
	ExpectationMatched    EntryType = "EXPECTATION_MATCHED"
	ExpectationNotMatched EntryType = "EXPECTATION_NOT_MATCHED"
	ExpectationResponse   EntryType = "EXPECTATION_RESPONSE"
	NoMatchResponse       EntryType = "NO_MATCH_RESPONSE"
	ForwardedRequest      EntryType = "FORWARDED_REQUEST"
	TemplateGenerated     EntryType = "TEMPLATE_GENERATED"
	CreatedExpectation    EntryType = "CREATED_EXPECTATION"
	UpdatedExpectation    EntryType = "UPDATED_EXPECTATION"
	RemovedExpectation    EntryType = "REMOVED_EXPECTATION"
	Cleared               EntryType = "CLEARED"
	Verification          EntryType = "VERIFICATION"
	VerificationFailed    EntryType = "VERIFICATION_FAILED"
	Exception             EntryType = "EXCEPTION"
)

// Level is the severity of an entry.
type Level string

const (
	LevelTrace Level = "TRACE"
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one recorded event. Entries are never modified after Record.
type Entry struct {
	// ID is assigned by the Log when empty.
	ID string `json:"id"`

	// Timestamp is assigned by the Log when zero.
	Timestamp time.Time `json:"timestamp"`

	Type  EntryType `json:"type"`
	Level Level     `json:"logLevel"`

	// CorrelationID ties together the entries of one dispatch.
	CorrelationID string `json:"correlationId,omitempty"`

	// Request is the inbound request, or the outbound one for forwards.
	Request *expectation.HTTPRequest `json:"httpRequest,omitempty"`

	// Response is what was returned to the client or received upstream.
	Response *expectation.HTTPResponse `json:"httpResponse,omitempty"`

	// Expectation is a snapshot taken when the entry was recorded.
	Expectation *expectation.Expectation `json:"expectation,omitempty"`

	// ExpectationID identifies the expectation involved, if any.
	ExpectationID string `json:"expectationId,omitempty"`

	// MessageFormat and Arguments form the human-readable message using
	// fmt verbs.
	MessageFormat string `json:"messageFormat,omitempty"`
	Arguments     []any  `json:"arguments,omitempty"`

	// NearMisses explains why the closest expectations did not match.
	NearMisses []NearMissInfo `json:"nearMisses,omitempty"`

	// Error is the failure message for EXCEPTION entries.
	Error string `json:"error,omitempty"`
}

// Message formats MessageFormat with Arguments.
func (e *Entry) Message() string {
	if len(e.Arguments) == 0 {
		return e.MessageFormat
	}
	return fmt.Sprintf(e.MessageFormat, e.Arguments...)
}

// HasRequest reports whether the entry carries a request.
func (e *Entry) HasRequest() bool { return e.Request != nil }

// ResponseStatus returns the status code of the recorded response, or 0.
func (e *Entry) ResponseStatus() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.Status()
}
