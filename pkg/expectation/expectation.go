package expectation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Times limits how many dispatches an expectation serves.
type Times struct {
	RemainingTimes int  `json:"remainingTimes"`
	Unlimited      bool `json:"unlimited"`
}

// Exactly allows n dispatches.
func Exactly(n int) *Times { return &Times{RemainingTimes: n} }

// Once allows a single dispatch.
func Once() *Times { return Exactly(1) }

// UnlimitedTimes never runs out.
func UnlimitedTimes() *Times { return &Times{Unlimited: true} }

// TimeToLive limits how long an expectation stays active.
type TimeToLive struct {
	TimeUnit   TimeUnit   `json:"timeUnit,omitempty"`
	TimeToLive int64      `json:"timeToLive,omitempty"`
	Unlimited  bool       `json:"unlimited,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
}

// ExpiresIn creates a TimeToLive of n units.
func ExpiresIn(unit TimeUnit, n int64) *TimeToLive {
	return &TimeToLive{TimeUnit: unit, TimeToLive: n}
}

// IsUnlimited reports whether the TTL never elapses.
func (t *TimeToLive) IsUnlimited() bool {
	return t == nil || t.Unlimited || (t.EndDate == nil && t.TimeToLive <= 0)
}

// Resolve fixes EndDate relative to now if it is not set yet.
func (t *TimeToLive) Resolve(now time.Time) *TimeToLive {
	if t.IsUnlimited() || t.EndDate != nil {
		return t
	}
	c := *t
	end := now.Add(t.TimeUnit.Duration(t.TimeToLive))
	c.EndDate = &end
	return &c
}

// Expired reports whether the TTL has elapsed at now.
func (t *TimeToLive) Expired(now time.Time) bool {
	if t.IsUnlimited() || t.EndDate == nil {
		return false
	}
	return !now.Before(*t.EndDate)
}

// Expectation pairs a request matcher with an action.
type Expectation struct {
	ID          string
	Priority    int
	HTTPRequest *RequestMatcher
	Times       *Times
	TimeToLive  *TimeToLive
	Action      Action
}

// When starts an expectation for the matcher.
func When(matcher *RequestMatcher) *Expectation {
	return &Expectation{HTTPRequest: matcher}
}

func (e *Expectation) WithID(id string) *Expectation {
	e.ID = id
	return e
}

func (e *Expectation) WithPriority(priority int) *Expectation {
	e.Priority = priority
	return e
}

func (e *Expectation) WithTimes(times *Times) *Expectation {
	e.Times = times
	return e
}

func (e *Expectation) WithTimeToLive(ttl *TimeToLive) *Expectation {
	e.TimeToLive = ttl
	return e
}

// Then sets the action.
func (e *Expectation) Then(action Action) *Expectation {
	e.Action = action
	return e
}

// Remaining returns the remaining uses and whether they are unlimited.
func (e *Expectation) Remaining() (int, bool) {
	if e.Times == nil || e.Times.Unlimited {
		return 0, true
	}
	return e.Times.RemainingTimes, false
}

// Matcher returns the request matcher, never nil.
func (e *Expectation) Matcher() *RequestMatcher {
	if e.HTTPRequest == nil {
		return &RequestMatcher{}
	}
	return e.HTTPRequest
}

// JSON renders the expectation as indented JSON.
func (e *Expectation) JSON() string {
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", *e)
	}
	return string(raw)
}

type expectationJSON struct {
	ID                           string                    `json:"id,omitempty"`
	Priority                     int                       `json:"priority"`
	HTTPRequest                  *RequestMatcher           `json:"httpRequest,omitempty"`
	HTTPResponse                 *HTTPResponse             `json:"httpResponse,omitempty"`
	HTTPResponseTemplate         *ResponseTemplate         `json:"httpResponseTemplate,omitempty"`
	HTTPForward                  *HTTPForward              `json:"httpForward,omitempty"`
	HTTPOverrideForwardedRequest *OverrideForwardedRequest `json:"httpOverrideForwardedRequest,omitempty"`
	HTTPForwardTemplate          *ForwardTemplate          `json:"httpForwardTemplate,omitempty"`
	HTTPError                    *HTTPError                `json:"httpError,omitempty"`
	HTTPResponseObjectCallback   *HTTPCallback             `json:"httpResponseObjectCallback,omitempty"`
	Times                        *Times                    `json:"times,omitempty"`
	TimeToLive                   *TimeToLive               `json:"timeToLive,omitempty"`
}

func (e Expectation) MarshalJSON() ([]byte, error) {
	out := expectationJSON{
		ID:          e.ID,
		Priority:    e.Priority,
		HTTPRequest: e.HTTPRequest,
		Times:       e.Times,
		TimeToLive:  e.TimeToLive,
	}
	switch a := e.Action.(type) {
	case nil:
	case *HTTPResponse:
		out.HTTPResponse = a
	case *ResponseTemplate:
		out.HTTPResponseTemplate = a
	case *HTTPForward:
		out.HTTPForward = a
	case *OverrideForwardedRequest:
		out.HTTPOverrideForwardedRequest = a
	case *ForwardTemplate:
		out.HTTPForwardTemplate = a
	case *HTTPError:
		out.HTTPError = a
	case *HTTPCallback:
		out.HTTPResponseObjectCallback = a
	default:
		return nil, fmt.Errorf("unsupported action type %T", e.Action)
	}
	return json.Marshal(out)
}

// UnmarshalJSON rejects documents declaring more than one action.
func (e *Expectation) UnmarshalJSON(data []byte) error {
	var in expectationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var actions []Action
	if in.HTTPResponse != nil {
		actions = append(actions, in.HTTPResponse)
	}
	if in.HTTPResponseTemplate != nil {
		actions = append(actions, in.HTTPResponseTemplate)
	}
	if in.HTTPForward != nil {
		actions = append(actions, in.HTTPForward)
	}
	if in.HTTPOverrideForwardedRequest != nil {
		actions = append(actions, in.HTTPOverrideForwardedRequest)
	}
	if in.HTTPForwardTemplate != nil {
		actions = append(actions, in.HTTPForwardTemplate)
	}
	if in.HTTPError != nil {
		actions = append(actions, in.HTTPError)
	}
	if in.HTTPResponseObjectCallback != nil {
		actions = append(actions, in.HTTPResponseObjectCallback)
	}
	if len(actions) > 1 {
		return &ValidationError{Field: "action", Message: fmt.Sprintf("exactly one action is allowed, found %d", len(actions))}
	}

	*e = Expectation{
		ID:          in.ID,
		Priority:    in.Priority,
		HTTPRequest: in.HTTPRequest,
		Times:       in.Times,
		TimeToLive:  in.TimeToLive,
	}
	if len(actions) == 1 {
		e.Action = actions[0]
	}
	return nil
}

// ParseExpectations decodes a single expectation or an array of them.
func ParseExpectations(data []byte) ([]*Expectation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []*Expectation
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one Expectation
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []*Expectation{&one}, nil
}
