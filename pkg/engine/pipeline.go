package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/requestlog"
	"github.com/getmockd/expectd/pkg/transport"
)

// State is a step in the dispatch of one request.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateMatching        State = "MATCHING"
	StateMatched         State = "MATCHED"
	StateExecuting       State = "EXECUTING"
	StateResponded       State = "RESPONDED"
	StateUnmatched       State = "UNMATCHED"
	StateDefaultResponse State = "DEFAULT_RESPONSE"
)

var transitions = map[State][]State{
	StateReceived:  {StateMatching},
	StateMatching:  {StateMatched, StateUnmatched},
	StateMatched:   {StateExecuting},
	StateExecuting: {StateResponded},
	StateUnmatched: {StateDefaultResponse},
}

// dispatch carries the state of one request through the pipeline.
type dispatch struct {
	engine        *Engine
	correlationID string
	req           *expectation.HTTPRequest
	state         State
}

func (d *dispatch) to(next State) {
	for _, allowed := range transitions[d.state] {
		if allowed == next {
			d.engine.log.Debug("dispatch transition", "correlationId", d.correlationID, "from", d.state, "to", next)
			d.state = next
			if d.engine.observer != nil {
				d.engine.observer(d.correlationID, next)
			}
			return
		}
	}
	panic(fmt.Sprintf("engine: invalid dispatch transition %s -> %s", d.state, next))
}

// entry starts a log entry tied to this dispatch.
func (d *dispatch) entry(t requestlog.EntryType, format string, args ...any) *requestlog.Entry {
	return &requestlog.Entry{
		Type:          t,
		CorrelationID: d.correlationID,
		Request:       d.req,
		MessageFormat: format,
		Arguments:     args,
	}
}

// Dispatch matches req against the active expectations and executes the
// winner's action. Unmatched requests get a 404 with no body.
func (e *Engine) Dispatch(ctx context.Context, req *expectation.HTTPRequest) transport.Outcome {
	start := time.Now()
	if req == nil {
		req = &expectation.HTTPRequest{}
	}
	d := &dispatch{engine: e, correlationID: e.source.UUID(), req: req, state: StateReceived}
	if e.observer != nil {
		e.observer(d.correlationID, StateReceived)
	}
	e.record(d.entry(requestlog.ReceivedRequest, "received request:\n\n  %s\n", indent(req.JSON())))

	d.to(StateMatching)
	matched := e.store.Select(func(candidate *expectation.Expectation) bool {
		return e.matcher.Matches(ctx, candidate.Matcher(), req)
	})

	if matched == nil {
		d.to(StateUnmatched)
		e.recordNoMatch(ctx, d)

		d.to(StateDefaultResponse)
		resp := expectation.NotFound()
		entry := d.entry(requestlog.NoMatchResponse, "no expectation for:\n\n  %s\n\n returning response:\n\n  %s\n",
			indent(req.JSON()), indent(resp.JSON()))
		entry.Response = resp
		e.record(entry)
		e.metrics.dispatched(outcomeUnmatched, "", start)
		return transport.Outcome{Response: resp}
	}

	d.to(StateMatched)
	entry := d.entry(requestlog.ExpectationMatched, "request:\n\n  %s\n\n matched expectation:\n\n  %s\n",
		indent(req.JSON()), indent(matched.JSON()))
	entry.Expectation = matched
	entry.ExpectationID = matched.ID
	e.record(entry)

	d.to(StateExecuting)
	outcome := outcomeMatched
	out, err := e.execute(ctx, d, matched)
	if err != nil {
		outcome = outcomeFailed
		out = e.failure(ctx, d, matched, err)
	}

	d.to(StateResponded)
	e.recordOutcome(d, matched, out)
	e.metrics.dispatched(outcome, matched.Action.Kind(), start)
	return out
}

func (e *Engine) recordNoMatch(ctx context.Context, d *dispatch) {
	candidates := e.store.Active(nil)
	misses := e.matcher.CollectNearMisses(ctx, candidates, d.req, e.nearMisses)

	entry := d.entry(requestlog.ExpectationNotMatched, "request:\n\n  %s\n\n didn't match any of %d expectations",
		indent(d.req.JSON()), len(candidates))
	for _, nm := range misses {
		entry.NearMisses = append(entry.NearMisses, requestlog.NearMissInfo{
			ExpectationID:   nm.ExpectationID,
			MatchPercentage: nm.MatchPercentage,
			Reason:          nm.Reason,
		})
	}
	e.record(entry)
}

func (e *Engine) recordOutcome(d *dispatch, matched *expectation.Expectation, out transport.Outcome) {
	var entry *requestlog.Entry
	if out.Fault != nil {
		entry = d.entry(requestlog.ExpectationResponse, "returning error:\n\n  %+v\n\n for request:\n\n  %s\n\n for action:\n\n  %s\n",
			*out.Fault, indent(d.req.JSON()), matched.Action.Kind())
	} else {
		entry = d.entry(requestlog.ExpectationResponse, "returning response:\n\n  %s\n\n for request:\n\n  %s\n\n for action:\n\n  %s\n",
			indent(out.Response.JSON()), indent(d.req.JSON()), matched.Action.Kind())
		entry.Response = out.Response
	}
	entry.ExpectationID = matched.ID
	e.record(entry)
}

// failure turns an action error into a 5xx response and an EXCEPTION entry.
// Forward errors keep their gateway status.
func (e *Engine) failure(ctx context.Context, d *dispatch, matched *expectation.Expectation, err error) transport.Outcome {
	status := http.StatusInternalServerError
	var fe *transport.ForwardError
	if errors.As(err, &fe) {
		status = fe.StatusCode()
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		e.log.Debug("request cancelled during dispatch", "correlationId", d.correlationID, "expectationId", matched.ID)
	} else {
		e.log.Warn("action failed", "correlationId", d.correlationID, "expectationId", matched.ID,
			"action", matched.Action.Kind(), "error", err)
	}

	entry := d.entry(requestlog.Exception, "exception handling request:\n\n  %s\n\n for action %s:\n\n  %s\n",
		indent(d.req.JSON()), matched.Action.Kind(), err.Error())
	entry.Level = requestlog.LevelError
	entry.ExpectationID = matched.ID
	entry.Error = err.Error()
	e.record(entry)

	return transport.Outcome{Response: &expectation.HTTPResponse{
		StatusCode:   status,
		ReasonPhrase: http.StatusText(status),
	}}
}
