package engine

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/modifier"
	"github.com/getmockd/expectd/pkg/requestlog"
	"github.com/getmockd/expectd/pkg/transport"
)

// execute runs the action of the matched expectation. Every action variant
// must have a case here.
func (e *Engine) execute(ctx context.Context, d *dispatch, matched *expectation.Expectation) (transport.Outcome, error) {
	var (
		resp *expectation.HTTPResponse
		err  error
	)
	switch a := matched.Action.(type) {
	case *expectation.HTTPResponse:
		resp, err = e.respond(ctx, a)
	case *expectation.ResponseTemplate:
		resp, err = e.respondTemplate(ctx, d, a)
	case *expectation.ForwardTemplate:
		resp, err = e.forwardTemplate(ctx, d, matched.ID, a)
	case *expectation.HTTPForward:
		resp, err = e.forwardPlain(ctx, d, matched.ID, a)
	case *expectation.OverrideForwardedRequest:
		resp, err = e.forwardOverride(ctx, d, matched.ID, a)
	case *expectation.HTTPError:
		if err := sleep(ctx, a.Delay); err != nil {
			return transport.Outcome{}, err
		}
		return transport.Outcome{Fault: a}, nil
	case *expectation.HTTPCallback:
		resp, err = e.callback(ctx, d, a)
	default:
		panic(fmt.Sprintf("engine: unhandled action type %T", matched.Action))
	}
	if err != nil {
		return transport.Outcome{}, err
	}
	return transport.Outcome{Response: resp}, nil
}

func (e *Engine) respond(ctx context.Context, a *expectation.HTTPResponse) (*expectation.HTTPResponse, error) {
	if err := sleep(ctx, a.Delay); err != nil {
		return nil, err
	}
	resp := a.Clone()
	resp.Delay = nil
	return resp, nil
}

func (e *Engine) respondTemplate(ctx context.Context, d *dispatch, a *expectation.ResponseTemplate) (*expectation.HTTPResponse, error) {
	resp, out, err := e.templates.RenderResponse(a.Template, d.req)
	if err != nil {
		return nil, err
	}
	e.record(d.entry(requestlog.TemplateGenerated, "generated output:\n\n  %s\n\n from template:\n\n  %s\n\n for request:\n\n  %s\n",
		indent(out), indent(a.Template.Template), indent(d.req.JSON())))

	if err := sleep(ctx, a.Delay); err != nil {
		return nil, err
	}
	if err := sleep(ctx, resp.Delay); err != nil {
		return nil, err
	}
	resp.Delay = nil
	return resp, nil
}

func (e *Engine) forwardTemplate(ctx context.Context, d *dispatch, expectationID string, a *expectation.ForwardTemplate) (*expectation.HTTPResponse, error) {
	fwd, out, err := e.templates.RenderRequest(a.Template, d.req)
	if err != nil {
		return nil, err
	}
	e.record(d.entry(requestlog.TemplateGenerated, "generated output:\n\n  %s\n\n from template:\n\n  %s\n\n for request:\n\n  %s\n",
		indent(out), indent(a.Template.Template), indent(d.req.JSON())))

	resp, err := e.forward(ctx, d, expectationID, fwd, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := sleep(ctx, a.Delay); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) forwardPlain(ctx context.Context, d *dispatch, expectationID string, a *expectation.HTTPForward) (*expectation.HTTPResponse, error) {
	target := &expectation.SocketAddress{Host: a.Host, Port: a.Port, Scheme: a.Scheme}
	out := d.req.Clone()
	out.Headers = out.Headers.Set("Host", true, hostHeader(target))

	resp, err := e.forward(ctx, d, expectationID, out, target, a.Retry)
	if err != nil {
		return nil, err
	}
	if err := sleep(ctx, a.Delay); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) forwardOverride(ctx context.Context, d *dispatch, expectationID string, a *expectation.OverrideForwardedRequest) (*expectation.HTTPResponse, error) {
	out := mergeRequest(d.req, a.RequestOverride)
	out, err := modifier.ApplyRequest(out, a.RequestModifier)
	if err != nil {
		return nil, err
	}

	var target *expectation.SocketAddress
	if a.RequestOverride != nil && a.RequestOverride.SocketAddress != nil {
		target = a.RequestOverride.SocketAddress
	}
	resp, err := e.forward(ctx, d, expectationID, out, target, a.Retry)
	if err != nil {
		return nil, err
	}
	if err := sleep(ctx, a.Delay); err != nil {
		return nil, err
	}

	resp = mergeResponse(resp, a.ResponseOverride)
	return modifier.ApplyResponse(resp, a.ResponseModifier), nil
}

// forward sends req upstream and records the exchange as a FORWARDED_REQUEST
// entry, which is what recorded expectations are built from.
func (e *Engine) forward(ctx context.Context, d *dispatch, expectationID string, req *expectation.HTTPRequest, target *expectation.SocketAddress, policy *expectation.RetryPolicy) (*expectation.HTTPResponse, error) {
	resp, err := e.client.Send(ctx, req, target, policy)
	e.metrics.forwarded(resp, err)
	if err != nil {
		return nil, err
	}
	entry := &requestlog.Entry{
		Type:          requestlog.ForwardedRequest,
		CorrelationID: d.correlationID,
		Request:       req,
		Response:      resp,
		ExpectationID: expectationID,
		MessageFormat: "returning response:\n\n  %s\n\n for forwarded request\n\n in json:\n\n  %s\n",
		Arguments:     []any{indent(resp.JSON()), indent(req.JSON())},
	}
	e.record(entry)
	return resp.Clone(), nil
}

func (e *Engine) callback(ctx context.Context, d *dispatch, a *expectation.HTTPCallback) (*expectation.HTTPResponse, error) {
	cb, ok := e.callbacks.Lookup(a.ClientID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCallbackNotFound, a.ClientID)
	}
	resp, err := cb.Handle(ctx, d.req.Clone())
	if err != nil {
		return nil, fmt.Errorf("callback %q: %w", a.ClientID, err)
	}
	if err := sleep(ctx, a.Delay); err != nil {
		return nil, err
	}
	if resp == nil {
		return expectation.NotFound(), nil
	}
	return resp, nil
}

// sleep waits for the delay or until ctx is done.
func sleep(ctx context.Context, d *expectation.Delay) error {
	dur := d.Duration()
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// mergeRequest applies the fields set on override to a copy of base.
// Override headers, cookies and query parameters replace same-named ones.
func mergeRequest(base, override *expectation.HTTPRequest) *expectation.HTTPRequest {
	out := base.Clone()
	if override == nil {
		return out
	}
	if override.Method != "" {
		out.Method = override.Method
	}
	if override.Path != "" {
		out.Path = override.Path
	}
	out.QueryStringParameters = mergeKeys(out.QueryStringParameters, override.QueryStringParameters, false)
	out.Headers = mergeKeys(out.Headers, override.Headers, true)
	out.Cookies = mergeKeys(out.Cookies, override.Cookies, true)
	if override.Body != nil {
		out.Body = override.Body.Clone()
	}
	if override.Secure != nil {
		v := *override.Secure
		out.Secure = &v
	}
	if override.KeepAlive != nil {
		v := *override.KeepAlive
		out.KeepAlive = &v
	}
	switch {
	case override.SocketAddress != nil:
		sa := *override.SocketAddress
		out.SocketAddress = &sa
		if !override.Headers.Has("Host", true) {
			out.Headers = out.Headers.Set("Host", true, hostHeader(&sa))
		}
	case override.Headers.Has("Host", true):
		// The inbound socket address points back at this server; the new
		// Host header decides the target.
		out.SocketAddress = nil
	}
	return out
}

// mergeResponse applies the fields set on override to the upstream
// response.
func mergeResponse(upstream, override *expectation.HTTPResponse) *expectation.HTTPResponse {
	if override == nil {
		return upstream
	}
	out := upstream.Clone()
	if override.StatusCode != 0 {
		out.StatusCode = override.StatusCode
		out.ReasonPhrase = override.ReasonPhrase
	} else if override.ReasonPhrase != "" {
		out.ReasonPhrase = override.ReasonPhrase
	}
	out.Headers = mergeKeys(out.Headers, override.Headers, true)
	out.Cookies = mergeKeys(out.Cookies, override.Cookies, true)
	if override.Body != nil {
		out.Body = override.Body.Clone()
	}
	if override.ConnectionOptions != nil {
		co := *override.ConnectionOptions
		out.ConnectionOptions = &co
	}
	return out
}

func mergeKeys(base, override expectation.Multimap, fold bool) expectation.Multimap {
	for _, entry := range override {
		base = base.Set(entry.Name, fold, entry.Values...)
	}
	return base
}

func hostHeader(sa *expectation.SocketAddress) string {
	if sa.Port <= 0 {
		return sa.Host
	}
	return net.JoinHostPort(sa.Host, strconv.Itoa(sa.Port))
}

// indent shifts continuation lines of multi-line values under the log
// message's two-space margin.
func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}
