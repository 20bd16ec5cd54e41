// Package engine dispatches inbound requests against the expectation store
// and exposes the administrative operations over expectations and the
// request log.
//
// # Dispatch
//
// Every request goes through the same states:
//
//	┌──────────┐    ┌──────────┐    ┌─────────┐    ┌───────────┐    ┌───────────┐
//	│ RECEIVED │ ─▶ │ MATCHING │ ─▶ │ MATCHED │ ─▶ │ EXECUTING │ ─▶ │ RESPONDED │
//	└──────────┘    └──────────┘    └─────────┘    └───────────┘    └───────────┘
//	                     │
//	                     ▼
//	               ┌───────────┐    ┌──────────────────┐
//	               │ UNMATCHED │ ─▶ │ DEFAULT_RESPONSE │
//	               └───────────┘    └──────────────────┘
//
// Matching walks the active expectations in selection order (priority,
// then insertion) and consumes one use of the winner in the same step.
// Each state change is recorded in the request log under one correlation
// id. A failing action (template, modifier, forward or callback) produces a
// 5xx response and an EXCEPTION entry for that request only.
//
// # Basic Usage
//
//	eng, err := engine.New(engine.WithMaxLogEntries(10000))
//	if err != nil {
//	    return err
//	}
//	_, err = eng.Upsert(ctx, expectation.When(
//	    expectation.Request().WithMethod("GET").WithPath("/hello"),
//	).Then(&expectation.HTTPResponse{StatusCode: 200, Body: expectation.StringBody("hi")}))
//
//	srv := engine.NewServer(eng, ":1080")
//	go srv.ListenAndServe()
//
//	// later
//	err = eng.Verify(ctx, []verification.Target{
//	    verification.Request(expectation.Request().WithPath("/hello")),
//	}, verification.Once())
package engine
