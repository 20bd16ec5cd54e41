// Package requestlog records what happened to every request for later
// inspection and verification.
//
// It is distinct from operational logging (which uses log/slog for platform
// debugging): entries here are domain events such as a received request, a
// matched expectation, the response returned or an expectation being
// created. Verification and the retrieve operations read entries back.
//
// # Core Types
//
// Entry is a single immutable event. Log is the bounded in-memory store and
// evicts the oldest entry once full. Sink is anything entries can be
// recorded to: Log itself, SlogSink (mirrors entries to a slog.Logger) or
// AsyncSink (hands entries to another sink on a worker pool).
//
// # Usage
//
//	log := requestlog.NewLog(requestlog.WithMaxEntries(1000))
//	log.Record(&requestlog.Entry{
//	    Type:    requestlog.ReceivedRequest,
//	    Request: req,
//	})
//	received := log.List(&requestlog.Filter{Types: []requestlog.EntryType{requestlog.ReceivedRequest}})
package requestlog
