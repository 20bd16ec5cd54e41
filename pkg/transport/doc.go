// Package transport connects the dispatch pipeline to net/http.
//
// Handler converts inbound *http.Request values into expectation requests,
// hands them to a Dispatcher and writes the outcome back: a response, or a
// connection-level fault. Client forwards requests to upstream servers over
// HTTP/1.1 or HTTP/2 with an optional retry policy.
package transport
