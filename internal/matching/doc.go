// Package matching evaluates requests against expectation matchers.
//
// A RequestMatcher is a conjunction of field constraints:
//
//   - Method and path: literal or full regular expression, path templates
//     with {name} segments binding path parameters
//   - Headers, cookies, query and path parameters: multi-valued key
//     matchers with SUB_SET or MATCHING_KEY semantics, negated and
//     optional keys
//   - Body: string, regex, JSON (subset or strict), JSON schema, JSONPath,
//     XML, XML schema, XPath, binary and form parameters
//   - Socket address, keep-alive and secure flags
//   - OpenAPI operations, resolved into structural matchers
//
// Any field may be negated and the whole matcher may carry a not flag.
// Matching never fails with an error: invalid patterns simply do not match
// and are rejected earlier when expectations are validated.
//
// Explain and CollectNearMisses report per-field results for requests that
// matched nothing.
package matching
