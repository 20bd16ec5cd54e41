// Package expectation defines the data model shared by every expectd
// component: concrete HTTP requests and responses, request matchers,
// expectations and their actions.
//
// The JSON shape of these types follows the MockServer wire format so that
// existing expectation files can be loaded unchanged:
//
//	{
//	  "id": "5f0e…",
//	  "priority": 10,
//	  "httpRequest": {"method": "GET", "path": "/users/{id}"},
//	  "httpResponse": {"statusCode": 200, "body": "ok"},
//	  "times": {"remainingTimes": 2},
//	  "timeToLive": {"timeUnit": "SECONDS", "timeToLive": 60}
//	}
//
// Key types:
//
//   - HTTPRequest / HTTPResponse: concrete messages (inbound, forwarded, templated)
//   - RequestMatcher: predicate over a request, with Str field matchers
//   - Expectation: matcher + Times + TimeToLive + exactly one Action
//   - Action: closed union of Response, ResponseTemplate, Forward,
//     OverrideForwardedRequest, ForwardTemplate, Error and Callback
package expectation
