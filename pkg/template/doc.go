// Package template renders response and forward templates.
//
// Two dialects share one data model:
//
//   - MUSTACHE: logic-light interpolation. {{ request.path }},
//     {{ request.headers.host.0 }}, sections {{#request.cookies}}...{{/request.cookies}},
//     inverted sections, comments and the {{#xPath}}/a/b{{/xPath}} and
//     {{#jsonPath}}$.a.b{{/jsonPath}} block helpers. Values are inserted
//     without HTML escaping.
//   - GO_TEMPLATE: text/template with loops and conditionals. The data is
//     {{ .request }} and {{ .now }}; functions include uuid, xPath, jsonPath,
//     expr (expr-lang expressions), json, header, query, cookie, randomInt,
//     randomString, upper, lower, trim and default.
//
// # Data Model
//
//   - request.method, request.path, request.secure, request.keepAlive,
//     request.remoteAddress, request.protocol
//   - request.pathParameters, request.queryStringParameters and
//     request.headers: name to list of values
//   - request.cookies: name to value
//   - request.body: the body as a string
//   - request.json: the body decoded as JSON, when it is JSON
//   - now: ISO-8601 instant, fixed for the whole render
//   - now_epoch, now_rfc_1123: the same instant in other formats
//   - uuid: a fresh UUID every time it is referenced
//
// Time and identifiers come from the engine's id.Source, so tests can
// render deterministically. Parsed templates are cached; every render has
// its own state, so an Engine may be used from any number of goroutines.
//
// Rendered output must be a JSON object shaped like an HttpResponse or an
// HttpRequest. Any parse, evaluation, extraction or decoding failure is a
// *RenderError carrying the template and the request.
package template
