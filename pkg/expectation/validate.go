package expectation

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/beevik/etree"
	"github.com/hashicorp/go-multierror"
	"github.com/ohler55/ojg/jp"

	"github.com/getmockd/expectd/pkg/validation"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate checks that every matcher and action of the expectation can be
// evaluated: explicit regexes and schemas compile, JSON and XML documents
// parse, JSONPath and XPath expressions compile and exactly one action is
// set. All problems are reported together.
func (e *Expectation) Validate(schemas *validation.Validator) error {
	if schemas == nil {
		schemas = validation.NewValidator()
	}
	var result *multierror.Error
	add := func(field, format string, args ...any) {
		result = multierror.Append(result, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if e.HTTPRequest != nil {
		validateMatcher("httpRequest", e.HTTPRequest, schemas, add)
	}

	if e.Times != nil && !e.Times.Unlimited && e.Times.RemainingTimes < 0 {
		add("times.remainingTimes", "must not be negative, got %d", e.Times.RemainingTimes)
	}
	if ttl := e.TimeToLive; ttl != nil {
		if !validTimeUnit(ttl.TimeUnit) {
			add("timeToLive.timeUnit", "unknown time unit %q", ttl.TimeUnit)
		}
		if ttl.TimeToLive < 0 {
			add("timeToLive.timeToLive", "must not be negative")
		}
	}

	validateAction(e.Action, add)

	if result == nil {
		return nil
	}
	result.ErrorFormat = formatErrors
	return result
}

func formatErrors(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(errs))
	for _, err := range errs {
		msg += "\n  * " + err.Error()
	}
	return msg
}

type addFunc func(field, format string, args ...any)

// ValidateMatcher checks a standalone matcher, as used by clear and
// verification requests.
func ValidateMatcher(m *RequestMatcher, schemas *validation.Validator) error {
	if m == nil {
		return nil
	}
	if schemas == nil {
		schemas = validation.NewValidator()
	}
	var result *multierror.Error
	validateMatcher("httpRequest", m, schemas, func(field, format string, args ...any) {
		result = multierror.Append(result, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	})
	if result == nil {
		return nil
	}
	result.ErrorFormat = formatErrors
	return result
}

func validateMatcher(field string, m *RequestMatcher, schemas *validation.Validator, add addFunc) {
	if m.IsOpenAPI() {
		return
	}
	validateStr(field+".method", m.Method, schemas, add)
	validateStr(field+".path", m.Path, schemas, add)
	validateKeys(field+".pathParameters", m.PathParameters, schemas, add)
	validateKeys(field+".queryStringParameters", m.QueryStringParameters, schemas, add)
	validateKeys(field+".headers", m.Headers, schemas, add)
	validateKeys(field+".cookies", m.Cookies, schemas, add)
	if m.Body != nil {
		validateBody(field+".body", m.Body, schemas, add)
	}
}

func validateStr(field string, s *Str, schemas *validation.Validator, add addFunc) {
	if s == nil || !s.IsSchema() {
		return
	}
	if err := schemas.Compile(validation.JSONSchema, string(s.Schema)); err != nil {
		add(field, "%v", err)
	}
}

func validateKeys(field string, km *KeyMatchers, schemas *validation.Validator, add addFunc) {
	if km == nil {
		return
	}
	switch km.Style {
	case "", SubSet, MatchingKey:
	default:
		add(field+".keyMatchStyle", "unknown key match style %q", km.Style)
	}
	for i, e := range km.Entries {
		name := e.Name
		validateStr(fmt.Sprintf("%s[%d].name", field, i), &name, schemas, add)
		for j := range e.Values {
			validateStr(fmt.Sprintf("%s[%d].values[%d]", field, i, j), &e.Values[j], schemas, add)
		}
	}
}

func validateBody(field string, b *BodyMatcher, schemas *validation.Validator, add addFunc) {
	switch b.Type {
	case BodyString, BodyBinary:
	case BodyRegex:
		if _, err := regexp.Compile(b.Value); err != nil {
			add(field+".regex", "invalid regular expression: %v", err)
		}
	case BodyJSON:
		if !json.Valid([]byte(b.Value)) {
			add(field+".json", "invalid JSON document")
		}
		switch b.MatchType {
		case "", Strict, OnlyMatchingFields:
		default:
			add(field+".matchType", "unknown match type %q", b.MatchType)
		}
	case BodyJSONSchema:
		if err := schemas.Compile(validation.JSONSchema, b.Value); err != nil {
			add(field+".jsonSchema", "%v", err)
		}
	case BodyJSONPath:
		if _, err := jp.ParseString(b.Value); err != nil {
			add(field+".jsonPath", "invalid JSONPath expression: %v", err)
		}
	case BodyXPath:
		if _, err := etree.CompilePath(b.Value); err != nil {
			add(field+".xpath", "invalid XPath expression: %v", err)
		}
	case BodyXML:
		if err := etree.NewDocument().ReadFromString(b.Value); err != nil {
			add(field+".xml", "invalid XML document: %v", err)
		}
	case BodyXMLSchema:
		if err := schemas.Compile(validation.XMLSchema, b.Value); err != nil {
			add(field+".xmlSchema", "%v", err)
		}
	case BodyParameters:
		validateKeys(field+".parameters", b.Parameters, schemas, add)
	default:
		add(field+".type", "unknown body type %q", b.Type)
	}
}

func validateAction(action Action, add addFunc) {
	if action == nil {
		add("action", "an action is required")
		return
	}
	switch a := action.(type) {
	case *HTTPResponse:
		if a.StatusCode != 0 && (a.StatusCode < 100 || a.StatusCode > 999) {
			add("httpResponse.statusCode", "invalid status code %d", a.StatusCode)
		}
		validateDelay("httpResponse.delay", a.Delay, add)
	case *ResponseTemplate:
		validateTemplate("httpResponseTemplate", a.Template, add)
	case *ForwardTemplate:
		validateTemplate("httpForwardTemplate", a.Template, add)
	case *HTTPForward:
		if a.Host == "" {
			add("httpForward.host", "host is required")
		}
		validatePort("httpForward.port", a.Port, add)
		validateScheme("httpForward.scheme", a.Scheme, add)
		validateDelay("httpForward.delay", a.Delay, add)
	case *OverrideForwardedRequest:
		if a.RequestOverride != nil && a.RequestOverride.SocketAddress != nil {
			validatePort("httpOverrideForwardedRequest.httpRequest.socketAddress.port", a.RequestOverride.SocketAddress.Port, add)
			validateScheme("httpOverrideForwardedRequest.httpRequest.socketAddress.scheme", a.RequestOverride.SocketAddress.Scheme, add)
		}
		if a.RequestModifier != nil && a.RequestModifier.Path != nil {
			if _, err := regexp.Compile(a.RequestModifier.Path.Regex); err != nil {
				add("httpOverrideForwardedRequest.requestModifier.path.regex", "invalid regular expression: %v", err)
			}
		}
		validateDelay("httpOverrideForwardedRequest.delay", a.Delay, add)
	case *HTTPError:
		validateDelay("httpError.delay", a.Delay, add)
	case *HTTPCallback:
		if a.ClientID == "" {
			add("httpResponseObjectCallback.clientId", "clientId is required")
		}
		validateDelay("httpResponseObjectCallback.delay", a.Delay, add)
	default:
		add("action", "unsupported action type %T", action)
	}
}

func validateTemplate(field string, t Template, add addFunc) {
	switch t.TemplateType {
	case Mustache, GoTemplate:
	default:
		add(field+".templateType", "unknown template type %q", t.TemplateType)
	}
	if t.Template == "" {
		add(field+".template", "template is required")
	}
	validateDelay(field+".delay", t.Delay, add)
}

func validatePort(field string, port int, add addFunc) {
	if port < 0 || port > 65535 {
		add(field, "port %d out of range", port)
	}
}

func validateScheme(field string, scheme Scheme, add addFunc) {
	switch scheme {
	case "", SchemeHTTP, SchemeHTTPS:
	default:
		add(field, "unknown scheme %q", scheme)
	}
}

func validateDelay(field string, d *Delay, add addFunc) {
	if d == nil {
		return
	}
	if !validTimeUnit(d.TimeUnit) {
		add(field+".timeUnit", "unknown time unit %q", d.TimeUnit)
	}
	if d.Value < 0 {
		add(field+".value", "must not be negative")
	}
}
