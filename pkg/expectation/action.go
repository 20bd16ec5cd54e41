package expectation

// ActionKind names an Action variant.
type ActionKind string

const (
	KindResponse         ActionKind = "RESPONSE"
	KindResponseTemplate ActionKind = "RESPONSE_TEMPLATE"
	KindForward          ActionKind = "FORWARD"
	KindForwardOverride  ActionKind = "FORWARD_REPLACE"
	KindForwardTemplate  ActionKind = "FORWARD_TEMPLATE"
	KindError            ActionKind = "ERROR"
	KindCallback         ActionKind = "RESPONSE_OBJECT_CALLBACK"
)

// Action is what an expectation does when it matches. The set of variants
// is closed: only types in this package implement it.
type Action interface {
	Kind() ActionKind
	GetDelay() *Delay
	action()
}

func (*HTTPResponse) Kind() ActionKind   { return KindResponse }
func (r *HTTPResponse) GetDelay() *Delay { return r.Delay }
func (*HTTPResponse) action()            {}

// TemplateType selects a template dialect.
type TemplateType string

const (
	// Mustache is the logic-light interpolation dialect.
	Mustache TemplateType = "MUSTACHE"
	// GoTemplate is the logic-ful dialect based on text/template.
	GoTemplate TemplateType = "GO_TEMPLATE"
)

// Template is the source shared by the two template actions. The rendered
// output must be JSON shaped like an HTTPResponse or an HTTPRequest.
type Template struct {
	TemplateType TemplateType `json:"templateType"`
	Template     string       `json:"template"`
	Delay        *Delay       `json:"delay,omitempty"`
}

// ResponseTemplate renders the response from the request.
type ResponseTemplate struct {
	Template
}

func (*ResponseTemplate) Kind() ActionKind   { return KindResponseTemplate }
func (t *ResponseTemplate) GetDelay() *Delay { return t.Delay }
func (*ResponseTemplate) action()            {}

// ForwardTemplate renders the request to forward.
type ForwardTemplate struct {
	Template
}

func (*ForwardTemplate) Kind() ActionKind   { return KindForwardTemplate }
func (t *ForwardTemplate) GetDelay() *Delay { return t.Delay }
func (*ForwardTemplate) action()            {}

// RetryPolicy enables retries of failed forwards. Without one a forward
// failure is surfaced once.
type RetryPolicy struct {
	Attempts uint   `json:"attempts"`
	Delay    *Delay `json:"delay,omitempty"`
}

// HTTPForward proxies the request unchanged to Host:Port.
type HTTPForward struct {
	Host   string       `json:"host"`
	Port   int          `json:"port,omitempty"`
	Scheme Scheme       `json:"scheme,omitempty"`
	Delay  *Delay       `json:"delay,omitempty"`
	Retry  *RetryPolicy `json:"retry,omitempty"`
}

func (*HTTPForward) Kind() ActionKind   { return KindForward }
func (f *HTTPForward) GetDelay() *Delay { return f.Delay }
func (*HTTPForward) action()            {}

// OverrideForwardedRequest forwards the request after merging
// RequestOverride onto it and applying RequestModifier, then merges
// ResponseOverride onto the upstream response and applies ResponseModifier.
type OverrideForwardedRequest struct {
	RequestOverride  *HTTPRequest      `json:"httpRequest,omitempty"`
	RequestModifier  *RequestModifier  `json:"requestModifier,omitempty"`
	ResponseOverride *HTTPResponse     `json:"httpResponse,omitempty"`
	ResponseModifier *ResponseModifier `json:"responseModifier,omitempty"`
	Delay            *Delay            `json:"delay,omitempty"`
	Retry            *RetryPolicy      `json:"retry,omitempty"`
}

func (*OverrideForwardedRequest) Kind() ActionKind   { return KindForwardOverride }
func (o *OverrideForwardedRequest) GetDelay() *Delay { return o.Delay }
func (*OverrideForwardedRequest) action()            {}

// HTTPError injects a connection-level fault instead of a response.
type HTTPError struct {
	DropConnection bool   `json:"dropConnection,omitempty"`
	ResponseBytes  []byte `json:"responseBytes,omitempty"`
	Delay          *Delay `json:"delay,omitempty"`
}

func (*HTTPError) Kind() ActionKind   { return KindError }
func (e *HTTPError) GetDelay() *Delay { return e.Delay }
func (*HTTPError) action()            {}

// HTTPCallback delegates response generation to a handler registered under
// ClientID.
type HTTPCallback struct {
	ClientID string `json:"clientId"`
	Delay    *Delay `json:"delay,omitempty"`
}

func (*HTTPCallback) Kind() ActionKind   { return KindCallback }
func (c *HTTPCallback) GetDelay() *Delay { return c.Delay }
func (*HTTPCallback) action()            {}

var (
	_ Action = (*HTTPResponse)(nil)
	_ Action = (*ResponseTemplate)(nil)
	_ Action = (*ForwardTemplate)(nil)
	_ Action = (*HTTPForward)(nil)
	_ Action = (*OverrideForwardedRequest)(nil)
	_ Action = (*HTTPError)(nil)
	_ Action = (*HTTPCallback)(nil)
)
