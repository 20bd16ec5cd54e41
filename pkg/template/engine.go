package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ohler55/ojg/sen"

	"github.com/getmockd/expectd/internal/id"
	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/logging"
)

// ErrUnknownDialect is returned for template types other than MUSTACHE and
// GO_TEMPLATE.
var ErrUnknownDialect = errors.New("unknown template type")

// RenderError reports a template that could not be rendered or whose output
// is not a valid action.
type RenderError struct {
	Dialect  expectation.TemplateType
	Template string
	Request  string
	Err      error
}

func (e *RenderError) Error() string {
	var b strings.Builder
	b.WriteString("Exception:\n\n  ")
	b.WriteString(e.Err.Error())
	b.WriteString("\n\n transforming template:\n\n  ")
	b.WriteString(e.Template)
	b.WriteString("\n\n for request:\n\n  ")
	b.WriteString(strings.ReplaceAll(e.Request, "\n", "\n  "))
	b.WriteString("\n")
	return b.String()
}

func (e *RenderError) Unwrap() error { return e.Err }

// Engine renders templates in both dialects. It is safe for concurrent use.
type Engine struct {
	source id.Source
	log    *slog.Logger

	mustache sync.Map // string -> []node
	gotmpl   sync.Map // string -> *template.Template
	exprs    sync.Map // string -> *vm.Program
}

// New creates an Engine drawing time and identifiers from source. A nil
// source uses the system clock and random UUIDs.
func New(source id.Source) *Engine {
	if source == nil {
		source = id.System()
	}
	return &Engine{source: source, log: logging.Nop()}
}

// SetLogger sets the operational logger.
func (e *Engine) SetLogger(log *slog.Logger) {
	if log != nil {
		e.log = log
	}
}

// Compile parses the template and caches the result, reporting syntax
// errors without rendering.
func (e *Engine) Compile(t expectation.Template) error {
	switch t.TemplateType {
	case expectation.Mustache:
		_, err := e.parseMustache(t.Template)
		return err
	case expectation.GoTemplate:
		_, err := e.parseGoTemplate(t.Template)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDialect, t.TemplateType)
	}
}

// Render evaluates the template against req and returns the raw output.
func (e *Engine) Render(t expectation.Template, req *expectation.HTTPRequest) (string, error) {
	if req == nil {
		req = &expectation.HTTPRequest{}
	}
	out, err := e.render(t, req)
	if err != nil {
		return "", e.renderError(t, req, err)
	}
	return out, nil
}

func (e *Engine) render(t expectation.Template, req *expectation.HTTPRequest) (string, error) {
	model := newModel(req, e.source.Now())
	switch t.TemplateType {
	case expectation.Mustache:
		nodes, err := e.parseMustache(t.Template)
		if err != nil {
			return "", err
		}
		return e.renderMustache(nodes, model, req)
	case expectation.GoTemplate:
		tmpl, err := e.parseGoTemplate(t.Template)
		if err != nil {
			return "", err
		}
		return e.renderGoTemplate(tmpl, model, req)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, t.TemplateType)
	}
}

// RenderResponse renders the template and decodes the output as a response.
func (e *Engine) RenderResponse(t expectation.Template, req *expectation.HTTPRequest) (*expectation.HTTPResponse, string, error) {
	out, err := e.Render(t, req)
	if err != nil {
		return nil, "", err
	}
	var resp expectation.HTTPResponse
	if err := decodeOutput(out, &resp); err != nil {
		return nil, out, e.renderError(t, req, fmt.Errorf("output is not a valid response: %w", err))
	}
	return &resp, out, nil
}

// RenderRequest renders the template and decodes the output as the request
// to forward.
func (e *Engine) RenderRequest(t expectation.Template, req *expectation.HTTPRequest) (*expectation.HTTPRequest, string, error) {
	out, err := e.Render(t, req)
	if err != nil {
		return nil, "", err
	}
	var forward expectation.HTTPRequest
	if err := decodeOutput(out, &forward); err != nil {
		return nil, out, e.renderError(t, req, fmt.Errorf("output is not a valid request: %w", err))
	}
	return &forward, out, nil
}

func (e *Engine) renderError(t expectation.Template, req *expectation.HTTPRequest, err error) error {
	var re *RenderError
	if errors.As(err, &re) {
		return err
	}
	return &RenderError{
		Dialect:  t.TemplateType,
		Template: t.Template,
		Request:  req.JSON(),
		Err:      err,
	}
}

// decodeOutput decodes a rendered action. Output that is not JSON is read
// as SEN, which also accepts single-quoted strings and unquoted keys, and
// re-encoded before decoding. Exactly one value is allowed.
func decodeOutput(out string, v any) error {
	data := []byte(out)
	if !json.Valid(data) {
		parsed, err := sen.Parse(data)
		if err != nil {
			return err
		}
		if data, err = json.Marshal(parsed); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, v)
}
