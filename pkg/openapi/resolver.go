// Package openapi turns OpenAPI definitions into request matchers and
// expectations.
//
// A definition is referenced by a URL, a file path or the document itself.
// Loaded documents are cached by that reference and concurrent loads of the
// same reference are collapsed into one.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/sync/singleflight"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/logging"
)

// ErrOperationNotFound is returned when an operationId is not defined.
var ErrOperationNotFound = errors.New("operation not found")

// Operation is one method on one path of a loaded document.
type Operation struct {
	ID     string
	Method string
	Path   string
	Op     *openapi3.Operation
	// Parameters merges path-item and operation parameters; the operation
	// wins on name and location clashes.
	Parameters openapi3.Parameters
}

// Document is a loaded definition with its operations in a stable order.
type Document struct {
	Spec       *openapi3.T
	Operations []*Operation
}

// Find returns the operations selected by operationID. An empty id selects
// all operations.
func (d *Document) Find(operationID string) ([]*Operation, error) {
	if operationID == "" {
		return d.Operations, nil
	}
	for _, op := range d.Operations {
		if op.ID == operationID {
			return []*Operation{op}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrOperationNotFound, operationID)
}

// Resolver loads definitions and converts operations. It is safe for
// concurrent use.
type Resolver struct {
	group singleflight.Group
	docs  sync.Map // spec -> *Document
	log   *slog.Logger
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{log: logging.Nop()}
}

// SetLogger sets the operational logger.
func (r *Resolver) SetLogger(log *slog.Logger) {
	if log != nil {
		r.log = log
	}
}

// Load returns the document for spec, loading it on first use.
func (r *Resolver) Load(ctx context.Context, spec string) (*Document, error) {
	if cached, ok := r.docs.Load(spec); ok {
		return cached.(*Document), nil
	}
	v, err, _ := r.group.Do(spec, func() (any, error) {
		if cached, ok := r.docs.Load(spec); ok {
			return cached, nil
		}
		doc, err := load(ctx, spec)
		if err != nil {
			return nil, err
		}
		r.docs.Store(spec, doc)
		r.log.Debug("loaded openapi definition", "operations", len(doc.Operations))
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Document), nil
}

func load(ctx context.Context, spec string) (*Document, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx

	var (
		t   *openapi3.T
		err error
	)
	switch {
	case expectation.SpecSource(spec).IsInline():
		t, err = loader.LoadFromData([]byte(spec))
	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"), strings.HasPrefix(spec, "file:"):
		var u *url.URL
		u, err = url.Parse(spec)
		if err == nil {
			t, err = loader.LoadFromURI(u)
		}
	default:
		t, err = loader.LoadFromFile(spec)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi definition %s: %w", describe(spec), err)
	}
	if err := t.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi definition %s: %w", describe(spec), err)
	}
	return &Document{Spec: t, Operations: operations(t)}, nil
}

// describe shortens inline documents for error messages.
func describe(spec string) string {
	if expectation.SpecSource(spec).IsInline() {
		return "(inline)"
	}
	return spec
}

var methodOrder = map[string]int{
	"GET": 0, "PUT": 1, "POST": 2, "DELETE": 3, "OPTIONS": 4, "HEAD": 5, "PATCH": 6, "TRACE": 7, "CONNECT": 8,
}

func operations(t *openapi3.T) []*Operation {
	if t.Paths == nil {
		return nil
	}
	items := t.Paths.Map()
	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []*Operation
	for _, p := range paths {
		item := items[p]
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		sort.Slice(methods, func(i, j int) bool { return methodOrder[methods[i]] < methodOrder[methods[j]] })
		for _, m := range methods {
			op := ops[m]
			out = append(out, &Operation{
				ID:         op.OperationID,
				Method:     m,
				Path:       p,
				Op:         op,
				Parameters: mergeParameters(item.Parameters, op.Parameters),
			})
		}
	}
	return out
}

func mergeParameters(pathLevel, opLevel openapi3.Parameters) openapi3.Parameters {
	out := make(openapi3.Parameters, 0, len(pathLevel)+len(opLevel))
	for _, p := range pathLevel {
		if p == nil || p.Value == nil || opLevel.GetByInAndName(p.Value.In, p.Value.Name) != nil {
			continue
		}
		out = append(out, p)
	}
	for _, p := range opLevel {
		if p != nil && p.Value != nil {
			out = append(out, p)
		}
	}
	return out
}

// ResolveOperation converts the selected operations of spec into request
// matchers.
func (r *Resolver) ResolveOperation(ctx context.Context, spec string, operationID string) ([]*expectation.RequestMatcher, error) {
	doc, err := r.Load(ctx, spec)
	if err != nil {
		return nil, err
	}
	ops, err := doc.Find(operationID)
	if err != nil {
		return nil, err
	}
	matchers := make([]*expectation.RequestMatcher, 0, len(ops))
	for _, op := range ops {
		m, err := RequestMatcher(op)
		if err != nil {
			return nil, fmt.Errorf("operation %s %s: %w", op.Method, op.Path, err)
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// RequestMatcher converts one operation. Path templates bind path
// parameters; parameter and body schemas become schema matchers; optional
// parameters become optional keys.
func RequestMatcher(op *Operation) (*expectation.RequestMatcher, error) {
	m := expectation.Request().WithMethod(op.Method).WithPath(op.Path)

	for _, ref := range op.Parameters {
		p := ref.Value
		schema, err := schemaString(p.Schema)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		name := expectation.String(p.Name)
		if !p.Required && p.In != openapi3.ParameterInPath {
			name = expectation.Optional(p.Name)
		}
		values := []expectation.Str{}
		if schema != "" {
			values = append(values, expectation.SchemaString(schema))
		}

		switch p.In {
		case openapi3.ParameterInPath:
			m.PathParameters = with(m.PathParameters, name, values)
		case openapi3.ParameterInQuery:
			m.QueryStringParameters = with(m.QueryStringParameters, name, values)
		case openapi3.ParameterInHeader:
			m.Headers = with(m.Headers, name, values)
		case openapi3.ParameterInCookie:
			m.Cookies = with(m.Cookies, name, values)
		}
	}

	if op.Op.RequestBody != nil && op.Op.RequestBody.Value != nil {
		body := op.Op.RequestBody.Value
		if mt := body.Content.Get("application/json"); mt != nil && mt.Schema != nil {
			schema, err := schemaString(mt.Schema)
			if err != nil {
				return nil, fmt.Errorf("request body: %w", err)
			}
			bm := expectation.JSONSchemaBody(schema)
			bm.Optional = !body.Required
			m.WithBody(bm)
		}
	}
	return m, nil
}

func with(km *expectation.KeyMatchers, name expectation.Str, values []expectation.Str) *expectation.KeyMatchers {
	if km == nil {
		km = &expectation.KeyMatchers{Style: expectation.SubSet}
	}
	return km.With(name, values...)
}
