package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/getmockd/expectd/pkg/expectation"
)

// Expectation requests one expectation per operation of a definition, each
// responding with the example for the chosen status code.
type Expectation struct {
	SpecURLOrPayload expectation.SpecSource `json:"specUrlOrPayload"`

	// OperationsAndResponses maps operationId to a status code or
	// "default". When empty every operation is included and the first
	// success response is used.
	OperationsAndResponses map[string]string `json:"operationsAndResponses,omitempty"`
}

// Expectations generates the expectations described by oe.
func (r *Resolver) Expectations(ctx context.Context, oe *Expectation) ([]*expectation.Expectation, error) {
	spec := string(oe.SpecURLOrPayload)
	doc, err := r.Load(ctx, spec)
	if err != nil {
		return nil, err
	}

	var out []*expectation.Expectation
	for _, op := range doc.Operations {
		status := ""
		if len(oe.OperationsAndResponses) > 0 {
			chosen, ok := oe.OperationsAndResponses[op.ID]
			if !ok || op.ID == "" {
				continue
			}
			status = chosen
		}

		resp, err := ExampleResponse(op, status)
		if err != nil {
			return nil, err
		}

		var matcher *expectation.RequestMatcher
		if op.ID != "" {
			matcher = expectation.OpenAPI(spec, op.ID)
		} else {
			matcher, err = RequestMatcher(op)
			if err != nil {
				return nil, fmt.Errorf("operation %s %s: %w", op.Method, op.Path, err)
			}
		}
		out = append(out, expectation.When(matcher).Then(resp))
	}

	for id := range oe.OperationsAndResponses {
		if _, err := doc.Find(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExampleResponse builds the response for one operation. An empty status
// picks the lowest 2xx response, then "default", then the lowest code.
func ExampleResponse(op *Operation, status string) (*expectation.HTTPResponse, error) {
	responses := map[string]*openapi3.ResponseRef{}
	if op.Op.Responses != nil {
		responses = op.Op.Responses.Map()
	}

	if status == "" {
		status = bestStatus(responses)
	}
	ref, ok := responses[status]
	if !ok && status != "" {
		return nil, fmt.Errorf("operation %q has no %s response", op.ID, status)
	}

	code := http.StatusOK
	if n, err := strconv.Atoi(status); err == nil {
		code = n
	}
	resp := expectation.Response(code)
	if ref == nil || ref.Value == nil {
		return resp, nil
	}

	contentType, media := pickMedia(ref.Value.Content)
	if media == nil {
		return resp, nil
	}
	resp.Headers = resp.Headers.Add("Content-Type", contentType)

	value := mediaExample(media)
	if value == nil {
		return resp, nil
	}
	if s, isString := value.(string); isString && !isJSON(contentType) {
		resp.Body = &expectation.Body{Type: expectation.BodyString, Raw: []byte(s), ContentType: contentType}
		return resp, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding example for %q: %w", op.ID, err)
	}
	resp.Body = &expectation.Body{Type: expectation.BodyJSON, Raw: raw, ContentType: contentType}
	return resp, nil
}

func bestStatus(responses map[string]*openapi3.ResponseRef) string {
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if strings.HasPrefix(code, "2") {
			return code
		}
	}
	if _, ok := responses["default"]; ok {
		return "default"
	}
	if len(codes) > 0 {
		return codes[0]
	}
	return ""
}

func pickMedia(content openapi3.Content) (string, *openapi3.MediaType) {
	if len(content) == 0 {
		return "", nil
	}
	if mt, ok := content["application/json"]; ok {
		return "application/json", mt
	}
	types := make([]string, 0, len(content))
	for t := range content {
		types = append(types, t)
	}
	sort.Strings(types)
	return types[0], content[types[0]]
}

func mediaExample(mt *openapi3.MediaType) any {
	if mt.Example != nil {
		return mt.Example
	}
	if len(mt.Examples) > 0 {
		names := make([]string, 0, len(mt.Examples))
		for name := range mt.Examples {
			names = append(names, name)
		}
		sort.Strings(names)
		if ex := mt.Examples[names[0]]; ex != nil && ex.Value != nil {
			return ex.Value.Value
		}
	}
	return exampleValue(mt.Schema, 0)
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "json")
}
