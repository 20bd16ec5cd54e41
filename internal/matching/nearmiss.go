package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getmockd/expectd/pkg/expectation"
)

// FieldResult describes whether a single matcher field matched the request.
type FieldResult struct {
	Field    string `json:"field"`
	Matched  bool   `json:"matched"`
	Score    int    `json:"score"`
	MaxScore int    `json:"maxScore"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
	Details  any    `json:"details,omitempty"`
}

// NearMiss is an expectation that partially matched a request.
type NearMiss struct {
	ExpectationID    string        `json:"expectationId,omitempty"`
	Score            int           `json:"score"`
	MaxPossibleScore int           `json:"maxPossibleScore"`
	MatchPercentage  int           `json:"matchPercentage"`
	Fields           []FieldResult `json:"fields"`
	Reason           string        `json:"reason"`
}

// Explain evaluates every field of the matcher against the request without
// short-circuiting. Only fields that the matcher constrains are reported.
func (m *Matcher) Explain(ctx context.Context, rm *expectation.RequestMatcher, req *expectation.HTTPRequest) *NearMiss {
	result := &NearMiss{}
	if rm == nil {
		result.Reason = GenerateReason(nil)
		return result
	}
	if req == nil {
		req = &expectation.HTTPRequest{}
	}

	allMatched := true
	for _, c := range m.checks(ctx, rm, req) {
		matched := c.eval()
		if !matched {
			allMatched = false
		}
		fr := FieldResult{
			Field:    c.field,
			Matched:  matched,
			MaxScore: c.weight,
			Expected: c.expected,
			Actual:   c.actual(),
		}
		switch {
		case c.details != nil:
			fr.Details, fr.Score = c.details()
		case matched:
			fr.Score = c.weight
		}
		result.Fields = append(result.Fields, fr)
		result.Score += fr.Score
		result.MaxPossibleScore += fr.MaxScore
	}

	if rm.Not {
		// The inverted matcher fails exactly when every field matched.
		result.Fields = append(result.Fields, FieldResult{
			Field:   "not",
			Matched: !allMatched,
		})
	}

	if result.MaxPossibleScore > 0 {
		result.MatchPercentage = (result.Score * 100) / result.MaxPossibleScore
	}
	result.Reason = GenerateReason(result.Fields)
	return result
}

// CollectNearMisses evaluates the expectations against the request and
// returns the top N by partial match score. Only expectations with at least
// one matched field are included. It is only meant for requests that
// matched nothing.
func (m *Matcher) CollectNearMisses(ctx context.Context, candidates []*expectation.Expectation, req *expectation.HTTPRequest, topN int) []NearMiss {
	if topN <= 0 {
		topN = DefaultNearMisses
	}

	var misses []NearMiss
	for _, e := range candidates {
		if e == nil {
			continue
		}
		nm := m.Explain(ctx, e.Matcher(), req)
		if nm.Score == 0 {
			continue
		}
		nm.ExpectationID = e.ID
		misses = append(misses, *nm)
	}

	sort.SliceStable(misses, func(i, j int) bool {
		if misses[i].Score != misses[j].Score {
			return misses[i].Score > misses[j].Score
		}
		return misses[i].MatchPercentage > misses[j].MatchPercentage
	})

	if len(misses) > topN {
		misses = misses[:topN]
	}
	return misses
}

// GenerateReason names the fields that matched and the first one that did
// not.
func GenerateReason(fields []FieldResult) string {
	if len(fields) == 0 {
		return "no fields to compare"
	}

	var matched []string
	var firstMismatch *FieldResult

	for i := range fields {
		if fields[i].Matched {
			matched = append(matched, fields[i].Field)
		} else if firstMismatch == nil {
			firstMismatch = &fields[i]
		}
	}

	if firstMismatch == nil {
		return "all specified fields matched"
	}

	if len(matched) == 0 {
		return formatMismatch(firstMismatch)
	}

	return joinFields(matched) + " matched, but " + formatMismatch(firstMismatch)
}

func formatMismatch(f *FieldResult) string {
	switch f.Field {
	case "method", "path", "socketAddress":
		return fmt.Sprintf("%s expected %q, got %q", f.Field, fmt.Sprint(f.Expected), fmt.Sprint(f.Actual))
	case "headers", "cookies", "queryStringParameters", "pathParameters":
		if details, ok := f.Details.([]KeyDetail); ok {
			for _, d := range details {
				if !d.Matched {
					return fmt.Sprintf("%s %s expected %v, got %v", singular(f.Field), d.Key, d.Expected, d.Actual)
				}
			}
		}
		return f.Field + " did not match"
	case "body":
		return fmt.Sprintf("body did not match %s", f.Expected)
	case "keepAlive", "secure":
		return fmt.Sprintf("%s expected %v, got %v", f.Field, f.Expected, f.Actual)
	case "openapi":
		return fmt.Sprintf("request %v is not valid for openapi operation %q", f.Actual, f.Expected)
	case "not":
		return "every field matched an inverted matcher"
	default:
		return f.Field + " did not match"
	}
}

func singular(field string) string {
	switch field {
	case "headers":
		return "header"
	case "cookies":
		return "cookie"
	case "queryStringParameters":
		return "query parameter"
	case "pathParameters":
		return "path parameter"
	}
	return field
}

func joinFields(fields []string) string {
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	case 2:
		return fields[0] + " and " + fields[1]
	default:
		return strings.Join(fields[:len(fields)-1], ", ") + ", and " + fields[len(fields)-1]
	}
}
