package openapi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/expectd/internal/matching"
	"github.com/getmockd/expectd/pkg/expectation"
)

const petstore = `{
  "openapi": "3.0.3",
  "info": {"title": "Petstore", "version": "1.0.0"},
  "paths": {
    "/pets": {
      "get": {
        "operationId": "listPets",
        "parameters": [
          {"name": "limit", "in": "query", "required": false, "schema": {"type": "integer"}}
        ],
        "responses": {
          "200": {
            "description": "pets",
            "content": {"application/json": {"schema": {"type": "array", "items": {"$ref": "#/components/schemas/Pet"}}}}
          }
        }
      },
      "post": {
        "operationId": "createPet",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}
        },
        "responses": {"201": {"description": "created"}}
      }
    },
    "/pets/{petId}": {
      "parameters": [
        {"name": "petId", "in": "path", "required": true, "schema": {"type": "integer"}}
      ],
      "get": {
        "operationId": "showPetById",
        "parameters": [
          {"name": "X-Request-Id", "in": "header", "required": true, "schema": {"type": "string"}}
        ],
        "responses": {
          "200": {
            "description": "a pet",
            "content": {"application/json": {
              "schema": {"$ref": "#/components/schemas/Pet"},
              "example": {"id": 1, "name": "rex"}
            }}
          },
          "404": {
            "description": "missing",
            "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}
          }
        }
      }
    }
  },
  "components": {
    "schemas": {
      "Pet": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "id": {"type": "integer", "format": "int64"},
          "name": {"type": "string"},
          "tag": {"type": "string"}
        }
      },
      "Error": {
        "type": "object",
        "properties": {
          "code": {"type": "integer"},
          "message": {"type": "string"}
        }
      }
    }
  }
}`

func TestLoadCachesDocuments(t *testing.T) {
	r := NewResolver()
	ctx := context.Background()

	first, err := r.Load(ctx, petstore)
	require.NoError(t, err)
	second, err := r.Load(ctx, petstore)
	require.NoError(t, err)
	assert.Same(t, first, second)

	ids := make([]string, 0, len(first.Operations))
	for _, op := range first.Operations {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []string{"listPets", "createPet", "showPetById"}, ids)
}

func TestLoadConcurrent(t *testing.T) {
	r := NewResolver()
	docs := make([]*Document, 20)

	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := r.Load(context.Background(), petstore)
			if err == nil {
				docs[i] = doc
			}
		}(i)
	}
	wg.Wait()

	for _, doc := range docs {
		require.NotNil(t, doc)
		assert.Same(t, docs[0], doc)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petstore.json")
	require.NoError(t, os.WriteFile(path, []byte(petstore), 0o600))

	doc, err := NewResolver().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, doc.Operations, 3)
}

func TestLoadInvalid(t *testing.T) {
	r := NewResolver()

	_, err := r.Load(context.Background(), `{"openapi": "3.0.3", "paths": {}}`)
	assert.Error(t, err)

	_, err = r.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveOperationUnknown(t *testing.T) {
	_, err := NewResolver().ResolveOperation(context.Background(), petstore, "nope")
	assert.True(t, errors.Is(err, ErrOperationNotFound))
}

func TestResolveOperationMatchers(t *testing.T) {
	r := NewResolver()
	ctx := context.Background()

	matchers, err := r.ResolveOperation(ctx, petstore, "showPetById")
	require.NoError(t, err)
	require.Len(t, matchers, 1)
	assert.Equal(t, "GET", matchers[0].Method.Value)
	assert.Equal(t, "/pets/{petId}", matchers[0].Path.Value)

	all, err := r.ResolveOperation(ctx, petstore, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestOpenAPIMatching(t *testing.T) {
	r := NewResolver()
	m := matching.New(matching.WithOperationResolver(r))
	ctx := context.Background()

	tests := []struct {
		name      string
		operation string
		req       *expectation.HTTPRequest
		want      bool
	}{
		{
			name:      "path parameter matches integer schema",
			operation: "showPetById",
			req: &expectation.HTTPRequest{Method: "GET", Path: "/pets/12",
				Headers: expectation.Multimap{}.Add("X-Request-Id", "r1")},
			want: true,
		},
		{
			name:      "path parameter violates schema",
			operation: "showPetById",
			req: &expectation.HTTPRequest{Method: "GET", Path: "/pets/abc",
				Headers: expectation.Multimap{}.Add("X-Request-Id", "r1")},
			want: false,
		},
		{
			name:      "missing required header",
			operation: "showPetById",
			req:       &expectation.HTTPRequest{Method: "GET", Path: "/pets/12"},
			want:      false,
		},
		{
			name:      "optional query absent",
			operation: "listPets",
			req:       &expectation.HTTPRequest{Method: "GET", Path: "/pets"},
			want:      true,
		},
		{
			name:      "optional query valid",
			operation: "listPets",
			req: &expectation.HTTPRequest{Method: "GET", Path: "/pets",
				QueryStringParameters: expectation.Multimap{}.Add("limit", "10")},
			want: true,
		},
		{
			name:      "optional query invalid",
			operation: "listPets",
			req: &expectation.HTTPRequest{Method: "GET", Path: "/pets",
				QueryStringParameters: expectation.Multimap{}.Add("limit", "ten")},
			want: false,
		},
		{
			name:      "body matches schema",
			operation: "createPet",
			req:       &expectation.HTTPRequest{Method: "POST", Path: "/pets", Body: expectation.JSONBody(`{"name": "rex"}`)},
			want:      true,
		},
		{
			name:      "body missing required field",
			operation: "createPet",
			req:       &expectation.HTTPRequest{Method: "POST", Path: "/pets", Body: expectation.JSONBody(`{"tag": "dog"}`)},
			want:      false,
		},
		{
			name:      "wrong method",
			operation: "createPet",
			req:       &expectation.HTTPRequest{Method: "GET", Path: "/pets", Body: expectation.JSONBody(`{"name": "rex"}`)},
			want:      false,
		},
		{
			name:      "any operation",
			operation: "",
			req:       &expectation.HTTPRequest{Method: "POST", Path: "/pets", Body: expectation.JSONBody(`{"name": "rex"}`)},
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Matches(ctx, expectation.OpenAPI(petstore, tt.operation), tt.req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpectations(t *testing.T) {
	r := NewResolver()
	ctx := context.Background()

	exps, err := r.Expectations(ctx, &Expectation{SpecURLOrPayload: petstore})
	require.NoError(t, err)
	require.Len(t, exps, 3)

	byOp := map[string]*expectation.HTTPResponse{}
	for _, e := range exps {
		require.True(t, e.HTTPRequest.IsOpenAPI())
		resp, ok := e.Action.(*expectation.HTTPResponse)
		require.True(t, ok)
		byOp[e.HTTPRequest.OperationID] = resp
	}

	assert.Equal(t, 200, byOp["listPets"].StatusCode)
	assert.JSONEq(t, `[{"id": 0, "name": "string", "tag": "string"}]`, byOp["listPets"].Body.String())
	assert.Equal(t, "application/json", byOp["listPets"].Headers.First("Content-Type", true))

	assert.Equal(t, 201, byOp["createPet"].StatusCode)
	assert.Nil(t, byOp["createPet"].Body)

	assert.Equal(t, 200, byOp["showPetById"].StatusCode)
	assert.JSONEq(t, `{"id": 1, "name": "rex"}`, byOp["showPetById"].Body.String())
}

func TestExpectationsSelectedResponses(t *testing.T) {
	r := NewResolver()

	exps, err := r.Expectations(context.Background(), &Expectation{
		SpecURLOrPayload:       petstore,
		OperationsAndResponses: map[string]string{"showPetById": "404"},
	})
	require.NoError(t, err)
	require.Len(t, exps, 1)

	resp := exps[0].Action.(*expectation.HTTPResponse)
	assert.Equal(t, 404, resp.StatusCode)
	assert.JSONEq(t, `{"code": 0, "message": "string"}`, resp.Body.String())

	_, err = r.Expectations(context.Background(), &Expectation{
		SpecURLOrPayload:       petstore,
		OperationsAndResponses: map[string]string{"showPetById": "500"},
	})
	assert.Error(t, err)

	_, err = r.Expectations(context.Background(), &Expectation{
		SpecURLOrPayload:       petstore,
		OperationsAndResponses: map[string]string{"nope": "200"},
	})
	assert.True(t, errors.Is(err, ErrOperationNotFound))
}

func TestSchemaStringInlinesRefs(t *testing.T) {
	doc, err := NewResolver().Load(context.Background(), petstore)
	require.NoError(t, err)

	ops, err := doc.Find("createPet")
	require.NoError(t, err)
	schema, err := schemaString(ops[0].Op.RequestBody.Value.Content.Get("application/json").Schema)
	require.NoError(t, err)

	assert.NotContains(t, schema, "$ref")
	assert.JSONEq(t, `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"id": {"type": "integer", "format": "int64"},
			"name": {"type": "string"},
			"tag": {"type": "string"}
		}
	}`, schema)
}
