package executor

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	language "github.com/hanpama/gqlplan/internal/language"
	schema "github.com/hanpama/gqlplan/internal/schema"
)

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

func newSchemaWithQueryType(query *schema.Type, additional ...*schema.Type) *schema.Schema {
	sch := schema.NewSchema("")
	if query != nil {
		sch.SetQueryType(query.Name)
		sch.AddType(query)
	}
	for _, t := range additional {
		sch.AddType(t)
	}
	return sch
}

func newObjectType(name string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, "")
	for _, field := range fields {
		t.AddField(field)
	}
	return t
}

func newScalarType(name string) *schema.Type {
	return schema.NewType(name, schema.TypeKindScalar, "")
}

func newField(name string, typ *schema.TypeRef) *schema.Field {
	return schema.NewField(name, "", typ)
}

func newAsyncField(name string, typ *schema.TypeRef) *schema.Field {
	return schema.NewField(name, "", typ).SetAsync(true)
}

var (
	stringType = schema.NamedType("String")
	stringNN   = schema.NonNullType(schema.NamedType("String"))
)

// run executes q and compares the result and the recorded runtime calls.
// A nil wantCalls skips the call comparison.
func run(t *testing.T, exec *Executor, rt *MockRuntime, q string, vars map[string]any, wantRes *ExecutionResult, wantCalls []Call) {
	t.Helper()
	gotRes := exec.ExecuteRequest(context.Background(), mustParseQuery(t, q), "", vars, nil)
	if diff := cmp.Diff(wantRes, gotRes); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	if wantCalls == nil {
		return
	}
	if diff := cmp.Diff(wantCalls, rt.GetCalls()); diff != "" {
		t.Fatalf("Runtime calls mismatch (-want +got):\n%s", diff)
	}
}
