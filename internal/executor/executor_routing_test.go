package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	schema "github.com/hanpama/gqlplan/internal/schema"
)

func TestRouting_AsyncFieldsBatchPerDepth(t *testing.T) {
	// type Query { objs: [Obj] @async }  type Obj { b: String @async  c: String }
	sch := newSchemaWithQueryType(
		newObjectType("Query", newAsyncField("objs", schema.ListType(schema.NamedType("Obj")))),
		newObjectType("Obj", newAsyncField("b", stringType), newField("c", stringType)),
		newScalarType("String"),
	)
	one, two := map[string]any{"id": 1}, map[string]any{"id": 2}
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.objs": NewMockValueResolver([]any{one, two}),
		"Obj.b":      NewMockValueResolver("B"),
		"Obj.c":      NewMockValueResolver("C"),
	})
	run(t, NewExecutor(rt, sch), rt, "{ objs { b c } }", nil,
		&ExecutionResult{
			Data: map[string]any{"objs": []any{
				map[string]any{"b": "B", "c": "C"},
				map[string]any{"b": "B", "c": "C"},
			}},
			Errors: []GraphQLError{},
		},
		[]Call{
			{Kind: "async", ObjectType: "Query", Field: "objs", Args: map[string]any{}, BatchID: 1},
			{Kind: "sync", ObjectType: "Obj", Field: "c", Source: one, Args: map[string]any{}},
			{Kind: "sync", ObjectType: "Obj", Field: "c", Source: two, Args: map[string]any{}},
			{Kind: "async", ObjectType: "Obj", Field: "b", Source: one, Args: map[string]any{}, BatchID: 2},
			{Kind: "async", ObjectType: "Obj", Field: "b", Source: two, Args: map[string]any{}, BatchID: 2},
		},
	)
}

func TestRouting_AsyncUnderNullifiedParentIsPruned(t *testing.T) {
	// type Query { obj: Obj! }  type Obj { a: String!  b: Obj @async }
	sch := newSchemaWithQueryType(
		newObjectType("Query", newAsyncField("obj", schema.NonNullType(schema.NamedType("Obj")))),
		newObjectType("Obj", newAsyncField("a", stringNN), newAsyncField("b", schema.NamedType("Obj"))),
		newScalarType("String"),
	)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.obj": NewMockValueResolver(map[string]any{}),
		"Obj.a":     NewMockValueResolver(nil),
		"Obj.b":     NewMockValueResolver(map[string]any{}),
	})
	run(t, NewExecutor(rt, sch), rt, "{ obj { a b { a } } }", nil,
		&ExecutionResult{
			Data:   map[string]any{"obj": nil},
			Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field obj.a", Path: Path{"obj", "a"}}},
		},
		[]Call{
			{Kind: "async", ObjectType: "Query", Field: "obj", Args: map[string]any{}, BatchID: 1},
			{Kind: "async", ObjectType: "Obj", Field: "a", Source: map[string]any{}, Args: map[string]any{}, BatchID: 2},
			{Kind: "async", ObjectType: "Obj", Field: "b", Source: map[string]any{}, Args: map[string]any{}, BatchID: 2},
		},
	)
}

func mutationSchema(async bool) *schema.Schema {
	f := newField
	if async {
		f = newAsyncField
	}
	mutation := newObjectType("Mutation",
		f("m1", schema.NamedType("Obj")),
		f("m2", schema.NamedType("Obj")),
		f("m3", schema.NamedType("Obj")),
	)
	sch := newSchemaWithQueryType(
		newObjectType("Query", newField("q", stringType)),
		mutation,
		newObjectType("Obj", newAsyncField("b", stringType)),
		newScalarType("String"),
	)
	sch.SetMutationType("Mutation")
	return sch
}

func TestRouting_MutationRootsRunSerially(t *testing.T) {
	rt := NewMockRuntime(map[string]MockResolver{
		"Mutation.m1": NewMockValueResolver(map[string]any{"n": 1}),
		"Mutation.m2": NewMockErrorResolver(fmt.Errorf("m2 failed")),
		"Mutation.m3": NewMockValueResolver(map[string]any{"n": 3}),
		"Obj.b":       NewMockValueResolver("B"),
	})
	run(t, NewExecutor(rt, mutationSchema(false)), rt, "mutation { m1 { b } m2 { b } m3 { b } }", nil,
		&ExecutionResult{
			Data: map[string]any{
				"m1": map[string]any{"b": "B"},
				"m2": nil,
				"m3": map[string]any{"b": "B"},
			},
			Errors: []GraphQLError{{Message: "m2 failed", Path: Path{"m2"}}},
		},
		[]Call{
			{Kind: "sync", ObjectType: "Mutation", Field: "m1", Args: map[string]any{}},
			{Kind: "async", ObjectType: "Obj", Field: "b", Source: map[string]any{"n": 1}, Args: map[string]any{}, BatchID: 1},
			{Kind: "sync", ObjectType: "Mutation", Field: "m2", Args: map[string]any{}},
			{Kind: "sync", ObjectType: "Mutation", Field: "m3", Args: map[string]any{}},
			{Kind: "async", ObjectType: "Obj", Field: "b", Source: map[string]any{"n": 3}, Args: map[string]any{}, BatchID: 2},
		},
	)
}

func TestRouting_AsyncMutationRootsUseOwnBatches(t *testing.T) {
	rt := NewMockRuntime(map[string]MockResolver{
		"Mutation.m1": NewMockValueResolver(map[string]any{"n": 1}),
		"Mutation.m2": NewMockValueResolver(map[string]any{"n": 2}),
		"Obj.b":       NewMockValueResolver("B"),
	})
	run(t, NewExecutor(rt, mutationSchema(true)), rt, "mutation { m1 { b } m2 { b } }", nil,
		&ExecutionResult{
			Data: map[string]any{
				"m1": map[string]any{"b": "B"},
				"m2": map[string]any{"b": "B"},
			},
			Errors: []GraphQLError{},
		},
		[]Call{
			{Kind: "async", ObjectType: "Mutation", Field: "m1", Args: map[string]any{}, BatchID: 1},
			{Kind: "async", ObjectType: "Obj", Field: "b", Source: map[string]any{"n": 1}, Args: map[string]any{}, BatchID: 2},
			{Kind: "async", ObjectType: "Mutation", Field: "m2", Args: map[string]any{}, BatchID: 3},
			{Kind: "async", ObjectType: "Obj", Field: "b", Source: map[string]any{"n": 2}, Args: map[string]any{}, BatchID: 4},
		},
	)
}

// shortRuntime drops every batch result.
type shortRuntime struct{ *MockRuntime }

func (shortRuntime) BatchResolveAsync(context.Context, []AsyncResolveTask) []AsyncResolveResult {
	return nil
}

func TestRouting_ResultCountMismatchFailsTheBatch(t *testing.T) {
	sch := newSchemaWithQueryType(
		newObjectType("Query", newAsyncField("a", stringType), newAsyncField("b", stringType)),
		newScalarType("String"),
	)
	rt := shortRuntime{NewMockRuntime(nil)}
	got := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ a b }"), "", nil, nil)
	want := &ExecutionResult{
		Data: map[string]any{"a": nil, "b": nil},
		Errors: []GraphQLError{
			{Message: "runtime returned 0 results for 2 tasks", Path: Path{"a"}},
			{Message: "runtime returned 0 results for 2 tasks", Path: Path{"b"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}
