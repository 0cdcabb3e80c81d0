package fixturert

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/gqlplan/internal/executor"
	schema "github.com/hanpama/gqlplan/internal/schema"
)

const sdl = `
type Query {
  user(id: ID!): User
  search(term: String): [SearchResult!]!
  count: Int
}
type User { id: ID! name: String age: Int }
type Post { title: String }
union SearchResult = User | Post
`

const fixture = `{
  "Query": {
    "user(id:\"1\")": {"id": "1", "name": "ann", "age": 31},
    "user": {"id": "0", "name": "default"},
    "search": [
      {"__typename": "User", "id": "2", "name": "bob"},
      {"__typename": "Post", "title": "hello"}
    ],
    "count": 2.5
  }
}`

func execute(t *testing.T, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	rt, err := New([]byte(fixture))
	require.NoError(t, err)
	exec := executor.NewExecutor(rt, sch)
	plan, err := exec.Prepare(context.Background(), query, "")
	require.NoError(t, err)
	return exec.ExecutePlan(context.Background(), plan, vars, nil)
}

func TestArgumentKeysTakePrecedence(t *testing.T) {
	res := execute(t, `query($id: ID!) { a: user(id: $id) { name age } b: user(id: "9") { name } }`, map[string]any{"id": "1"})
	require.Empty(t, res.Errors)
	want := map[string]any{
		"a": map[string]any{"name": "ann", "age": int64(31)},
		"b": map[string]any{"name": "default"},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestUnionMembers(t *testing.T) {
	res := execute(t, `{ search { __typename ... on User { name } ... on Post { title } } }`, nil)
	require.Empty(t, res.Errors)
	want := map[string]any{"search": []any{
		map[string]any{"__typename": "User", "name": "bob"},
		map[string]any{"__typename": "Post", "title": "hello"},
	}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestLeafSerialization(t *testing.T) {
	res := execute(t, `{ count }`, nil)
	require.Equal(t, map[string]any{"count": nil}, res.Data)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "Int cannot represent 2.5", res.Errors[0].Message)
}

func TestArgumentKey(t *testing.T) {
	require.Equal(t, `f(a:1,b:"x")`, argumentKey("f", map[string]any{"b": "x", "a": 1}))
}

func TestResolveType(t *testing.T) {
	rt, err := New([]byte(`{}`))
	require.NoError(t, err)
	_, err = rt.ResolveType(context.Background(), "Node", map[string]any{})
	require.EqualError(t, err, "fixture: value of abstract type Node has no __typename")
}

func TestNewRejectsInvalidJSON(t *testing.T) {
	_, err := New([]byte(`[`))
	require.Error(t, err)
}
