package selection

import (
	"testing"

	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/gqlplan/internal/schema"
)

func TestArgumentMap(t *testing.T) {
	node := fieldsOf(t, `{ users(first: 10, after: $cursor) }`)[0]
	first := &Argument{Name: "first", Definition: &schema.InputValue{Name: "first"}, Value: node.Arguments.ForName("first").Value}
	after := &Argument{Name: "after", Definition: &schema.InputValue{Name: "after"}, Value: node.Arguments.ForName("after").Value}
	order := &Argument{Name: "order", Definition: &schema.InputValue{Name: "order", DefaultValue: "ASC"}}

	m := NewArgumentMap(first, after, order)
	require.Equal(t, 3, m.Len())
	require.Equal(t, []string{"first", "after", "order"}, m.Names())

	got, ok := m.Get("after")
	require.True(t, ok)
	require.Same(t, after, got)
	require.False(t, got.IsDefaulted())

	got, ok = m.Get("order")
	require.True(t, ok)
	require.True(t, got.IsDefaulted())

	_, ok = m.Get("missing")
	require.False(t, ok)

	var visited []string
	m.Range(func(a *Argument) bool {
		visited = append(visited, a.Name)
		return a.Name != "after"
	})
	require.Equal(t, []string{"first", "after"}, visited)
}

func TestArgumentMap_Empty(t *testing.T) {
	require.Same(t, EmptyArguments, NewArgumentMap())
	require.Zero(t, EmptyArguments.Len())
	require.Empty(t, EmptyArguments.Names())
}

func TestArgumentMap_DuplicateNameReplacesInPlace(t *testing.T) {
	a1 := &Argument{Name: "a"}
	b := &Argument{Name: "b"}
	a2 := &Argument{Name: "a"}

	m := NewArgumentMap(a1, b, a2)
	require.Equal(t, []string{"a", "b"}, m.Names())
	got, _ := m.Get("a")
	require.Same(t, a2, got)
}
