package planner

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	language "github.com/hanpama/gqlplan/internal/language"
	schema "github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/selection"
)

const testSDL = `
type Query {
  user(id: ID!): User
  node(id: ID!): Node
  search(term: String): [SearchResult!]!
}

type Mutation {
  rename(id: ID!, name: String!): User
}

interface Node { id: ID! }

type User implements Node {
  id: ID!
  name: String
  email: String
  friends(first: Int = 10): [User!]!
}

type Post implements Node {
  id: ID!
  title: String
}

union SearchResult = User | Post
`

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	return sch
}

func mustParse(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	doc, err := language.ParseQuery(q)
	require.NoError(t, err)
	return doc
}

func compile(t *testing.T, q string, opts ...Option) *Plan {
	t.Helper()
	p, err := NewCompiler(mustSchema(t), nil, opts...).Compile(mustParse(t, q), "")
	require.NoError(t, err)
	return p
}

func responseNames(set *SelectionSet) []string {
	out := make([]string, len(set.Selections))
	for i, sel := range set.Selections {
		out[i] = sel.ResponseName()
	}
	return out
}

func only(t *testing.T, set *SelectionSet, name string) *selection.Selection {
	t.Helper()
	for _, sel := range set.Selections {
		if sel.ResponseName() == name {
			return sel
		}
	}
	t.Fatalf("no selection %q in %s", name, set.Type.Name)
	return nil
}

func childSet(t *testing.T, p *Plan, parent *selection.Selection, typeName string) *SelectionSet {
	t.Helper()
	set := p.SelectionSet(parent, &schema.Type{Name: typeName})
	require.NotNil(t, set, "no child set of %q for %s", parent.ResponseName(), typeName)
	return set
}

func TestCompile_MergesOccurrencesAtResponseKey(t *testing.T) {
	p := compile(t, `{
		user(id: "1") { id }
		user(id: "1") { name ... on User { email id } }
	}`)

	require.Equal(t, []string{"user"}, responseNames(p.Root()))
	user := p.Root().Selections[0]
	require.Len(t, user.Nodes(), 2)
	require.Equal(t, selection.Always, user.InclusionKind())

	children := childSet(t, p, user, "User")
	if diff := cmp.Diff([]string{"id", "name", "email"}, responseNames(children)); diff != "" {
		t.Fatalf("child selections mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, only(t, children, "id").Nodes(), 2)
	require.Equal(t, 4, p.SelectionCount())
}

func TestCompile_VariableConditions(t *testing.T) {
	p := compile(t, `
		query Q($a: Boolean!, $b: Boolean!) {
			user(id: "1") {
				... on User @include(if: $a) { name }
				...F @skip(if: $b)
			}
		}
		fragment F on User { name email @include(if: $a) }
	`)
	require.Equal(t, "Q", p.Name())

	user := p.Root().Selections[0]
	children := childSet(t, p, user, "User")
	require.Equal(t, []string{"name", "email"}, responseNames(children))

	name := only(t, children, "name")
	require.Equal(t, selection.Conditional, name.InclusionKind())
	require.Len(t, name.Conditions(), 2)

	email := only(t, children, "email")
	require.Len(t, email.Conditions(), 1)
	require.Equal(t, "@include(if: $a) @skip(if: $b)", email.Conditions()[0].(*selection.Condition).String())

	for _, tc := range []struct {
		a, b        bool
		name, email bool
	}{
		{a: false, b: false, name: true, email: false},
		{a: true, b: true, name: true, email: false},
		{a: false, b: true, name: false, email: false},
		{a: true, b: false, name: true, email: true},
	} {
		vars := map[string]any{"a": tc.a, "b": tc.b}
		require.Equal(t, tc.name, name.IsIncluded(vars, false), "name a=%v b=%v", tc.a, tc.b)
		require.Equal(t, tc.email, email.IsIncluded(vars, false), "email a=%v b=%v", tc.a, tc.b)
	}
}

func TestCompile_UnguardedOccurrenceWins(t *testing.T) {
	p := compile(t, `query($a: Boolean!) { user(id: "1") @include(if: $a) { id } user(id: "1") { name } }`)
	user := p.Root().Selections[0]
	require.Equal(t, selection.Always, user.InclusionKind())
	require.Nil(t, user.Conditions())
}

func TestCompile_GuardedOccurrenceKeepsChildGuard(t *testing.T) {
	p := compile(t, `query($a: Boolean!) {
		... @include(if: $a) { user(id: "1") { name friends { id } } }
		user(id: "1") { id }
	}`)
	user := p.Root().Selections[0]
	require.Equal(t, selection.Always, user.InclusionKind())

	children := childSet(t, p, user, "User")
	require.Equal(t, []string{"name", "friends", "id"}, responseNames(children))
	require.Equal(t, selection.Always, only(t, children, "id").InclusionKind())

	name := only(t, children, "name")
	require.Equal(t, selection.Conditional, name.InclusionKind())
	require.Equal(t, "@include(if: $a)", name.Conditions()[0].(*selection.Condition).String())
	require.False(t, name.IsIncluded(map[string]any{"a": false}, false))
	require.True(t, name.IsIncluded(map[string]any{"a": true}, false))

	friends := only(t, children, "friends")
	require.Equal(t, selection.Conditional, friends.InclusionKind())
	friendID := only(t, childSet(t, p, friends, "User"), "id")
	require.Equal(t, selection.Conditional, friendID.InclusionKind())
	require.False(t, friendID.IsIncluded(map[string]any{"a": false}, false))
}

func TestCompile_GuardedFieldGuardsItsChildren(t *testing.T) {
	p := compile(t, `query($a: Boolean!) {
		user(id: "1") @include(if: $a) { name }
		user(id: "1") { id }
	}`)
	children := childSet(t, p, p.Root().Selections[0], "User")
	require.Equal(t, selection.Conditional, only(t, children, "name").InclusionKind())
	require.Equal(t, selection.Always, only(t, children, "id").InclusionKind())
}

func TestCompile_LiteralConditions(t *testing.T) {
	p := compile(t, `{
		user(id: "1") {
			id @skip(if: true)
			name @include(if: true)
			email @include(if: false)
			... on User @skip(if: false) { friends { id } }
		}
	}`)
	children := childSet(t, p, p.Root().Selections[0], "User")
	require.Equal(t, []string{"name", "friends"}, responseNames(children))
	for _, sel := range children.Selections {
		require.Equal(t, selection.Always, sel.InclusionKind(), sel.ResponseName())
	}
}

func TestCompile_AbstractTypes(t *testing.T) {
	p := compile(t, `{
		node(id: "1") { id ... on User { name } ... on Post { title } }
		search { __typename ... on Node { id } }
	}`)

	node := only(t, p.Root(), "node")
	require.Len(t, p.Children(node), 2)
	require.Equal(t, []string{"id", "title"}, responseNames(childSet(t, p, node, "Post")))
	require.Equal(t, []string{"id", "name"}, responseNames(childSet(t, p, node, "User")))

	search := only(t, p.Root(), "search")
	users := childSet(t, p, search, "User")
	require.Equal(t, []string{"__typename", "id"}, responseNames(users))

	typename := only(t, users, "__typename")
	require.Same(t, schema.TypenameField, typename.Field())
	v, err := typename.Pipeline()(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "User", v)

	require.Nil(t, p.SelectionSet(typename, users.Type))
}

func TestCompile_FragmentCycleIsCut(t *testing.T) {
	p := compile(t, `
		{ user(id: "1") { ...A } }
		fragment A on User { name ...B }
		fragment B on User { email ...A }
	`)
	children := childSet(t, p, p.Root().Selections[0], "User")
	require.Equal(t, []string{"name", "email"}, responseNames(children))
}

func TestCompile_FragmentSpreadTwiceWithDifferentGuards(t *testing.T) {
	p := compile(t, `
		query($a: Boolean!, $b: Boolean!) { user(id: "1") { ...F @include(if: $a) ...F @include(if: $b) } }
		fragment F on User { name }
	`)
	name := only(t, childSet(t, p, p.Root().Selections[0], "User"), "name")
	require.Len(t, name.Conditions(), 2)
	require.True(t, name.IsIncluded(map[string]any{"a": false, "b": true}, false))
}

func TestCompile_RecursionThroughFieldsIsBounded(t *testing.T) {
	doc := mustParse(t, `
		{ user(id: "1") { ...F } }
		fragment F on User { friends { ...F } }
	`)
	_, err := NewCompiler(mustSchema(t), nil, WithMaxDepth(5)).Compile(doc, "")
	require.True(t, errors.Is(err, ErrTooDeep), "got %v", err)
}

func TestCompile_Arguments(t *testing.T) {
	p := compile(t, `query($id: ID!) { user(id: $id) { friends { id } } }`)

	user := p.Root().Selections[0]
	require.Equal(t, []string{"id"}, user.Arguments().Names())
	id, ok := user.Arguments().Get("id")
	require.True(t, ok)
	require.Equal(t, language.Variable, id.Value.Kind)

	friends := only(t, childSet(t, p, user, "User"), "friends")
	first, ok := friends.Arguments().Get("first")
	require.True(t, ok)
	require.True(t, first.IsDefaulted())
	require.Equal(t, int64(10), first.Definition.DefaultValue)

	require.Same(t, selection.EmptyArguments, only(t, childSet(t, p, friends, "User"), "id").Arguments())
}

func TestCompile_InternalFields(t *testing.T) {
	p := compile(t, `{ user(id: "1") { name } }`, WithInternalFields("User", "id"))
	children := childSet(t, p, p.Root().Selections[0], "User")
	require.Equal(t, []string{"name", "id"}, responseNames(children))

	id := only(t, children, "id")
	require.Equal(t, selection.Internal, id.InclusionKind())
	require.False(t, id.IsIncluded(nil, false))
	require.True(t, id.IsIncluded(nil, true))

	p = compile(t, `{ user(id: "1") { id name } }`, WithInternalFields("User", "id"))
	children = childSet(t, p, p.Root().Selections[0], "User")
	require.Equal(t, []string{"id", "name"}, responseNames(children))
	require.Equal(t, selection.Always, only(t, children, "id").InclusionKind())

	_, err := NewCompiler(mustSchema(t), nil, WithInternalFields("User", "missing")).
		Compile(mustParse(t, `{ user(id: "1") { name } }`), "")
	require.True(t, errors.Is(err, ErrUnknownField), "got %v", err)
}

func TestCompile_PipelineFactory(t *testing.T) {
	var seen []string
	factory := func(objectType *schema.Type, field *schema.Field) selection.Pipeline {
		seen = append(seen, objectType.Name+"."+field.Name)
		name := field.Name
		return func(context.Context, any, map[string]any) (any, error) { return name, nil }
	}
	p, err := NewCompiler(mustSchema(t), factory).Compile(mustParse(t, `{ user(id: "1") { name __typename } }`), "")
	require.NoError(t, err)
	require.Equal(t, []string{"Query.user", "User.name"}, seen)

	v, err := p.Root().Selections[0].Pipeline()(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "user", v)
}

func TestCompile_DefaultPipelineFails(t *testing.T) {
	p := compile(t, `{ user(id: "1") { name } }`)
	_, err := p.Root().Selections[0].Pipeline()(context.Background(), nil, nil)
	require.EqualError(t, err, "no resolver for Query.user")
}

func TestCompile_Errors(t *testing.T) {
	cases := []struct {
		name      string
		query     string
		operation string
		want      error
	}{
		{"unknown field", `{ user(id: "1") { nope } }`, "", ErrUnknownField},
		{"unknown argument", `{ user(id: "1", x: 1) { id } }`, "", ErrUnknownArgument},
		{"unknown fragment", `{ user(id: "1") { ...Missing } }`, "", ErrUnknownFragment},
		{"non-boolean condition", `{ user(id: "1") { id @skip(if: "yes") } }`, "", ErrInvalidCondition},
		{"missing if", `{ user(id: "1") { id @include } }`, "", ErrInvalidCondition},
		{"ambiguous operation", `query A { user(id: "1") { id } } query B { user(id: "1") { id } }`, "", ErrUnknownOperation},
		{"unknown operation", `query A { user(id: "1") { id } }`, "B", ErrUnknownOperation},
		{"no subscription root", `subscription { user(id: "1") { id } }`, "", ErrNoRootType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCompiler(mustSchema(t), nil).Compile(mustParse(t, tc.query), tc.operation)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestCompile_SelectsNamedOperation(t *testing.T) {
	doc := mustParse(t, `query A { user(id: "1") { id } } mutation B { rename(id: "1", name: "x") { name } }`)
	p, err := NewCompiler(mustSchema(t), nil).Compile(doc, "B")
	require.NoError(t, err)
	require.Equal(t, "B", p.Name())
	require.Equal(t, "Mutation", p.RootType.Name)
	require.Equal(t, []string{"rename"}, responseNames(p.Root()))
	require.True(t, p.Root().Selections[0].Field().Async)
}
