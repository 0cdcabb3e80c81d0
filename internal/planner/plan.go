package planner

import (
	language "github.com/hanpama/gqlplan/internal/language"
	schema "github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/selection"
)

// SelectionSet is the compiled selection set of one object type, in response
// order.
type SelectionSet struct {
	Type       *schema.Type
	Selections []*selection.Selection
}

type setKey struct {
	parent   *selection.Selection
	typeName string
}

// Plan is a compiled operation. Plans are immutable and may be shared by any
// number of concurrent executions.
type Plan struct {
	Document  *language.QueryDocument
	Operation *language.OperationDefinition
	RootType  *schema.Type

	root     *SelectionSet
	sets     map[setKey]*SelectionSet
	children map[*selection.Selection][]*SelectionSet
	count    int
}

// Root returns the selection set of the operation's root type.
func (p *Plan) Root() *SelectionSet { return p.root }

// SelectionSet returns the child selection set of parent when the parent
// value resolves to objectType, or nil if parent has no such child set.
func (p *Plan) SelectionSet(parent *selection.Selection, objectType *schema.Type) *SelectionSet {
	if parent == nil || objectType == nil {
		return nil
	}
	return p.sets[setKey{parent: parent, typeName: objectType.Name}]
}

// Children returns every child selection set of parent, one per possible
// object type of its value, in schema order.
func (p *Plan) Children(parent *selection.Selection) []*SelectionSet {
	return p.children[parent]
}

// Name returns the operation name, empty for anonymous operations.
func (p *Plan) Name() string { return p.Operation.Name }

// SelectionCount returns the number of sealed selections in the plan.
func (p *Plan) SelectionCount() int { return p.count }
