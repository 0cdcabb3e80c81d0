package selection

import (
	"github.com/elliotchance/orderedmap/v3"

	language "github.com/hanpama/gqlplan/internal/language"
	schema "github.com/hanpama/gqlplan/internal/schema"
)

// Argument is a field argument prepared at compile time: its definition and
// the literal or variable-bearing value node from the query, if any.
type Argument struct {
	Name       string
	Definition *schema.InputValue
	Value      *language.Value
}

// IsDefaulted reports whether the query omitted the argument.
func (a *Argument) IsDefaulted() bool { return a.Value == nil }

// ArgumentMap is an immutable, order-preserving map from argument name to
// prepared argument.
type ArgumentMap struct {
	args *orderedmap.OrderedMap[string, *Argument]
}

// EmptyArguments is shared by every selection without arguments.
var EmptyArguments = &ArgumentMap{args: orderedmap.NewOrderedMap[string, *Argument]()}

// NewArgumentMap wraps args in declaration order. A later argument with the
// same name replaces an earlier one in place.
func NewArgumentMap(args ...*Argument) *ArgumentMap {
	if len(args) == 0 {
		return EmptyArguments
	}
	m := orderedmap.NewOrderedMap[string, *Argument]()
	for _, a := range args {
		if a != nil {
			m.Set(a.Name, a)
		}
	}
	return &ArgumentMap{args: m}
}

func (m *ArgumentMap) Get(name string) (*Argument, bool) {
	return m.args.Get(name)
}

func (m *ArgumentMap) Len() int { return m.args.Len() }

// Names returns the argument names in order.
func (m *ArgumentMap) Names() []string {
	names := make([]string, 0, m.args.Len())
	for el := m.args.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
	}
	return names
}

// Range calls fn for each argument in order until fn returns false.
func (m *ArgumentMap) Range(fn func(*Argument) bool) {
	for el := m.args.Front(); el != nil; el = el.Next() {
		if !fn(el.Value) {
			return
		}
	}
}
