package selection

import (
	"strconv"
	"strings"
)

// IncludeCondition is a boolean guard evaluated against request variables.
// Conditions are compared with Equal when deduplicating.
type IncludeCondition interface {
	IsTrue(variables map[string]any) bool
	Equal(other IncludeCondition) bool
}

// Operand is the `if` argument of @skip or @include: either a literal or a
// reference to a variable.
type Operand struct {
	Variable string
	Literal  bool
}

// LiteralOperand returns an operand fixed to v.
func LiteralOperand(v bool) Operand { return Operand{Literal: v} }

// VariableOperand returns an operand read from the named variable, given
// without the leading $.
func VariableOperand(name string) Operand { return Operand{Variable: name} }

// IsVariable reports whether the operand refers to a variable.
func (o Operand) IsVariable() bool { return o.Variable != "" }

// Eval returns the operand's value. A variable that is unset or not a boolean
// evaluates to false.
func (o Operand) Eval(variables map[string]any) bool {
	if !o.IsVariable() {
		return o.Literal
	}
	v, ok := variables[o.Variable].(bool)
	return ok && v
}

func (o Operand) String() string {
	if o.IsVariable() {
		return "$" + o.Variable
	}
	return strconv.FormatBool(o.Literal)
}

// Condition is the @skip/@include guard of a field or fragment. A condition
// holds when its own operands allow it and its parent, the guard of the
// enclosing fragment, holds as well.
type Condition struct {
	skip    *Operand
	include *Operand
	parent  *Condition
}

// NewCondition returns a condition for the given operands; either operand may
// be nil. parent may be nil for top-level selections.
func NewCondition(skip, include *Operand, parent *Condition) *Condition {
	return &Condition{skip: skip, include: include, parent: parent}
}

// Skip and Include return the operands of the node's own directives, nil when
// absent. Parent returns the guard of the enclosing fragment.
func (c *Condition) Skip() *Operand     { return c.skip }
func (c *Condition) Include() *Operand  { return c.include }
func (c *Condition) Parent() *Condition { return c.parent }

// IsTrue reports whether c and every parent allow the node for variables:
// no @skip operand is true and no @include operand is false.
func (c *Condition) IsTrue(variables map[string]any) bool {
	for cur := c; cur != nil; cur = cur.parent {
		if cur.skip != nil && cur.skip.Eval(variables) {
			return false
		}
		if cur.include != nil && !cur.include.Eval(variables) {
			return false
		}
	}
	return true
}

// Equal reports whether other is a *Condition with the same operands along
// the whole parent chain.
func (c *Condition) Equal(other IncludeCondition) bool {
	o, ok := other.(*Condition)
	if !ok {
		return false
	}
	a, b := c, o
	for a != nil && b != nil {
		if a == b {
			return true
		}
		if !equalOperands(a.skip, b.skip) || !equalOperands(a.include, b.include) {
			return false
		}
		a, b = a.parent, b.parent
	}
	return a == nil && b == nil
}

func equalOperands(a, b *Operand) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (c *Condition) String() string {
	var parts []string
	for cur := c; cur != nil; cur = cur.parent {
		if cur.skip != nil {
			parts = append(parts, "@skip(if: "+cur.skip.String()+")")
		}
		if cur.include != nil {
			parts = append(parts, "@include(if: "+cur.include.String()+")")
		}
	}
	return strings.Join(parts, " ")
}
