package selection

import (
	"context"

	"github.com/pkg/errors"

	language "github.com/hanpama/gqlplan/internal/language"
	schema "github.com/hanpama/gqlplan/internal/schema"
)

// Pipeline resolves one field for one parent value. It is opaque to this
// package: selections store it and hand it back, but never call it.
type Pipeline func(ctx context.Context, source any, args map[string]any) (any, error)

// Option configures a Builder at construction.
type Option func(*Builder)

// WithResponseName overrides the response name derived from the node.
func WithResponseName(name string) Option {
	return func(b *Builder) { b.responseName = name }
}

// WithArguments sets the prepared arguments of the selection.
func WithArguments(args ...*Argument) Option {
	return func(b *Builder) { b.arguments = NewArgumentMap(args...) }
}

// WithCondition guards the first occurrence with c. A nil c leaves the
// selection unconditional.
func WithCondition(c IncludeCondition) Option {
	return func(b *Builder) { b.firstCondition = c }
}

// AsInternal marks the selection as synthesized by the engine.
func AsInternal() Option {
	return func(b *Builder) { b.internal = true }
}

// Builder accumulates the occurrences of one field at one response key. It is
// not safe for concurrent use.
type Builder struct {
	declaringType *schema.Type
	field         *schema.Field
	node          *language.Field
	responseName  string
	pipeline      Pipeline
	arguments     *ArgumentMap
	kind          InclusionKind
	conditions    []IncludeCondition
	nodes         []*language.Field

	internal       bool
	firstCondition IncludeCondition

	sealed *Selection
}

// New starts a selection from its first occurrence node.
func New(declaringType *schema.Type, field *schema.Field, node *language.Field, pipeline Pipeline, opts ...Option) (*Builder, error) {
	switch {
	case declaringType == nil:
		return nil, invalidArgument("declaring type")
	case field == nil:
		return nil, invalidArgument("field")
	case node == nil:
		return nil, invalidArgument("node")
	case pipeline == nil:
		return nil, invalidArgument("pipeline")
	}

	b := &Builder{
		declaringType: declaringType,
		field:         field,
		node:          node,
		pipeline:      pipeline,
		arguments:     EmptyArguments,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.responseName == "" {
		b.responseName = language.ResponseName(node)
	}
	if b.internal {
		b.kind = Internal
	}
	if b.firstCondition != nil {
		b.conditions = []IncludeCondition{b.firstCondition}
		b.kind = b.kind.withConditions(true)
	}
	b.firstCondition = nil
	return b, nil
}

// ResponseName, Field, DeclaringType and InclusionKind report the current
// state of the builder.
func (b *Builder) ResponseName() string         { return b.responseName }
func (b *Builder) Field() *schema.Field         { return b.field }
func (b *Builder) DeclaringType() *schema.Type  { return b.declaringType }
func (b *Builder) InclusionKind() InclusionKind { return b.kind }
func (b *Builder) IsSealed() bool               { return b.sealed != nil }

// Conditions returns the current conditions. The slice must not be modified.
func (b *Builder) Conditions() []IncludeCondition { return b.conditions }

// AddOccurrence registers another occurrence of the field, guarded by cond,
// or unguarded when cond is nil.
func (b *Builder) AddOccurrence(node *language.Field, cond IncludeCondition) error {
	if b.sealed != nil {
		return sealed("add occurrence")
	}
	if node == nil {
		return invalidArgument("node")
	}
	if b.nodes == nil {
		b.nodes = []*language.Field{b.node}
	}
	b.nodes = append(b.nodes, node)
	return b.UpdateConditions(cond)
}

// UpdateConditions folds the guard of one more occurrence into the
// selection. A selection that is already unconditional stays so; an
// unguarded occurrence (nil cond) makes a conditional selection
// unconditional; otherwise cond is added unless an equal one is present.
func (b *Builder) UpdateConditions(cond IncludeCondition) error {
	if b.sealed != nil {
		return sealed("update conditions")
	}
	if b.conditions == nil {
		return nil
	}
	if cond == nil {
		b.conditions = nil
		b.kind = b.kind.withConditions(false)
		return nil
	}
	for _, c := range b.conditions {
		if c.Equal(cond) {
			return nil
		}
	}
	b.conditions = append(b.conditions, cond)
	b.kind = b.kind.withConditions(true)
	return nil
}

// Seal merges the registered occurrences and returns the immutable
// selection. Calling Seal again returns the same selection; every mutating
// method fails with ErrSealed afterwards.
func (b *Builder) Seal() *Selection {
	if b.sealed != nil {
		return b.sealed
	}
	if b.kind.IsConditional() && len(b.conditions) == 0 {
		panic(errors.Wrapf(ErrInvariant, "%s selection %q has no conditions", b.kind, b.responseName))
	}

	s := &Selection{
		declaringType: b.declaringType,
		field:         b.field,
		node:          b.node,
		responseName:  b.responseName,
		pipeline:      b.pipeline,
		arguments:     b.arguments,
		kind:          b.kind,
		conditions:    b.conditions,
		nodes:         b.nodes,
	}
	if b.nodes != nil {
		s.node = MergeFields(b.nodes)
	}
	b.sealed = s
	return s
}

// Selection is a sealed prepared selection. It is immutable and safe for
// concurrent use.
type Selection struct {
	declaringType *schema.Type
	field         *schema.Field
	node          *language.Field
	responseName  string
	pipeline      Pipeline
	arguments     *ArgumentMap
	kind          InclusionKind
	conditions    []IncludeCondition
	nodes         []*language.Field
}

// DeclaringType is the object type the selection is evaluated against.
func (s *Selection) DeclaringType() *schema.Type { return s.declaringType }

// Field is the schema field the selection resolves.
func (s *Selection) Field() *schema.Field { return s.field }

// Node is the merged field node.
func (s *Selection) Node() *language.Field { return s.node }

// SelectionSet is the merged child selection set, nil for leaf fields.
func (s *Selection) SelectionSet() language.SelectionSet { return s.node.SelectionSet }

// Nodes returns the registered occurrences in registration order, or nil when
// the field occurred only once. The slice must not be modified.
func (s *Selection) Nodes() []*language.Field { return s.nodes }

// ResponseName is the alias, or the field name when there is none.
func (s *Selection) ResponseName() string         { return s.responseName }
func (s *Selection) Pipeline() Pipeline           { return s.pipeline }
func (s *Selection) Arguments() *ArgumentMap      { return s.arguments }
func (s *Selection) InclusionKind() InclusionKind { return s.kind }
func (s *Selection) IsInternal() bool             { return s.kind.IsInternal() }
func (s *Selection) IsConditional() bool          { return s.kind.IsConditional() }

// Conditions returns the inclusion conditions; nil unless the selection is
// conditional. The slice must not be modified.
func (s *Selection) Conditions() []IncludeCondition { return s.conditions }

// IsIncluded reports whether the selection contributes to a response for the
// given variables. Internal selections require allowInternal.
func (s *Selection) IsIncluded(variables map[string]any, allowInternal bool) bool {
	switch s.kind {
	case Always:
		return true
	case Conditional:
		return s.anyConditionTrue(variables)
	case Internal:
		return allowInternal
	case InternalConditional:
		return allowInternal && s.anyConditionTrue(variables)
	default:
		panic(errors.Wrapf(ErrUnsupportedInclusionKind, "%s", s.kind))
	}
}

func (s *Selection) anyConditionTrue(variables map[string]any) bool {
	for _, c := range s.conditions {
		if c.IsTrue(variables) {
			return true
		}
	}
	return false
}
