package planner

import (
	"context"
	"slices"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	language "github.com/hanpama/gqlplan/internal/language"
	schema "github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/selection"
)

var (
	ErrUnknownOperation = errors.New("planner: unknown operation")
	ErrNoRootType       = errors.New("planner: schema has no root type for operation")
	ErrUnknownField     = errors.New("planner: unknown field")
	ErrUnknownArgument  = errors.New("planner: unknown argument")
	ErrUnknownFragment  = errors.New("planner: unknown fragment")
	ErrInvalidCondition = errors.New("planner: invalid @skip/@include condition")
	ErrTooDeep          = errors.New("planner: selection depth limit exceeded")
)

// DefaultMaxDepth bounds the nesting of compiled selection sets.
const DefaultMaxDepth = 64

// PipelineFactory returns the resolver pipeline for a field of an object
// type. It is called once per compiled selection.
type PipelineFactory func(objectType *schema.Type, field *schema.Field) selection.Pipeline

type Option func(*Compiler)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

// WithInternalFields makes every selection set on typeName also select the
// given fields as internal selections, unless the query already uses their
// response names.
func WithInternalFields(typeName string, fields ...string) Option {
	return func(c *Compiler) {
		c.internal[typeName] = append(c.internal[typeName], fields...)
	}
}

func WithMaxDepth(depth int) Option {
	return func(c *Compiler) { c.maxDepth = depth }
}

// Compiler turns executable documents into plans. A Compiler is safe for
// concurrent use; every Compile call works on its own state.
type Compiler struct {
	schema    *schema.Schema
	pipelines PipelineFactory
	logger    *zap.Logger
	internal  map[string][]string
	maxDepth  int
}

func NewCompiler(s *schema.Schema, pipelines PipelineFactory, opts ...Option) *Compiler {
	c := &Compiler{
		schema:    s,
		pipelines: pipelines,
		logger:    zap.NewNop(),
		internal:  make(map[string][]string),
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipelines == nil {
		c.pipelines = unresolvedPipeline
	}
	return c
}

// Compile selects the named operation of doc (or its only operation when
// operationName is empty) and compiles it into a plan.
func (c *Compiler) Compile(doc *language.QueryDocument, operationName string) (*Plan, error) {
	op, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}
	rootType, err := c.rootType(op)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Document:  doc,
		Operation: op,
		RootType:  rootType,
		sets:      make(map[setKey]*SelectionSet),
		children:  make(map[*selection.Selection][]*SelectionSet),
	}
	run := &compilation{Compiler: c, doc: doc, plan: p, occurrences: make(map[*selection.Builder][]occurrence)}
	root := occurrence{node: &language.Field{SelectionSet: op.SelectionSet}}
	p.root, err = run.compileSet(rootType, []occurrence{root}, 0)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("compiled operation",
		zap.String("operation", op.Name),
		zap.String("kind", string(op.Operation)),
		zap.Int("selections", p.count),
		zap.Int("selectionSets", len(p.sets)+1),
	)
	return p, nil
}

func (c *Compiler) rootType(op *language.OperationDefinition) (*schema.Type, error) {
	var t *schema.Type
	switch op.Operation {
	case language.Query:
		t = c.schema.GetQueryType()
	case language.Mutation:
		t = c.schema.GetMutationType()
	case language.Subscription:
		t = c.schema.GetSubscriptionType()
	}
	if t == nil {
		return nil, errors.Wrapf(ErrNoRootType, "%s", op.Operation)
	}
	return t, nil
}

func selectOperation(doc *language.QueryDocument, name string) (*language.OperationDefinition, error) {
	if name == "" {
		switch len(doc.Operations) {
		case 0:
			return nil, errors.Wrap(ErrUnknownOperation, "document contains no operations")
		case 1:
			return doc.Operations[0], nil
		default:
			return nil, errors.Wrap(ErrUnknownOperation, "operation name is required when the document contains several operations")
		}
	}
	if op := doc.Operations.ForName(name); op != nil {
		return op, nil
	}
	return nil, errors.Wrapf(ErrUnknownOperation, "%q", name)
}

// compilation holds the state of one Compile call.
type compilation struct {
	*Compiler
	doc  *language.QueryDocument
	plan *Plan

	// occurrences lists, per builder of the set being compiled, every field
	// node merged into it together with the guard it was collected under.
	occurrences map[*selection.Builder][]occurrence
}

// occurrence is one field node collected under guard. Child selections of
// the node inherit guard as their parent condition.
type occurrence struct {
	node  *language.Field
	guard *selection.Condition
}

type accumulator = orderedmap.OrderedMap[string, *selection.Builder]

func (r *compilation) compileSet(objectType *schema.Type, sources []occurrence, depth int) (*SelectionSet, error) {
	if depth > r.maxDepth {
		return nil, errors.Wrapf(ErrTooDeep, "limit %d", r.maxDepth)
	}

	acc := orderedmap.NewOrderedMap[string, *selection.Builder]()
	for _, src := range sources {
		if err := r.collect(objectType, src.node.SelectionSet, src.guard, acc, nil); err != nil {
			return nil, err
		}
	}
	if err := r.addInternalFields(objectType, acc); err != nil {
		return nil, err
	}

	out := &SelectionSet{Type: objectType, Selections: make([]*selection.Selection, 0, acc.Len())}
	for el := acc.Front(); el != nil; el = el.Next() {
		occ := r.occurrences[el.Value]
		delete(r.occurrences, el.Value)
		sel := el.Value.Seal()
		out.Selections = append(out.Selections, sel)
		r.plan.count++
		if err := r.compileChildren(sel, occ, depth); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// compileChildren compiles the child selections of every occurrence of sel
// once for every object type its value can have. Each occurrence contributes
// its fields under its own guard.
func (r *compilation) compileChildren(sel *selection.Selection, occ []occurrence, depth int) error {
	if sel.SelectionSet() == nil {
		return nil
	}
	named := schema.GetNamedType(sel.Field().Type)
	for _, objectType := range r.schema.PossibleObjectTypes(named) {
		set, err := r.compileSet(objectType, occ, depth+1)
		if err != nil {
			return err
		}
		r.plan.sets[setKey{parent: sel, typeName: objectType.Name}] = set
		r.plan.children[sel] = append(r.plan.children[sel], set)
	}
	return nil
}

// collect walks set and records every field that applies to objectType.
// parent is the guard of the enclosing fragments; fragments lists the
// fragment spreads currently being expanded.
func (r *compilation) collect(objectType *schema.Type, set language.SelectionSet, parent *selection.Condition, acc *accumulator, fragments []string) error {
	for _, node := range set {
		switch n := node.(type) {
		case *language.Field:
			cond, drop, err := conditionOf(n.Directives, parent)
			if err != nil {
				return errors.Wrapf(err, "field %q", n.Name)
			}
			if drop {
				continue
			}
			if err := r.addField(objectType, n, cond, acc); err != nil {
				return err
			}

		case *language.InlineFragment:
			cond, drop, err := conditionOf(n.Directives, parent)
			if err != nil {
				return errors.Wrap(err, "inline fragment")
			}
			if drop || !r.typeConditionMatches(n.TypeCondition, objectType) {
				continue
			}
			if err := r.collect(objectType, n.SelectionSet, cond, acc, fragments); err != nil {
				return err
			}

		case *language.FragmentSpread:
			cond, drop, err := conditionOf(n.Directives, parent)
			if err != nil {
				return errors.Wrapf(err, "fragment spread %q", n.Name)
			}
			if drop || slices.Contains(fragments, n.Name) {
				continue
			}
			def := r.doc.Fragments.ForName(n.Name)
			if def == nil {
				return errors.Wrapf(ErrUnknownFragment, "%q", n.Name)
			}
			if !r.typeConditionMatches(def.TypeCondition, objectType) {
				continue
			}
			if err := r.collect(objectType, def.SelectionSet, cond, acc, append(fragments, n.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *compilation) addField(objectType *schema.Type, node *language.Field, cond *selection.Condition, acc *accumulator) error {
	field := objectType.FieldByName(node.Name)
	if field == nil {
		return errors.Wrapf(ErrUnknownField, "cannot query field %q on type %q", node.Name, objectType.Name)
	}

	var guard selection.IncludeCondition
	if cond != nil {
		guard = cond
	}

	key := language.ResponseName(node)
	if b, ok := acc.Get(key); ok {
		r.addOccurrence(b, node, cond)
		return b.AddOccurrence(node, guard)
	}

	args, err := preparedArguments(field, node)
	if err != nil {
		return err
	}
	b, err := selection.New(objectType, field, node, r.pipelineFor(objectType, field),
		selection.WithArguments(args...),
		selection.WithCondition(guard),
	)
	if err != nil {
		return errors.Wrapf(err, "%s.%s", objectType.Name, field.Name)
	}
	r.addOccurrence(b, node, cond)
	acc.Set(key, b)
	return nil
}

// addOccurrence records node under guard for b, once per distinct pair.
func (r *compilation) addOccurrence(b *selection.Builder, node *language.Field, guard *selection.Condition) {
	for _, o := range r.occurrences[b] {
		if o.node == node && sameGuard(o.guard, guard) {
			return
		}
	}
	r.occurrences[b] = append(r.occurrences[b], occurrence{node: node, guard: guard})
}

func sameGuard(a, b *selection.Condition) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b)
}

func (r *compilation) addInternalFields(objectType *schema.Type, acc *accumulator) error {
	for _, name := range r.internal[objectType.Name] {
		if _, ok := acc.Get(name); ok {
			continue
		}
		field := objectType.FieldByName(name)
		if field == nil {
			return errors.Wrapf(ErrUnknownField, "internal field %q on type %q", name, objectType.Name)
		}
		args, err := preparedArguments(field, nil)
		if err != nil {
			return err
		}
		node := &language.Field{Alias: name, Name: name}
		b, err := selection.New(objectType, field, node, r.pipelineFor(objectType, field),
			selection.WithArguments(args...),
			selection.AsInternal(),
		)
		if err != nil {
			return errors.Wrapf(err, "%s.%s", objectType.Name, field.Name)
		}
		acc.Set(name, b)
	}
	return nil
}

func (r *compilation) pipelineFor(objectType *schema.Type, field *schema.Field) selection.Pipeline {
	if field == schema.TypenameField {
		return typenamePipeline(objectType.Name)
	}
	return r.pipelines(objectType, field)
}

// typeConditionMatches reports whether a fragment with the given type
// condition applies to objectType.
func (r *compilation) typeConditionMatches(typeCondition string, objectType *schema.Type) bool {
	if typeCondition == "" || typeCondition == objectType.Name {
		return true
	}
	t := r.schema.Types[typeCondition]
	return t != nil && t.IsAbstract() && t.HasPossibleType(objectType.Name)
}

// preparedArguments pairs every argument definition of field with the value
// node the query gives it, in definition order. node may be nil.
func preparedArguments(field *schema.Field, node *language.Field) ([]*selection.Argument, error) {
	var given language.ArgumentList
	if node != nil {
		given = node.Arguments
	}
	for _, a := range given {
		if field.ArgumentByName(a.Name) == nil {
			return nil, errors.Wrapf(ErrUnknownArgument, "%q on field %q", a.Name, field.Name)
		}
	}

	args := make([]*selection.Argument, 0, len(field.Arguments))
	for _, def := range field.Arguments {
		arg := &selection.Argument{Name: def.Name, Definition: def}
		if a := given.ForName(def.Name); a != nil {
			arg.Value = a.Value
		}
		args = append(args, arg)
	}
	return args, nil
}

// conditionOf derives the guard of a node from its @skip and @include
// directives. Literal guards are decided here: drop reports a node that is
// never included, and a literal that always includes adds no condition.
func conditionOf(directives language.DirectiveList, parent *selection.Condition) (cond *selection.Condition, drop bool, err error) {
	skip, dropSkip, err := operandOf(directives, "skip", true)
	if err != nil {
		return nil, false, err
	}
	include, dropInclude, err := operandOf(directives, "include", false)
	if err != nil {
		return nil, false, err
	}
	if dropSkip || dropInclude {
		return nil, true, nil
	}
	if skip == nil && include == nil {
		return parent, false, nil
	}
	return selection.NewCondition(skip, include, parent), false, nil
}

func operandOf(directives language.DirectiveList, name string, dropWhen bool) (*selection.Operand, bool, error) {
	d := directives.ForName(name)
	if d == nil {
		return nil, false, nil
	}
	arg := d.Arguments.ForName("if")
	if arg == nil || arg.Value == nil {
		return nil, false, errors.Wrapf(ErrInvalidCondition, "@%s requires an if argument", name)
	}
	switch arg.Value.Kind {
	case language.Variable:
		op := selection.VariableOperand(arg.Value.Raw)
		return &op, false, nil
	case language.BooleanValue:
		return nil, (arg.Value.Raw == "true") == dropWhen, nil
	default:
		return nil, false, errors.Wrapf(ErrInvalidCondition, "@%s(if:) must be a Boolean, got %s", name, arg.Value.String())
	}
}

func typenamePipeline(name string) selection.Pipeline {
	return func(context.Context, any, map[string]any) (any, error) {
		return name, nil
	}
}

func unresolvedPipeline(objectType *schema.Type, field *schema.Field) selection.Pipeline {
	return func(context.Context, any, map[string]any) (any, error) {
		return nil, errors.Errorf("no resolver for %s.%s", objectType.Name, field.Name)
	}
}
