package executor

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	eventbus "github.com/hanpama/gqlplan/internal/eventbus"
	events "github.com/hanpama/gqlplan/internal/events"
	language "github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/planner"
	schema "github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/selection"
)

type Path []PathElement

type PathElement any

type NodeID uint64

// executionState holds the state during query execution
type executionState struct {
	runtime        Runtime
	schema         *schema.Schema
	plan           *planner.Plan
	variableValues map[string]any
	allowInternal  bool
	context        context.Context
	asyncTaskGroup []asyncTask
	errors         []GraphQLError
	// Store async tasks by ID for completion
	asyncTaskInfo map[NodeID]asyncTask
	// simple incremental id generator
	nextID uint64
	// prefixes of paths that have been nullified (tombstoned)
	nullifiedPrefix map[string]struct{}
}

// asyncTask represents a pending async field resolution
type asyncTask struct {
	ID           NodeID
	Task         AsyncResolveTask
	ResponsePath Path
	Selection    *selection.Selection
}

type asyncPending struct{}

// Option configures an Executor.
type Option func(*Executor)

// WithAllowInternal makes internal selections part of every response.
func WithAllowInternal(allow bool) Option {
	return func(e *Executor) { e.allowInternal = allow }
}

// WithPlanCacheSize sets how many prepared plans are kept.
func WithPlanCacheSize(size int) Option {
	return func(e *Executor) { e.cacheSize = size }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithInternalFields adds fields to every selection set on typeName as
// internal selections. See planner.WithInternalFields.
func WithInternalFields(typeName string, fields ...string) Option {
	return func(e *Executor) {
		e.compilerOpts = append(e.compilerOpts, planner.WithInternalFields(typeName, fields...))
	}
}

type Executor struct {
	runtime       Runtime
	schema        *schema.Schema
	compiler      *planner.Compiler
	cache         *planner.Cache
	logger        *zap.Logger
	allowInternal bool
	cacheSize     int
	compilerOpts  []planner.Option
}

func NewExecutor(runtime Runtime, schema *schema.Schema, opts ...Option) *Executor {
	e := &Executor{
		runtime:   runtime,
		schema:    schema,
		logger:    zap.NewNop(),
		cacheSize: planner.DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cacheSize <= 0 {
		e.cacheSize = planner.DefaultCacheSize
	}
	// NewCache only fails for non-positive sizes.
	e.cache, _ = planner.NewCache(e.cacheSize)
	e.compiler = planner.NewCompiler(schema, e.pipelineFor,
		append([]planner.Option{planner.WithLogger(e.logger)}, e.compilerOpts...)...)
	return e
}

// pipelineFor binds a field to the runtime entry point matching its async
// flag. Async fields reached during breadth-first execution are batched and
// do not go through their pipeline.
func (e *Executor) pipelineFor(objectType *schema.Type, field *schema.Field) selection.Pipeline {
	typeName, fieldName := objectType.Name, field.Name
	if !field.Async {
		return func(ctx context.Context, source any, args map[string]any) (any, error) {
			return e.runtime.ResolveSync(ctx, typeName, fieldName, source, args)
		}
	}
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		results := e.runtime.BatchResolveAsync(ctx, []AsyncResolveTask{{
			ObjectType: typeName,
			Field:      fieldName,
			Source:     source,
			Args:       args,
		}})
		if len(results) != 1 {
			return nil, fmt.Errorf("runtime returned %d results for 1 task", len(results))
		}
		return results[0].Value, results[0].Error
	}
}

// Prepare parses query and compiles the selected operation, reusing a cached
// plan for the same query text and operation name. Queries are validated
// against the schema when it was built from SDL.
func (e *Executor) Prepare(ctx context.Context, query, operationName string) (*planner.Plan, error) {
	start := time.Now()
	key := planner.Key(query, operationName)
	plan, hit, err := e.cache.GetOrCompile(key, func() (*planner.Plan, error) {
		doc, err := e.parse(query)
		if err != nil {
			return nil, err
		}
		return e.compiler.Compile(doc, operationName)
	})

	ev := events.PlanCompiled{
		OperationName: operationName,
		Key:           key,
		CacheHit:      hit,
		Err:           err,
		Duration:      time.Since(start),
	}
	if plan != nil {
		ev.OperationType = string(plan.Operation.Operation)
		ev.Selections = plan.SelectionCount()
	}
	eventbus.Publish(ctx, ev)

	if err != nil {
		e.logger.Debug("prepare failed", zap.String("operation", operationName), zap.Error(err))
		return nil, err
	}
	return plan, nil
}

func (e *Executor) parse(query string) (*language.QueryDocument, error) {
	if e.schema.AST != nil {
		return language.ValidateQuery(e.schema.AST, query)
	}
	return language.ParseQuery(query)
}

// ExecuteRequest compiles the selected operation of document without caching
// and executes it.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	plan, err := e.compiler.Compile(document, operationName)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}
	return e.ExecutePlan(ctx, plan, variableValues, initialValue)
}

// ExecutePlan executes a compiled plan with the given variables.
func (e *Executor) ExecutePlan(
	ctx context.Context,
	plan *planner.Plan,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	coercedVariableValues, err := coerceVariableValues(e.schema, plan.Operation, variableValues)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	state := &executionState{
		runtime:         e.runtime,
		schema:          e.schema,
		plan:            plan,
		variableValues:  coercedVariableValues,
		allowInternal:   e.allowInternal,
		context:         ctx,
		asyncTaskGroup:  []asyncTask{},
		errors:          []GraphQLError{},
		asyncTaskInfo:   make(map[NodeID]asyncTask),
		nextID:          1,
		nullifiedPrefix: make(map[string]struct{}),
	}

	responseRoot := make(map[string]any)

	if plan.Operation.Operation == language.Mutation {
		executeSerially(state, plan.Root(), initialValue, responseRoot)
		return &ExecutionResult{Data: responseRoot, Errors: state.errors}
	}

	// Root selection set: sync immediate expansion, async queued
	rootResult := executeSelectionSet(state, plan.Root(), initialValue, Path{})
	for k, v := range rootResult {
		responseRoot[k] = v
	}
	state.drain(responseRoot)

	return &ExecutionResult{Data: responseRoot, Errors: state.errors}
}

// drain runs the depth-wise batch loop until no async work is left.
func (s *executionState) drain(responseRoot map[string]any) {
	for len(s.asyncTaskGroup) > 0 {
		filtered, results := flushAsyncTasks(s)
		for i, r := range results {
			completeAsyncField(s, filtered[i], r, responseRoot)
		}
	}
}

// executeSerially resolves the root fields of a mutation one after another
// through their pipelines. Each field, including the async work below it, is
// complete before the next one starts.
func executeSerially(state *executionState, set *planner.SelectionSet, rootValue any, responseRoot map[string]any) {
	for _, sel := range set.Selections {
		if !sel.IsIncluded(state.variableValues, state.allowInternal) {
			continue
		}
		name := sel.ResponseName()
		path := Path{name}
		args := coerceArgumentValues(sel.Arguments(), state.variableValues, state, path)

		value, err := sel.Pipeline()(state.context, rootValue, args)
		if err != nil {
			state.addError(err.Error(), path)
			value = nil
		}
		completed := completeValue(state, sel.Field().Type, sel, value, path)
		if isNullish(completed) {
			responseRoot[name] = nil
		} else {
			responseRoot[name] = completed
		}
		state.drain(responseRoot)
	}
}

// executeSelectionSet executes a selection set without flushing
func executeSelectionSet(state *executionState, set *planner.SelectionSet, objectValue any, path Path) map[string]any {
	resultMap := make(map[string]any, len(set.Selections))

	for _, sel := range set.Selections {
		if !sel.IsIncluded(state.variableValues, state.allowInternal) {
			continue
		}
		responseName := sel.ResponseName()
		fieldPath := appendPath(path, responseName)

		fieldResult := executeField(state, set.Type, sel, objectValue, fieldPath)

		// Handle non-null child behavior with nullish detection
		if schema.IsNonNull(sel.Field().Type) && isNullish(fieldResult) {
			if len(path) > 0 {
				return nil
			}
			// Root level: keep going but write nil
			resultMap[responseName] = nil
			continue
		}

		// For nullable fields, coerce typed-nil to interface-nil
		if isNullish(fieldResult) {
			resultMap[responseName] = nil
		} else {
			resultMap[responseName] = fieldResult
		}
	}

	return resultMap
}

func executeField(state *executionState, objectType *schema.Type, sel *selection.Selection, objectValue any, path Path) any {
	fieldDef := sel.Field()

	// __typename is answered by the plan without a runtime call
	if fieldDef == schema.TypenameField {
		v, _ := sel.Pipeline()(state.context, objectValue, nil)
		return v
	}

	argumentValues := coerceArgumentValues(sel.Arguments(), state.variableValues, state, path)

	if !fieldDef.Async {
		resolvedValue := resolveSyncField(state, sel, objectValue, argumentValues, path)
		return completeValue(state, fieldDef.Type, sel, resolvedValue, path)
	}

	id := NodeID(state.nextID)
	state.nextID++
	at := asyncTask{
		ID: id,
		Task: AsyncResolveTask{
			ObjectType: objectType.Name,
			Field:      fieldDef.Name,
			Source:     objectValue,
			Args:       argumentValues,
		},
		ResponsePath: path,
		Selection:    sel,
	}
	state.asyncTaskGroup = append(state.asyncTaskGroup, at)
	state.asyncTaskInfo[id] = at
	return asyncPending{}
}

// flushAsyncTasks flushes tasks and returns results (filtered by tombstones)
func flushAsyncTasks(state *executionState) ([]asyncTask, []AsyncResolveResult) {
	// Filter out tasks under nullified prefixes
	filtered := make([]asyncTask, 0, len(state.asyncTaskGroup))
	for _, at := range state.asyncTaskGroup {
		if state.hasNullifiedPrefix(at.ResponsePath) {
			delete(state.asyncTaskInfo, at.ID)
			continue
		}
		filtered = append(filtered, at)
	}

	tasks := make([]AsyncResolveTask, len(filtered))
	for i, at := range filtered {
		tasks[i] = at.Task
	}

	// Clear group before executing
	state.asyncTaskGroup = nil
	if len(tasks) == 0 {
		return nil, nil
	}

	results := state.runtime.BatchResolveAsync(state.context, tasks)
	if n := len(results); n != len(tasks) {
		// results[i] must pair with tasks[i]; fail the whole depth otherwise
		results = make([]AsyncResolveResult, len(tasks))
		for i := range results {
			results[i].Error = fmt.Errorf("runtime returned %d results for %d tasks", n, len(tasks))
		}
	}
	return filtered, results
}

// completeAsyncField completes a single async result, with non-null propagation and pruning
func completeAsyncField(state *executionState, at asyncTask, res AsyncResolveResult, responseRoot map[string]any) {
	delete(state.asyncTaskInfo, at.ID)

	path := at.ResponsePath
	if state.hasNullifiedPrefix(path) {
		return
	}
	fieldType := at.Selection.Field().Type

	if res.Error != nil {
		state.errors = append(state.errors, GraphQLError{Message: res.Error.Error(), Path: path})
		if schema.IsNonNull(fieldType) {
			top := topLevelFieldPath(path)
			setValueAtPath(responseRoot, top, nil)
			state.markNullifiedPrefix(top)
			return
		}
		setValueAtPath(responseRoot, path, nil)
		return
	}

	completed := completeValue(state, fieldType, at.Selection, res.Value, path)

	if schema.IsNonNull(fieldType) && isNullish(completed) {
		top := topLevelFieldPath(path)
		setValueAtPath(responseRoot, top, nil)
		state.markNullifiedPrefix(top)
		return
	}

	if isNullish(completed) {
		setValueAtPath(responseRoot, path, nil)
	} else {
		setValueAtPath(responseRoot, path, completed)
	}
}

// completeValue completes a value
func completeValue(state *executionState, fieldType *schema.TypeRef, sel *selection.Selection, result any, path Path) any {
	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.errors = append(state.errors, GraphQLError{Message: fmt.Sprintf("Cannot return null for non-nullable field %s", pathToString(path)), Path: path})
			}
			return nil
		}
		completed := completeValue(state, schema.Unwrap(fieldType), sel, result, path)
		if isNullish(completed) {
			// Error already recorded at original path; propagate only
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}

	if schema.IsList(fieldType) {
		return completeListValue(state, fieldType, sel, result, path)
	}
	namedType := schema.GetNamedType(fieldType)
	typeObj := state.schema.Types[namedType]
	if typeObj == nil {
		state.addError(fmt.Sprintf("Unknown type: %s", namedType), path)
		return nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := state.runtime.SerializeLeafValue(state.context, namedType, result)
		if err != nil {
			state.addError(err.Error(), path)
			return nil
		}
		return serialized
	case schema.TypeKindObject:
		return completeObjectValue(state, typeObj, sel, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(state, typeObj, sel, result, path)
	default:
		state.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind), path)
		return nil
	}
}

// completeListValue completes a list value
func completeListValue(state *executionState, listType *schema.TypeRef, sel *selection.Selection, result any, path Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice {
			state.addError(fmt.Sprintf("Expected list value, got %T", result), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := schema.Unwrap(listType)
	completed := make([]any, len(items))
	for i, item := range items {
		p := appendPath(path, i)
		v := completeValue(state, inner, sel, item, p)
		if schema.IsNonNull(inner) && isNullish(v) {
			// Propagate null to the list field; error already recorded by inner completion
			return nil
		}
		if isNullish(v) {
			v = nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(state *executionState, objectType *schema.Type, sel *selection.Selection, result any, path Path) any {
	set := state.plan.SelectionSet(sel, objectType)
	if set == nil {
		if sel.SelectionSet() != nil {
			state.addError(fmt.Sprintf("Type %s is not a possible type of field %s", objectType.Name, sel.Field().Name), path)
			return nil
		}
		return map[string]any{}
	}
	return executeSelectionSet(state, set, result, path)
}

func completeAbstractValue(state *executionState, abstractType *schema.Type, sel *selection.Selection, result any, path Path) any {
	typeName, err := state.runtime.ResolveType(state.context, abstractType.Name, result)
	if err != nil {
		state.addError(err.Error(), path)
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		state.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType.Name, typeName), path)
		return nil
	}
	if !abstractType.HasPossibleType(typeName) {
		state.addError(fmt.Sprintf("Runtime Object type %s is not a possible type for %s", typeName, abstractType.Name), path)
		return nil
	}

	var concrete any
	if abstractType.Kind == schema.TypeKindUnion {
		concrete, err = state.runtime.ResolveUnionConcreteValue(state.context, abstractType.Name, result)
	} else {
		concrete, err = state.runtime.ResolveInterfaceConcreteValue(state.context, abstractType.Name, result)
	}
	if err != nil {
		state.addError(err.Error(), path)
		return nil
	}
	return completeObjectValue(state, objectType, sel, concrete, path)
}

func pathToString(path Path) string {
	result := ""
	for i, elem := range path {
		if i > 0 {
			result += "."
		}
		switch v := elem.(type) {
		case string:
			result += v
		case int:
			result += fmt.Sprintf("[%d]", v)
		}
	}
	return result
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

// Prefix tombstone helpers
func (s *executionState) markNullifiedPrefix(p Path) {
	key := pathToString(p)
	if key != "" {
		s.nullifiedPrefix[key] = struct{}{}
	}
}

func (s *executionState) hasNullifiedPrefix(p Path) bool {
	if len(s.nullifiedPrefix) == 0 {
		return false
	}
	cur := Path{}
	for _, elem := range p {
		cur = append(cur, elem)
		if _, ok := s.nullifiedPrefix[pathToString(cur)]; ok {
			return true
		}
	}
	return false
}

func topLevelFieldPath(p Path) Path {
	for _, elem := range p {
		if name, ok := elem.(string); ok {
			return Path{name}
		}
	}
	return Path{}
}

func (s *executionState) addError(message string, path Path) {
	s.errors = append(s.errors, GraphQLError{Message: message, Path: path})
}

// hasErrorAtPath reports whether an error with the given path already exists.
func (s *executionState) hasErrorAtPath(path Path) bool {
	for _, err := range s.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}

// resolveSyncField runs the selection's pipeline and records its error.
func resolveSyncField(state *executionState, sel *selection.Selection, source any, args map[string]any, path Path) any {
	value, err := sel.Pipeline()(state.context, source, args)
	if err != nil {
		state.addError(err.Error(), path)
		return nil
	}
	return value
}

// Helper function to set value at a specific path in response tree
func setValueAtPath(responseRoot map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		if key, ok := path[0].(string); ok {
			responseRoot[key] = value
			return
		}
	}
	current := any(responseRoot)
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return
			}
			next, exists := m[e]
			if !exists {
				next = make(map[string]any)
				m[e] = next
			}
			current = next
		case int:
			slice, ok := current.([]any)
			if !ok || e >= len(slice) {
				return
			}
			if slice[e] == nil {
				slice[e] = make(map[string]any)
			}
			current = slice[e]
		}
	}
	switch fe := path[len(path)-1].(type) {
	case string:
		if m, ok := current.(map[string]any); ok {
			m[fe] = value
		}
	case int:
		if slice, ok := current.([]any); ok && fe < len(slice) {
			slice[fe] = value
		}
	}
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
