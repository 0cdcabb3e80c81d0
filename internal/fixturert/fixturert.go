// Package fixturert implements executor.Runtime over a JSON document.
//
// The document holds one object per root operation type, keyed by type name:
//
//	{"Query": {"user": {"id": "1", "name": "ann"}}}
//
// A field resolves to the member of its source object named after the field.
// A member whose key also spells out argument values, such as
// `user(id:"2")`, takes precedence when the arguments match. Abstract values
// name their concrete type in a "__typename" member.
package fixturert

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	executor "github.com/hanpama/gqlplan/internal/executor"
)

type Runtime struct {
	data   map[string]any
	logger *zap.Logger
}

var _ executor.Runtime = (*Runtime)(nil)

type Option func(*Runtime)

func WithLogger(l *zap.Logger) Option { return func(r *Runtime) { r.logger = l } }

// New decodes a fixture document.
func New(doc []byte, opts ...Option) (*Runtime, error) {
	var data map[string]any
	if err := json.Unmarshal(doc, &data); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	r := &Runtime{data: data, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Load reads and decodes the fixture document at path.
func Load(path string, opts ...Option) (*Runtime, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(doc, opts...)
}

func (r *Runtime) ResolveSync(_ context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	return r.resolve(objectType, field, source, args)
}

func (r *Runtime) BatchResolveAsync(_ context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	out := make([]executor.AsyncResolveResult, len(tasks))
	for i, t := range tasks {
		out[i].Value, out[i].Error = r.resolve(t.ObjectType, t.Field, t.Source, t.Args)
	}
	r.logger.Debug("resolved batch", zap.Int("tasks", len(tasks)))
	return out
}

func (r *Runtime) resolve(objectType, field string, source any, args map[string]any) (any, error) {
	if source == nil {
		source = r.data[objectType]
	}
	obj, ok := source.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("fixture: %s.%s: source is %T, not an object", objectType, field, source)
	}
	if len(args) > 0 {
		if v, ok := obj[argumentKey(field, args)]; ok {
			return v, nil
		}
	}
	return obj[field], nil
}

// argumentKey spells field and args the way fixture keys do, with arguments
// sorted by name and values in JSON.
func argumentKey(field string, args map[string]any) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(field)
	b.WriteByte('(')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		v, err := json.Marshal(args[name])
		if err != nil {
			v = []byte(fmt.Sprint(args[name]))
		}
		b.WriteString(name)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte(')')
	return b.String()
}

func (r *Runtime) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	if obj, ok := value.(map[string]any); ok {
		if name, ok := obj["__typename"].(string); ok && name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("fixture: value of abstract type %s has no __typename", abstractType)
}

func (r *Runtime) ResolveUnionConcreteValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

func (r *Runtime) ResolveInterfaceConcreteValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

// SerializeLeafValue maps decoded JSON values onto the built-in scalars.
// Enums and custom scalars pass through.
func (r *Runtime) SerializeLeafValue(_ context.Context, typeName string, value any) (any, error) {
	switch typeName {
	case "Int":
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent %v", value)
		}
		return int64(f), nil
	case "Float":
		if f, ok := value.(float64); ok {
			return f, nil
		}
		return nil, fmt.Errorf("Float cannot represent %v", value)
	case "String":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("String cannot represent %v", value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("Boolean cannot represent %v", value)
	case "ID":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			if v == math.Trunc(v) {
				return fmt.Sprintf("%.0f", v), nil
			}
		}
		return nil, fmt.Errorf("ID cannot represent %v", value)
	default:
		return value, nil
	}
}
