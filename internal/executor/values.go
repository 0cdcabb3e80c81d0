package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	language "github.com/hanpama/gqlplan/internal/language"
	schema "github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/selection"
)

// coerceVariableValues coerces variable values according to their types
func coerceVariableValues(
	sch *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	if variableValues == nil {
		variableValues = make(map[string]any)
	}
	coerced := make(map[string]any)
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := varDef.Type
		val, ok := variableValues[name]
		if !ok {
			if v2, ok2 := variableValues[strings.TrimPrefix(name, "$")]; ok2 {
				val = v2
				ok = true
			}
		}
		if !ok {
			if varDef.DefaultValue != nil {
				val = astValueToGo(varDef.DefaultValue)
			} else if t.NonNull {
				return nil, errors.Errorf("variable $%s of required type %s was not provided", name, t.String())
			} else {
				continue
			}
		}
		if val == nil && t.NonNull {
			return nil, errors.Errorf("variable $%s of type %s cannot be null", name, t.String())
		}
		cv, err := coerceValue(sch, val, schema.TypeRefFromAST(t))
		if err != nil {
			return nil, errors.Errorf("variable $%s of type %s cannot be coerced: %v", name, t.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces the prepared arguments of a selection.
// Arguments the query omits, or passes as an unset variable, take their
// default value.
func coerceArgumentValues(
	arguments *selection.ArgumentMap,
	variableValues map[string]any,
	state *executionState,
	path Path,
) map[string]any {
	coerced := make(map[string]any, arguments.Len())
	arguments.Range(func(arg *selection.Argument) bool {
		argDef := arg.Definition
		if arg.IsDefaulted() || !variableProvided(arg.Value, variableValues) {
			if argDef.DefaultValue != nil {
				coerced[arg.Name] = argDef.DefaultValue
			} else if schema.IsNonNull(argDef.Type) {
				state.addError(fmt.Sprintf("argument '%s' of required type was not provided", arg.Name), path)
			}
			return true
		}
		val := valueFromASTWithVars(arg.Value, variableValues)
		cv, err := coerceValue(state.schema, val, argDef.Type)
		if err != nil {
			state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", arg.Name, err), path)
			return true
		}
		coerced[arg.Name] = cv
		return true
	})
	return coerced
}

// variableProvided reports false only for a bare variable reference that has
// no value.
func variableProvided(value *language.Value, variableValues map[string]any) bool {
	if value == nil || value.Kind != language.Variable {
		return true
	}
	_, ok := variableValues[value.Raw]
	return ok
}

// valueFromASTWithVars converts an AST value to a runtime value with variable substitution
func valueFromASTWithVars(value *language.Value, variableValues map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		name := value.Raw
		if v, ok := variableValues[name]; ok {
			return v
		}
		if v, ok := variableValues[strings.TrimPrefix(name, "$")]; ok {
			return v
		}
		return nil
	default:
		return astValueToGo(value)
	}
}

// astValueToGo converts an AST value to a Go value
func astValueToGo(value *language.Value) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.NullValue:
		return nil
	case language.EnumValue:
		return value.Raw
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = astValueToGo(c.Value)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any)
		for _, f := range value.Children {
			m[f.Name] = astValueToGo(f.Value)
		}
		return m
	default:
		return nil
	}
}

// coerceValue coerces a value to the specified GraphQL type
func coerceValue(sch *schema.Schema, value any, targetType *schema.TypeRef) (any, error) {
	if schema.IsNonNull(targetType) {
		if value == nil {
			return nil, errors.New("cannot provide null for non-null type")
		}
		return coerceValue(sch, value, schema.Unwrap(targetType))
	}

	if value == nil {
		return nil, nil
	}

	if schema.IsList(targetType) {
		return coerceListValue(sch, value, targetType)
	}

	namedType := schema.GetNamedType(targetType)
	switch namedType {
	case "Int":
		return coerceToInt(value)
	case "Float":
		return coerceToFloat(value)
	case "String":
		return coerceToString(value)
	case "Boolean":
		return coerceToBoolean(value)
	case "ID":
		return coerceToID(value)
	}

	t := sch.Types[namedType]
	if t == nil {
		return value, nil
	}
	switch t.Kind {
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, t, value)
	case schema.TypeKindEnum:
		return coerceEnum(t, value)
	default:
		// custom scalars are passed through
		return value, nil
	}
}

func coerceListValue(sch *schema.Schema, value any, listType *schema.TypeRef) (any, error) {
	innerType := schema.Unwrap(listType)
	if slice, ok := value.([]any); ok {
		coercedSlice := make([]any, len(slice))
		for i, item := range slice {
			coercedItem, err := coerceValue(sch, item, innerType)
			if err != nil {
				return nil, errors.Wrapf(err, "at index %d", i)
			}
			coercedSlice[i] = coercedItem
		}
		return coercedSlice, nil
	}

	// Single value becomes a list of one
	coercedItem, err := coerceValue(sch, value, innerType)
	if err != nil {
		return nil, err
	}
	return []any{coercedItem}, nil
}

func coerceInputObject(sch *schema.Schema, t *schema.Type, value any) (any, error) {
	fields, ok := value.(map[string]any)
	if !ok {
		return nil, errors.Errorf("cannot coerce %v (%T) to input object %s", value, value, t.Name)
	}
	for name := range fields {
		if t.InputFieldByName(name) == nil {
			return nil, errors.Errorf("unknown field '%s' on input type %s", name, t.Name)
		}
	}

	out := make(map[string]any, len(t.InputFields))
	for _, def := range t.InputFields {
		v, present := fields[def.Name]
		if !present {
			if def.DefaultValue != nil {
				out[def.Name] = def.DefaultValue
			} else if schema.IsNonNull(def.Type) {
				return nil, errors.Errorf("required field '%s' of input type %s was not provided", def.Name, t.Name)
			}
			continue
		}
		cv, err := coerceValue(sch, v, def.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "field '%s' of input type %s", def.Name, t.Name)
		}
		out[def.Name] = cv
	}
	if t.OneOf && len(out) != 1 {
		return nil, errors.Errorf("exactly one field of input type %s must be provided", t.Name)
	}
	return out, nil
}

func coerceEnum(t *schema.Type, value any) (any, error) {
	name, ok := value.(string)
	if ok {
		for _, ev := range t.EnumValues {
			if ev.Name == name {
				return name, nil
			}
		}
	}
	return nil, errors.Errorf("cannot coerce %v (%T) to enum %s", value, value, t.Name)
}

// Basic scalar coercion functions. Strings are not parsed: variables arrive
// typed from JSON and literals are converted by astValueToGo.
func coerceToInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32 {
			return int(v), nil
		}
	case float32:
		if f := float64(v); f == math.Trunc(f) {
			return int(v), nil
		}
	}
	return nil, errors.Errorf("cannot coerce %v (%T) to int", value, value)
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, errors.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceToString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return fmt.Sprintf("%v", value), nil
}

func coerceToBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, errors.Errorf("cannot coerce %v (%T) to boolean", value, value)
}

func coerceToID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return fmt.Sprintf("%v", value), nil
	}
}
