package schema

import (
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

const asyncDirectiveSDL = "directive @async on FIELD_DEFINITION\n"

// BuildFromSDL parses and validates sdl and returns the corresponding Schema.
//
// Fields on root operation types and fields annotated with @async are marked
// Async; everything else is resolved synchronously. The @async directive is
// declared automatically when the document does not declare it.
func BuildFromSDL(sdl string) (*Schema, error) {
	input := sdl
	if !strings.Contains(sdl, "directive @async") {
		input = asyncDirectiveSDL + sdl
	}
	doc, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: input})
	if err != nil {
		return nil, err
	}
	return fromAST(doc), nil
}

func fromAST(doc *ast.Schema) *Schema {
	s := NewSchema("")
	s.AST = doc
	if doc.Query != nil {
		s.SetQueryType(doc.Query.Name)
	}
	if doc.Mutation != nil {
		s.SetMutationType(doc.Mutation.Name)
	}
	if doc.Subscription != nil {
		s.SetSubscriptionType(doc.Subscription.Name)
	}

	for name, def := range doc.Types {
		if strings.HasPrefix(name, "__") {
			continue
		}
		s.AddType(buildType(s, doc, def))
	}
	for name, dir := range doc.Directives {
		if strings.HasPrefix(name, "__") {
			continue
		}
		s.AddDirective(buildDirective(dir))
	}
	return s
}

func buildType(s *Schema, doc *ast.Schema, def *ast.Definition) *Type {
	t := NewType(def.Name, kindFromAST(def.Kind), def.Description)
	switch def.Kind {
	case ast.Object, ast.Interface:
		for _, name := range def.Interfaces {
			t.AddInterface(name)
		}
		root := s.IsRootType(def.Name)
		for _, fd := range def.Fields {
			if strings.HasPrefix(fd.Name, "__") {
				continue
			}
			t.AddField(buildField(fd, root))
		}
		if def.Kind == ast.Interface {
			var names []string
			for _, impl := range doc.PossibleTypes[def.Name] {
				if impl.Kind == ast.Object {
					names = append(names, impl.Name)
				}
			}
			sort.Strings(names)
			for _, n := range names {
				t.AddPossibleType(n)
			}
		}
	case ast.Union:
		for _, member := range def.Types {
			t.AddPossibleType(member)
		}
	case ast.Enum:
		for _, ev := range def.EnumValues {
			v := &EnumValue{Name: ev.Name, Description: ev.Description}
			v.IsDeprecated, v.DeprecationReason = deprecation(ev.Directives)
			t.AddEnumValue(v)
		}
	case ast.InputObject:
		for _, fd := range def.Fields {
			t.AddInputField(buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives))
		}
		t.OneOf = def.Directives.ForName("oneOf") != nil
	case ast.Scalar:
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
	}
	return t
}

func buildField(fd *ast.FieldDefinition, root bool) *Field {
	f := NewField(fd.Name, fd.Description, TypeRefFromAST(fd.Type))
	f.SetAsync(root || fd.Directives.ForName(AsyncDirectiveName) != nil)
	f.IsDeprecated, f.DeprecationReason = deprecation(fd.Directives)
	for _, arg := range fd.Arguments {
		f.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	return f
}

func buildInputValue(name, description string, typ *ast.Type, def *ast.Value, directives ast.DirectiveList) *InputValue {
	v := &InputValue{Name: name, Description: description, Type: TypeRefFromAST(typ)}
	if def != nil {
		if val, err := def.Value(nil); err == nil {
			v.DefaultValue = val
		}
	}
	v.IsDeprecated, v.DeprecationReason = deprecation(directives)
	return v
}

func buildDirective(dir *ast.DirectiveDefinition) *Directive {
	d := &Directive{Name: dir.Name, Description: dir.Description, IsRepeatable: dir.IsRepeatable}
	for _, loc := range dir.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range dir.Arguments {
		d.Arguments = append(d.Arguments, buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	return d
}

func deprecation(directives ast.DirectiveList) (bool, string) {
	d := directives.ForName("deprecated")
	if d == nil {
		return false, ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return true, arg.Value.Raw
	}
	return true, "No longer supported"
}

func kindFromAST(k ast.DefinitionKind) TypeKind {
	switch k {
	case ast.Object:
		return TypeKindObject
	case ast.Interface:
		return TypeKindInterface
	case ast.Union:
		return TypeKindUnion
	case ast.Enum:
		return TypeKindEnum
	case ast.InputObject:
		return TypeKindInputObject
	default:
		return TypeKindScalar
	}
}

// TypeRefFromAST converts a parsed type reference into a TypeRef.
func TypeRefFromAST(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(TypeRefFromAST(&ast.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return ListType(TypeRefFromAST(t.Elem))
	}
	return nil
}
