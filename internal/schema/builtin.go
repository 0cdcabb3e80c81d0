package schema

// TypenameField is the meta field every composite type answers. It is shared
// by all types and must not be modified.
var TypenameField = &Field{
	Name:        "__typename",
	Description: "The name of the current Object type at runtime.",
	Type:        NonNullType(NamedType("String")),
}

// AsyncDirectiveName marks a field definition as resolved in batches.
const AsyncDirectiveName = "async"

var builtinScalars = []struct{ name, description string }{
	{"String", "The `String` scalar type represents textual data, represented as UTF-8 character sequences."},
	{"Int", "The `Int` scalar type represents non-fractional signed whole numeric values."},
	{"Float", "The `Float` scalar type represents signed double-precision fractional values."},
	{"Boolean", "The `Boolean` scalar type represents `true` or `false`."},
	{"ID", "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching."},
}

// AddBuiltins registers the specified scalars and the @skip, @include and
// @async directives on s.
func AddBuiltins(s *Schema) *Schema {
	for _, sc := range builtinScalars {
		s.AddType(NewType(sc.name, TypeKindScalar, sc.description))
	}
	return s.AddDirective(conditionDirective("include", "Directs the executor to include this field or fragment only when the `if` argument is true.", "Included when true.")).
		AddDirective(conditionDirective("skip", "Directs the executor to skip this field or fragment when the `if` argument is true.", "Skipped when true.")).
		AddDirective(&Directive{
			Name:        AsyncDirectiveName,
			Description: "Resolves the field through the runtime's batch entry point.",
			Locations:   []string{"FIELD_DEFINITION"},
		})
}

func conditionDirective(name, description, argDescription string) *Directive {
	return &Directive{
		Name:        name,
		Description: description,
		Arguments: []*InputValue{{
			Name:        "if",
			Description: argDescription,
			Type:        NonNullType(NamedType("Boolean")),
		}},
		Locations: []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	}
}
