package language

import (
	"errors"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable document. Syntax errors are returned as *Error.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, AsError(err)
	}
	return doc, nil
}

// ValidateQuery parses source and validates it against schema. All
// validation failures are returned together as an ErrorList.
func ValidateQuery(schema *ast.Schema, source string) (*QueryDocument, error) {
	doc, errs := gqlparser.LoadQuery(schema, source)
	if len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

// AsError converts err into a located GraphQL error, keeping its message.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Message: err.Error()}
}

// ResponseName returns the key a field's value is written under.
func ResponseName(field *Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}
