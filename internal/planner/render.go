package planner

import (
	"fmt"
	"strings"

	"github.com/hanpama/gqlplan/internal/selection"
)

// Render returns an indented text dump of p. Every selection set is printed
// under its object type; selections show their response name, field name,
// arguments, inclusion kind and conditions.
func Render(p *Plan) string {
	var b strings.Builder
	b.WriteString(string(p.Operation.Operation))
	if p.Name() != "" {
		b.WriteString(" " + p.Name())
	}
	b.WriteString("\n")
	renderSet(&b, p, p.Root(), "")
	return b.String()
}

func renderSet(b *strings.Builder, p *Plan, set *SelectionSet, indent string) {
	fmt.Fprintf(b, "%s%s {\n", indent, set.Type.Name)
	for _, sel := range set.Selections {
		b.WriteString(indent + "  ")
		renderSelection(b, sel)
		b.WriteString("\n")
		for _, child := range p.Children(sel) {
			renderSet(b, p, child, indent+"    ")
		}
	}
	fmt.Fprintf(b, "%s}\n", indent)
}

func renderSelection(b *strings.Builder, sel *selection.Selection) {
	b.WriteString(sel.ResponseName())
	if name := sel.Field().Name; name != sel.ResponseName() {
		b.WriteString(": " + name)
	}
	if args := sel.Arguments(); args.Len() > 0 {
		b.WriteString("(" + strings.Join(args.Names(), ", ") + ")")
	}
	if kind := sel.InclusionKind(); kind != selection.Always {
		b.WriteString(" [" + kind.String() + "]")
	}
	for i, c := range sel.Conditions() {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(" | ")
		}
		if s, ok := c.(fmt.Stringer); ok {
			b.WriteString(s.String())
		} else {
			b.WriteString("?")
		}
	}
}
