package selection

import (
	language "github.com/hanpama/gqlplan/internal/language"
)

// MergeFields combines the occurrences of one field at one response key into
// a single field node. nodes[0] is the representative: the result keeps its
// alias, name, arguments, position and definitions. Directives are the
// concatenation of all occurrences' directives in order, and the child
// selection set is the concatenation of all occurrences' child selections,
// unless nodes[0] is a leaf, in which case the result has none. Child
// selections are not merged further; that happens when the child set itself
// is compiled.
//
// A single node is returned unchanged. The input nodes are never modified.
func MergeFields(nodes []*language.Field) *language.Field {
	if len(nodes) == 0 {
		return nil
	}
	first := nodes[0]
	if len(nodes) == 1 {
		return first
	}
	return &language.Field{
		Alias:            first.Alias,
		Name:             first.Name,
		Arguments:        first.Arguments,
		Directives:       mergeDirectives(nodes),
		SelectionSet:     mergeSelectionSets(nodes),
		Position:         first.Position,
		Comment:          first.Comment,
		Definition:       first.Definition,
		ObjectDefinition: first.ObjectDefinition,
	}
}

// mergeDirectives reuses the directive list of the only occurrence carrying
// directives, and allocates a new list once a second one is found.
func mergeDirectives(nodes []*language.Field) language.DirectiveList {
	firstWithDirectives := -1
	var merged language.DirectiveList

	for i, node := range nodes {
		if len(node.Directives) == 0 {
			continue
		}
		switch {
		case firstWithDirectives == -1:
			firstWithDirectives = i
		case merged == nil:
			seed := nodes[firstWithDirectives].Directives
			merged = make(language.DirectiveList, 0, len(seed)+len(node.Directives))
			merged = append(merged, seed...)
			merged = append(merged, node.Directives...)
		default:
			merged = append(merged, node.Directives...)
		}
	}

	if merged != nil {
		return merged
	}
	if firstWithDirectives != -1 {
		return nodes[firstWithDirectives].Directives
	}
	return nodes[0].Directives
}

func mergeSelectionSets(nodes []*language.Field) language.SelectionSet {
	if nodes[0].SelectionSet == nil {
		return nil
	}
	size := 0
	for _, node := range nodes {
		size += len(node.SelectionSet)
	}
	children := make(language.SelectionSet, 0, size)
	for _, node := range nodes {
		children = append(children, node.SelectionSet...)
	}
	return children
}
