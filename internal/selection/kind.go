package selection

import "strconv"

// InclusionKind describes when a selection contributes to a response.
type InclusionKind uint8

const (
	// Always selections are included in every response.
	Always InclusionKind = iota
	// Conditional selections are included when any of their conditions holds.
	Conditional
	// Internal selections are synthesized by the engine and only included
	// when the caller allows internal selections.
	Internal
	// InternalConditional combines Internal and Conditional.
	InternalConditional
)

func (k InclusionKind) String() string {
	switch k {
	case Always:
		return "Always"
	case Conditional:
		return "Conditional"
	case Internal:
		return "Internal"
	case InternalConditional:
		return "InternalConditional"
	default:
		return "InclusionKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// IsInternal reports whether k is Internal or InternalConditional.
func (k InclusionKind) IsInternal() bool {
	return k == Internal || k == InternalConditional
}

// IsConditional reports whether k is Conditional or InternalConditional.
func (k InclusionKind) IsConditional() bool {
	return k == Conditional || k == InternalConditional
}

// withConditions keeps the internal bit of k and sets the conditional bit.
// It is the only transition between kinds.
func (k InclusionKind) withConditions(hasConditions bool) InclusionKind {
	if k.IsInternal() {
		if hasConditions {
			return InternalConditional
		}
		return Internal
	}
	if hasConditions {
		return Conditional
	}
	return Always
}
