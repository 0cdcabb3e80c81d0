// Package selection implements prepared selections: the canonical, immutable
// runtime form of one field requested at one response key of an object type.
//
// # Lifecycle
//
// A Builder is created for the first occurrence of a field at a response key.
// While an operation is compiled, every further occurrence of the same field at
// the same key (from inline fragments, fragment spreads, or plain repetition)
// is registered with AddOccurrence together with its inclusion condition.
// Sealing the builder merges all occurrences into one field node and returns a
// Selection, which has no mutating methods at all.
//
// A Builder is single-writer: it takes no locks, and the compiler is expected
// to drive it from one goroutine. A Selection is a value; it is shared by every
// request that executes the cached plan and may be read concurrently without
// synchronization.
//
// # Inclusion
//
// Every selection has an InclusionKind. Internal selections are synthesized by
// the engine and are only visible to callers that opt in. Conditional
// selections carry one or more IncludeConditions and are included when any of
// them holds for the request variables; registering an occurrence without a
// condition makes the selection unconditional again.
package selection
