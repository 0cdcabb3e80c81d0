package events

import "time"

// PlanCompiled is emitted when an operation is prepared, whether the plan
// was compiled or taken from the plan cache.
type PlanCompiled struct {
	OperationName string
	OperationType string
	Key           uint64
	CacheHit      bool
	Selections    int
	Err           error
	Duration      time.Duration
}
