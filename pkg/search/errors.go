package search

import (
	"fmt"
	"strings"
)

// PartialFailureError aborts a strict-mode search when one or more
// collections fail. It names every failed collection.
type PartialFailureError struct {
	Collections []string
	Errs        []error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("hybrid search failed on collections [%s]", strings.Join(e.Collections, ", "))
}

func (e *PartialFailureError) Unwrap() []error {
	return e.Errs
}

// TimeoutError means the whole fan-out exceeded its deadline.
type TimeoutError struct {
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("hybrid search exceeded its deadline (%s)", e.Timeout)
}
