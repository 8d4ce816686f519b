package vulcany

import (
	"fmt"
	"strings"
)

// UnknownResourceError is returned when a pass declaration references a
// ResourceID that was not declared or imported in the current graph cycle.
type UnknownResourceError struct {
	Pass     string
	Resource ResourceID
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("pass %q references resource %s which was not declared in this cycle", e.Pass, e.Resource)
}

// ConflictingAccessError is returned when a single pass declaration names the
// same resource more than once. Access to a resource must be declared exactly
// once per pass, with the widest mode the pass needs.
type ConflictingAccessError struct {
	Pass     string
	Resource string
}

func (e *ConflictingAccessError) Error() string {
	return fmt.Sprintf("pass %q declares resource %q more than once", e.Pass, e.Resource)
}

// DuplicateImportError is returned when the same external handle is imported
// twice within one graph cycle.
type DuplicateImportError struct {
	Name string
}

func (e *DuplicateImportError) Error() string {
	return fmt.Sprintf("external resource already imported in this cycle as %q", e.Name)
}

// CyclicDependencyError is returned by Compile when the derived dependency
// edges form a cycle. Declaration order alone cannot produce one, so the
// passes listed are always entangled through transient aliasing.
type CyclicDependencyError struct {
	Passes []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle involving passes: %s", strings.Join(e.Passes, ", "))
}

// AliasingConflictError is returned by Compile when two transient resources
// were requested to share physical backing but their live ranges overlap.
type AliasingConflictError struct {
	A, B           string
	RangeA, RangeB LiveRange
}

func (e *AliasingConflictError) Error() string {
	return fmt.Sprintf("cannot alias %q %s with %q %s: live ranges overlap", e.A, e.RangeA, e.B, e.RangeB)
}

// PassExecutionError wraps a failure reported by a pass record callback or by
// the underlying recorder. The graph cycle that produced it is consumed and
// must be discarded.
type PassExecutionError struct {
	Pass  string
	Cause error
}

func (e *PassExecutionError) Error() string {
	return fmt.Sprintf("pass %q failed: %v", e.Pass, e.Cause)
}

func (e *PassExecutionError) Unwrap() error {
	return e.Cause
}
