package cake

import "errors"

// Sentinel errors, in the teacher's style of wrapping a package-level
// sentinel with fmt.Errorf for descriptive context (config_filter.go,
// config_qdisc.go) rather than a bespoke error hierarchy.
var (
	// ErrInvalidConfig is returned synchronously from NewDiscipline/Change
	// when a parameter block cannot be applied. State is left unchanged.
	ErrInvalidConfig = errors.New("cake: invalid configuration")

	// ErrOutOfMemory is reserved for an allocation-failure path during
	// (re)configuration. Go's allocator has no equivalent of malloc
	// returning NULL: make() on the flow tables either succeeds or the
	// runtime panics, so there is no recoverable failure for buildTins to
	// surface through a normal error return. Kept as a sentinel rather than
	// removed in case a future bounded/pooled tin allocator introduces a
	// real recoverable failure mode here; see DESIGN.md.
	ErrOutOfMemory = errors.New("cake: out of memory")
)
