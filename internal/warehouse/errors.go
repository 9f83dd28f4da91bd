package warehouse

import "errors"

var (
	// ErrKeyNotResolved indicates neither the upsert nor the natural-key
	// lookup produced a surrogate key.
	ErrKeyNotResolved = errors.New("surrogate key not resolved")
	// ErrDuplicateStep indicates two graph nodes share a name.
	ErrDuplicateStep = errors.New("duplicate load step")
	// ErrUnknownStep indicates a dependency on a step that is not in the graph.
	ErrUnknownStep = errors.New("unknown load step")
	// ErrCycle indicates the load graph is not acyclic.
	ErrCycle = errors.New("load graph has a cycle")
	// ErrInvalidOption indicates an unknown commit mode or conflict policy.
	ErrInvalidOption = errors.New("invalid writer option")
)
