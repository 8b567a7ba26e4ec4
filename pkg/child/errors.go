package child

import "errors"

var (
	// ErrInvalidTransition is returned when a caller requests a state
	// transition the child is not currently eligible for.
	ErrInvalidTransition = errors.New("child: invalid state transition")

	// ErrChildGeometry is returned when a child's underlying device
	// geometry does not satisfy the nexus's block-size/block-count
	// requirements.
	ErrChildGeometry = errors.New("child: device geometry incompatible with nexus")
)
