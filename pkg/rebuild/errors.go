package rebuild

import "errors"

var (
	// ErrInvalidTransition is returned when a caller requests a lifecycle
	// transition the job is not currently eligible for (e.g. Pause on a
	// job that is not Running).
	ErrInvalidTransition = errors.New("rebuild: invalid state transition")

	// ErrJobExists is returned when a destination URI already has a
	// rebuild job registered against it.
	ErrJobExists = errors.New("rebuild: destination already has a job")

	// ErrJobNotFound is returned when no job is registered for a
	// requested destination URI.
	ErrJobNotFound = errors.New("rebuild: job not found")
)
