package dispatch

import "errors"

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("dispatch: job not found")

	// ErrInvalidJob is returned when a job fails validation.
	ErrInvalidJob = errors.New("dispatch: invalid job")
)
