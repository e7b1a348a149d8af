package synqa

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("synqa: invalid configuration")

	// ErrNoInputs is returned when a stage finds no input files at all.
	ErrNoInputs = errors.New("synqa: no input files")

	// ErrEmptyDocument is returned when no source rows survive the length
	// filter.
	ErrEmptyDocument = errors.New("synqa: document has no usable source rows")

	// ErrGenerationFailed is recorded when a generation call fails.
	ErrGenerationFailed = errors.New("synqa: generation request failed")

	// ErrBelowThreshold is recorded for items the difficulty stage skips
	// because they did not pass every quality check.
	ErrBelowThreshold = errors.New("synqa: item below quality threshold")
)
