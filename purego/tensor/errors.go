package tensor

import "errors"

var (
	// ErrConfiguration is returned when a module cannot be built from its
	// configuration, e.g. d_model not divisible by the head count.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrShapeMismatch is returned by a forward call whose inputs or masks do
	// not fit together.
	ErrShapeMismatch = errors.New("shape mismatch")
)
