package vqa

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a token or an image cannot be resolved.
var ErrNotFound = errors.New("not found")

// ErrUnknownToken is returned by vocabularies without an unknown-word entry.
// It matches ErrNotFound.
var ErrUnknownToken = fmt.Errorf("unknown token: %w", ErrNotFound)
