package aggregate

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of these so transports
// can classify failures with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrInvariant  = errors.New("invariant violated")
	ErrConflict   = errors.New("state conflict")
	ErrExhausted  = errors.New("resource exhausted")
	ErrNotFound   = errors.New("not found")
)

// ErrVersionConflict is returned by a conditional update whose expected
// version no longer matches the stored row.
var ErrVersionConflict = fmt.Errorf("%w: aggregate version mismatch", ErrConflict)
