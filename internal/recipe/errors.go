package recipe

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionMismatch is matched by every *VersionError.
	ErrVersionMismatch = errors.New("recipe version mismatch")

	// ErrMalformed is returned for recipes that cannot be decoded or are
	// structurally invalid.
	ErrMalformed = errors.New("malformed recipe")
)

// VersionError reports a recipe written in an unsupported format version.
type VersionError struct {
	Got  int
	Want int
}

func (e *VersionError) Error() string {
	if e.Got == 0 {
		return fmt.Sprintf("recipe version mismatch: version missing, want %d", e.Want)
	}
	return fmt.Sprintf("recipe version mismatch: got %d, want %d", e.Got, e.Want)
}

// Is makes errors.Is(err, ErrVersionMismatch) hold.
func (e *VersionError) Is(target error) bool {
	return target == ErrVersionMismatch
}
