package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

func wrapKind(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}
