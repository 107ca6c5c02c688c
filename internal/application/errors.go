package application

import (
	"errors"
	"fmt"
)

// ErrValidation marks a request the caller must fix before retrying.
var ErrValidation = errors.New("validation failed")

func NewValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
