package repository

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound means no pledge has the requested id.
	ErrNotFound = errors.New("pledge not found")
	// ErrUnauthorized means the passcode did not match the stored one.
	ErrUnauthorized = errors.New("invalid passcode")
)

// ValidationError lists the problems with a draft or patch. Nothing is
// changed when one is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(problem string) {
	e.Problems = append(e.Problems, problem)
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
