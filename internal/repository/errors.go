package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Unique constraint violations surfaced by Create.
var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already taken")
)

// ErrCapacity reports that postgres ran out of disk or memory while writing.
var ErrCapacity = errors.New("database storage exhausted")

const uniqueViolation = "23505"

// Class 53 "insufficient resources" codes.
var capacityCodes = map[pq.ErrorCode]struct{}{
	"53000": {}, // insufficient_resources
	"53100": {}, // disk_full
	"53200": {}, // out_of_memory
}

// mapCapacity wraps resource exhaustion errors with ErrCapacity and returns
// any other error unchanged.
func mapCapacity(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if _, ok := capacityCodes[pqErr.Code]; ok {
			return fmt.Errorf("%w: %s", ErrCapacity, pqErr.Message)
		}
	}
	return err
}

// mapUniqueViolation translates the case-insensitive unique indexes on users into sentinel errors.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch {
	case strings.Contains(pqErr.Constraint, "username"):
		return ErrUsernameTaken
	case strings.Contains(pqErr.Constraint, "email"):
		return ErrEmailTaken
	}
	return nil
}
