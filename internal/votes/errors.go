package votes

import (
	"errors"
	"fmt"

	"github.com/emilythestrangee/thumbsup/internal/models"
)

var (
	// ErrMissingValue is returned when a vote carries neither a direction nor a magnitude.
	ErrMissingValue = errors.New("you must specify a value in order to vote")
	// ErrInvalidVote is returned for zero-magnitude votes and malformed references.
	ErrInvalidVote = errors.New("invalid vote")
	// ErrUnknownKind is returned when a store has no table registered for a type tag.
	ErrUnknownKind = errors.New("unknown voteable kind")
	// ErrInvalidTally is returned for tally options that cannot be satisfied.
	ErrInvalidTally = errors.New("invalid tally options")
	// ErrEntityNotFound is returned when a referenced record does not exist.
	ErrEntityNotFound = errors.New("entity not found")
)

// CounterDriftError describes a counter cache column that disagrees with the ledger.
type CounterDriftError struct {
	Ref    models.Ref
	Column string
	Cached int64
	Actual int64
}

func (e *CounterDriftError) Error() string {
	return fmt.Sprintf("counter %s on %s drifted: cached %d, ledger %d", e.Column, e.Ref, e.Cached, e.Actual)
}

// Delta is the correction that brings the cached value back to the ledger value.
func (e *CounterDriftError) Delta() int64 {
	return e.Actual - e.Cached
}

func invalidVote(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidVote, fmt.Sprintf(format, args...))
}
