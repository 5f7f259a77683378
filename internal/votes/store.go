package votes

import (
	"context"
	"time"

	"github.com/emilythestrangee/thumbsup/internal/models"
)

// Filter narrows ledger reads. Zero fields are ignored.
type Filter struct {
	Voter        *models.Ref
	Voteable     *models.Ref
	VoteableType string
	Value        *int
	MinValue     *int // inclusive
	MaxValue     *int // inclusive
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// ByVoteable scopes a filter to all votes received by ref.
func ByVoteable(ref models.Ref) Filter {
	return Filter{Voteable: &ref}
}

// ByVoter scopes a filter to all votes cast by ref.
func ByVoter(ref models.Ref) Filter {
	return Filter{Voter: &ref}
}

// ByPair scopes a filter to the votes voter cast on voteable.
func ByPair(voter, voteable models.Ref) Filter {
	return Filter{Voter: &voter, Voteable: &voteable}
}

// WithValue returns a copy of f matching only votes equal to value.
func (f Filter) WithValue(value int) Filter {
	f.Value = &value
	return f
}

// AtLeast returns a copy of f matching votes >= value.
func (f Filter) AtLeast(value int) Filter {
	f.MinValue = &value
	return f
}

// AtMost returns a copy of f matching votes <= value.
func (f Filter) AtMost(value int) Filter {
	f.MaxValue = &value
	return f
}

// Match evaluates the filter against a single vote. Stores without a query
// language use it to implement Find.
func (f Filter) Match(v models.Vote) bool {
	if f.Voter != nil && v.Voter() != *f.Voter {
		return false
	}
	if f.Voteable != nil && v.Voteable() != *f.Voteable {
		return false
	}
	if f.VoteableType != "" && v.VoteableType != f.VoteableType {
		return false
	}
	if f.Value != nil && v.Value != *f.Value {
		return false
	}
	if f.MinValue != nil && v.Value < *f.MinValue {
		return false
	}
	if f.MaxValue != nil && v.Value > *f.MaxValue {
		return false
	}
	if f.CreatedFrom != nil && v.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && v.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

// Ledger is the durable append/delete store of individual votes.
type Ledger interface {
	// Append persists v, assigning its ID and CreatedAt when unset.
	Append(ctx context.Context, v *models.Vote) error
	// Remove deletes a vote by id. A missing id returns (nil, nil).
	Remove(ctx context.Context, id int64) (*models.Vote, error)
	// RemoveAll deletes every vote matching f and returns what was removed.
	RemoveAll(ctx context.Context, f Filter) ([]models.Vote, error)
	Find(ctx context.Context, f Filter) ([]models.Vote, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Sum(ctx context.Context, f Filter) (int64, error)
	DistinctVoters(ctx context.Context, f Filter) ([]models.Ref, error)
}

// Counters performs store-level updates of counter cache columns.
type Counters interface {
	// IncrementCounter atomically adds delta to the column of the record id.
	IncrementCounter(ctx context.Context, c CounterColumn, id int64, delta int64) error
	ReadCounter(ctx context.Context, c CounterColumn, id int64) (int64, error)
	// CounterIDs lists every record id of the counter's kind.
	CounterIDs(ctx context.Context, c CounterColumn) ([]int64, error)
}

// Entities resolves polymorphic references to stored records.
type Entities interface {
	EntityExists(ctx context.Context, ref models.Ref) (bool, error)
	DeleteEntity(ctx context.Context, ref models.Ref) error
}

// Tallier ranks the voteables of one kind in a single query.
type Tallier interface {
	Tally(ctx context.Context, kind string, opts TallyOptions) ([]TallyRow, error)
}

// Store is everything the Service needs from persistence.
type Store interface {
	Ledger
	Counters
	Entities
	Tallier

	// Transaction runs fn against a transactional view of the store. fn's
	// error rolls back every write made through the view.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	// LockPair serializes exclusivity transitions for one (voter, voteable)
	// pair until the enclosing transaction ends.
	LockPair(ctx context.Context, voter, voteable models.Ref) error
}

// ValidateVote checks the invariants every stored vote must satisfy.
func ValidateVote(v models.Vote) error {
	if v.Value == 0 {
		return invalidVote("value must be non-zero")
	}
	return checkRefs(v.Voter(), v.Voteable())
}
