// Package votes implements the vote ledger: casting and clearing votes,
// counter cache maintenance, aggregation and tallies over any store that
// satisfies Store.
package votes

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/emilythestrangee/thumbsup/internal/metrics"
	"github.com/emilythestrangee/thumbsup/internal/models"
)

// Options controls a single Vote call.
type Options struct {
	Value Value
	// Exclusive retracts every prior vote of the voter on the target first.
	Exclusive bool
}

// Service is the public entry point used by application code.
type Service struct {
	store   Store
	sync    *Synchronizer
	agg     *Aggregator
	log     *zap.Logger
	metrics *metrics.Votes
	now     func() time.Time
}

func NewService(store Store, registry *Registry, log *zap.Logger, m *metrics.Votes) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		sync:    NewSynchronizer(registry, store, log.Named("counters"), m),
		agg:     NewAggregator(store),
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Aggregator() *Aggregator {
	return s.agg
}

func (s *Service) Synchronizer() *Synchronizer {
	return s.sync
}

// Vote records a vote of voter on voteable. Validation failures abort
// before any write. A counter cache failure after the vote is stored does
// not fail the call; the counter is left for reconciliation.
func (s *Service) Vote(ctx context.Context, voter, voteable models.Ref, opts Options) (models.Vote, error) {
	value, err := opts.Value.Resolve()
	if err != nil {
		return models.Vote{}, err
	}
	if err := checkRefs(voter, voteable); err != nil {
		return models.Vote{}, err
	}

	vote := models.Vote{
		VoterType:    voter.Type,
		VoterID:      voter.ID,
		VoteableType: voteable.Type,
		VoteableID:   voteable.ID,
		Value:        value,
		CreatedAt:    s.now(),
	}

	var removed []models.Vote
	err = s.store.Transaction(ctx, func(tx Store) error {
		if opts.Exclusive {
			if err := tx.LockPair(ctx, voter, voteable); err != nil {
				return err
			}
			var err error
			if removed, err = tx.RemoveAll(ctx, ByPair(voter, voteable)); err != nil {
				return err
			}
		}
		return tx.Append(ctx, &vote)
	})
	if err != nil {
		return models.Vote{}, fmt.Errorf("record vote of %s on %s: %w", voter, voteable, err)
	}

	s.metrics.Cast(opts.Exclusive)
	s.metrics.Removed("exclusive", len(removed))
	s.sync.settle(ctx, []models.Vote{vote}, removed)
	return vote, nil
}

func (s *Service) VoteFor(ctx context.Context, voter, voteable models.Ref) (models.Vote, error) {
	return s.Vote(ctx, voter, voteable, Options{Value: Sym(Up)})
}

func (s *Service) VoteAgainst(ctx context.Context, voter, voteable models.Ref) (models.Vote, error) {
	return s.Vote(ctx, voter, voteable, Options{Value: Sym(Down)})
}

func (s *Service) VoteExclusivelyFor(ctx context.Context, voter, voteable models.Ref) (models.Vote, error) {
	return s.Vote(ctx, voter, voteable, Options{Value: Sym(Up), Exclusive: true})
}

func (s *Service) VoteExclusivelyAgainst(ctx context.Context, voter, voteable models.Ref) (models.Vote, error) {
	return s.Vote(ctx, voter, voteable, Options{Value: Sym(Down), Exclusive: true})
}

// VoteGold, VoteSilver and VoteBronze are always exclusive, so a voter holds
// a single tier per target.
func (s *Service) VoteGold(ctx context.Context, voter, voteable models.Ref) (models.Vote, error) {
	return s.Vote(ctx, voter, voteable, Options{Value: Sym(Gold), Exclusive: true})
}

func (s *Service) VoteSilver(ctx context.Context, voter, voteable models.Ref) (models.Vote, error) {
	return s.Vote(ctx, voter, voteable, Options{Value: Sym(Silver), Exclusive: true})
}

func (s *Service) VoteBronze(ctx context.Context, voter, voteable models.Ref) (models.Vote, error) {
	return s.Vote(ctx, voter, voteable, Options{Value: Sym(Bronze), Exclusive: true})
}

// ClearVotes removes every vote voter cast on voteable.
func (s *Service) ClearVotes(ctx context.Context, voter, voteable models.Ref) ([]models.Vote, error) {
	if err := checkRefs(voter, voteable); err != nil {
		return nil, err
	}
	var removed []models.Vote
	err := s.store.Transaction(ctx, func(tx Store) error {
		if err := tx.LockPair(ctx, voter, voteable); err != nil {
			return err
		}
		var err error
		removed, err = tx.RemoveAll(ctx, ByPair(voter, voteable))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("clear votes of %s on %s: %w", voter, voteable, err)
	}
	s.metrics.Removed("clear", len(removed))
	s.sync.settle(ctx, nil, removed)
	return removed, nil
}

// RemoveVote deletes a single vote. Removing an unknown id is a no-op.
func (s *Service) RemoveVote(ctx context.Context, id int64) error {
	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("remove vote %d: %w", id, err)
	}
	if removed == nil {
		return nil
	}
	s.metrics.Removed("retract", 1)
	s.sync.settle(ctx, nil, []models.Vote{*removed})
	return nil
}

// DestroyOwner deletes ref together with every vote it cast or received in
// one transaction. Counters of targets the owner voted on are decremented in
// the same transaction.
func (s *Service) DestroyOwner(ctx context.Context, ref models.Ref) error {
	if !ref.Valid() {
		return invalidVote("malformed reference %s", ref)
	}
	var cast, received []models.Vote
	err := s.store.Transaction(ctx, func(tx Store) error {
		exists, err := tx.EntityExists(ctx, ref)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
		}
		if cast, err = tx.RemoveAll(ctx, ByVoter(ref)); err != nil {
			return err
		}
		for _, v := range cast {
			if v.Voteable() == ref {
				continue
			}
			if err := s.sync.Destroyed(ctx, tx, v); err != nil {
				return err
			}
		}
		if received, err = tx.RemoveAll(ctx, ByVoteable(ref)); err != nil {
			return err
		}
		return tx.DeleteEntity(ctx, ref)
	})
	if err != nil {
		return fmt.Errorf("destroy %s: %w", ref, err)
	}
	s.metrics.Removed("cascade", len(cast)+len(received))
	s.log.Info("owner destroyed with its votes",
		zap.Stringer("owner", ref),
		zap.Int("cast", len(cast)),
		zap.Int("received", len(received)),
	)
	return nil
}

// Exists reports whether ref names a stored record.
func (s *Service) Exists(ctx context.Context, ref models.Ref) (bool, error) {
	if !ref.Valid() {
		return false, nil
	}
	return s.store.EntityExists(ctx, ref)
}

// Find returns the votes matching f.
func (s *Service) Find(ctx context.Context, f Filter) ([]models.Vote, error) {
	return s.store.Find(ctx, f)
}

// VotedBy reports whether voter has any vote on voteable.
func (s *Service) VotedBy(ctx context.Context, voteable, voter models.Ref) (bool, error) {
	return s.any(ctx, ByPair(voter, voteable))
}

// VotedOn is VotedBy seen from the voter.
func (s *Service) VotedOn(ctx context.Context, voter, voteable models.Ref) (bool, error) {
	return s.VotedBy(ctx, voteable, voter)
}

// VotedFor reports whether voter holds a positive vote on voteable.
func (s *Service) VotedFor(ctx context.Context, voter, voteable models.Ref) (bool, error) {
	return s.any(ctx, ByPair(voter, voteable).AtLeast(1))
}

// VotedAgainst reports whether voter holds a negative vote on voteable.
func (s *Service) VotedAgainst(ctx context.Context, voter, voteable models.Ref) (bool, error) {
	return s.any(ctx, ByPair(voter, voteable).AtMost(-1))
}

// VotedWith reports whether voter holds a vote of exactly value on voteable.
func (s *Service) VotedWith(ctx context.Context, voter, voteable models.Ref, value int) (bool, error) {
	return s.any(ctx, ByPair(voter, voteable).WithValue(value))
}

func (s *Service) any(ctx context.Context, f Filter) (bool, error) {
	n, err := s.store.Count(ctx, f)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// VoteCount counts the votes cast by voter. For and Against only match +1
// and -1 votes.
func (s *Service) VoteCount(ctx context.Context, voter models.Ref, d Direction) (int64, error) {
	f := ByVoter(voter)
	switch d {
	case For:
		f = f.WithValue(1)
	case Against:
		f = f.WithValue(-1)
	}
	return s.store.Count(ctx, f)
}

// Plusminus delegates to the aggregator.
func (s *Service) Plusminus(ctx context.Context, voteable models.Ref) (int64, error) {
	return s.agg.Plusminus(ctx, voteable)
}

// ReloadVoteCounter returns the counter column of voteable as stored.
func (s *Service) ReloadVoteCounter(ctx context.Context, voteable models.Ref) (int64, error) {
	return s.sync.ReloadVoteCounter(ctx, voteable)
}

// Tally ranks the voteables of kind by the number of votes they received.
func (s *Service) Tally(ctx context.Context, kind string, opts TallyOptions) ([]TallyRow, error) {
	if kind == "" {
		return nil, fmt.Errorf("%w: empty kind", ErrInvalidTally)
	}
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	defer s.metrics.ObserveTally(kind, time.Now())
	return s.store.Tally(ctx, kind, opts)
}

func checkRefs(voter, voteable models.Ref) error {
	if !voter.Valid() {
		return invalidVote("malformed voter reference %s", voter)
	}
	if !voteable.Valid() {
		return invalidVote("malformed voteable reference %s", voteable)
	}
	return nil
}
