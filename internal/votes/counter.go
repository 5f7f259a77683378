package votes

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/emilythestrangee/thumbsup/internal/metrics"
	"github.com/emilythestrangee/thumbsup/internal/models"
)

// CounterMode selects which aggregate a counter column mirrors.
type CounterMode int

const (
	// CounterSum mirrors SUM(vote): each vote moves the counter by its value.
	CounterSum CounterMode = iota
	// CounterCount mirrors COUNT(*): each vote moves the counter by one.
	CounterCount
)

func (m CounterMode) String() string {
	if m == CounterCount {
		return "count"
	}
	return "sum"
}

// DefaultCounterColumn is used when a kind opts in without naming a column.
const DefaultCounterColumn = "vote_count"

// CounterColumn describes the denormalized counter of one voteable kind.
type CounterColumn struct {
	Kind   string
	Column string
	Mode   CounterMode
}

func (c CounterColumn) delta(v models.Vote, direction int64) int64 {
	if c.Mode == CounterCount {
		return direction
	}
	return int64(v.Value) * direction
}

// Registry maps type tags to their counter columns. It is populated once at
// startup and read-only afterwards.
type Registry struct {
	columns map[string]CounterColumn
}

// NewRegistry validates the columns and builds a registry.
func NewRegistry(columns ...CounterColumn) (*Registry, error) {
	r := &Registry{columns: make(map[string]CounterColumn, len(columns))}
	for _, c := range columns {
		if c.Kind == "" {
			return nil, errors.New("counter column without kind")
		}
		if c.Column == "" {
			c.Column = DefaultCounterColumn
		}
		if !validIdentifier(c.Column) {
			return nil, fmt.Errorf("counter column %q for %s is not an identifier", c.Column, c.Kind)
		}
		if _, dup := r.columns[c.Kind]; dup {
			return nil, fmt.Errorf("counter for %s registered twice", c.Kind)
		}
		r.columns[c.Kind] = c
	}
	return r, nil
}

// Lookup returns the counter column of kind, if it opted in.
func (r *Registry) Lookup(kind string) (CounterColumn, bool) {
	if r == nil {
		return CounterColumn{}, false
	}
	c, ok := r.columns[kind]
	return c, ok
}

// Columns returns every registered column ordered by kind.
func (r *Registry) Columns() []CounterColumn {
	if r == nil {
		return nil
	}
	out := make([]CounterColumn, 0, len(r.columns))
	for _, c := range r.columns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Synchronizer keeps counter columns in step with ledger writes.
type Synchronizer struct {
	registry *Registry
	store    Store
	log      *zap.Logger
	metrics  *metrics.Votes

	sweepWorkers int
}

func NewSynchronizer(registry *Registry, store Store, log *zap.Logger, m *metrics.Votes) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{
		registry:     registry,
		store:        store,
		log:          log,
		metrics:      m,
		sweepWorkers: 4,
	}
}

// Registry returns the registry the synchronizer dispatches through.
func (s *Synchronizer) Registry() *Registry {
	return s.registry
}

// Created applies the delta of a newly appended vote.
func (s *Synchronizer) Created(ctx context.Context, counters Counters, v models.Vote) error {
	return s.apply(ctx, counters, v, 1)
}

// Destroyed applies the delta of a removed vote.
func (s *Synchronizer) Destroyed(ctx context.Context, counters Counters, v models.Vote) error {
	return s.apply(ctx, counters, v, -1)
}

func (s *Synchronizer) apply(ctx context.Context, counters Counters, v models.Vote, direction int64) error {
	c, ok := s.registry.Lookup(v.VoteableType)
	if !ok {
		return nil
	}
	if err := counters.IncrementCounter(ctx, c, v.VoteableID, c.delta(v, direction)); err != nil {
		return fmt.Errorf("update %s.%s for vote %d: %w", c.Kind, c.Column, v.ID, err)
	}
	return nil
}

// settle applies deltas after a committed ledger write. Failures leave the
// vote in place and are only logged; reconciliation repairs the counter.
func (s *Synchronizer) settle(ctx context.Context, created []models.Vote, destroyed []models.Vote) {
	for _, v := range destroyed {
		if err := s.Destroyed(ctx, s.store, v); err != nil {
			s.syncFailed(v, err)
		}
	}
	for _, v := range created {
		if err := s.Created(ctx, s.store, v); err != nil {
			s.syncFailed(v, err)
		}
	}
}

func (s *Synchronizer) syncFailed(v models.Vote, err error) {
	s.metrics.SyncFailure(v.VoteableType)
	s.log.Warn("counter cache update failed, counter left stale",
		zap.Int64("vote_id", v.ID),
		zap.Stringer("voteable", v.Voteable()),
		zap.Error(err),
	)
}

// ReloadVoteCounter reads the authoritative counter for ref from the store.
func (s *Synchronizer) ReloadVoteCounter(ctx context.Context, ref models.Ref) (int64, error) {
	c, ok := s.registry.Lookup(ref.Type)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no vote counter", ErrUnknownKind, ref.Type)
	}
	return s.store.ReadCounter(ctx, c, ref.ID)
}

// Recompute derives the counter value of ref from the ledger.
func (s *Synchronizer) Recompute(ctx context.Context, ref models.Ref) (int64, error) {
	c, ok := s.registry.Lookup(ref.Type)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no vote counter", ErrUnknownKind, ref.Type)
	}
	return recompute(ctx, s.store, c, ref)
}

func recompute(ctx context.Context, ledger Ledger, c CounterColumn, ref models.Ref) (int64, error) {
	if c.Mode == CounterCount {
		return ledger.Count(ctx, ByVoteable(ref))
	}
	return ledger.Sum(ctx, ByVoteable(ref))
}

// Reconcile compares the counter of ref with the ledger and repairs it. It
// returns the drift that was found, or nil when the counter was exact.
func (s *Synchronizer) Reconcile(ctx context.Context, ref models.Ref) (*CounterDriftError, error) {
	c, ok := s.registry.Lookup(ref.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no vote counter", ErrUnknownKind, ref.Type)
	}
	return s.reconcile(ctx, c, ref)
}

func (s *Synchronizer) reconcile(ctx context.Context, c CounterColumn, ref models.Ref) (*CounterDriftError, error) {
	var drift *CounterDriftError
	err := s.store.Transaction(ctx, func(tx Store) error {
		cached, err := tx.ReadCounter(ctx, c, ref.ID)
		if err != nil {
			return err
		}
		actual, err := recompute(ctx, tx, c, ref)
		if err != nil {
			return err
		}
		if cached == actual {
			return nil
		}
		drift = &CounterDriftError{Ref: ref, Column: c.Column, Cached: cached, Actual: actual}
		// Repair through the atomic increment so concurrent deltas are kept.
		return tx.IncrementCounter(ctx, c, ref.ID, drift.Delta())
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", ref, err)
	}
	if drift != nil {
		s.metrics.Drift(ref.Type)
		s.log.Warn("counter cache drift repaired",
			zap.Stringer("voteable", ref),
			zap.String("column", c.Column),
			zap.Int64("cached", drift.Cached),
			zap.Int64("actual", drift.Actual),
		)
	}
	return drift, nil
}

// Sweep reconciles every record of every registered kind and returns the
// drifts it repaired, ordered by kind and id.
func (s *Synchronizer) Sweep(ctx context.Context) ([]CounterDriftError, error) {
	type job struct {
		column CounterColumn
		ref    models.Ref
	}
	var jobs []job
	for _, c := range s.registry.Columns() {
		ids, err := s.store.CounterIDs(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("list %s ids: %w", c.Kind, err)
		}
		for _, id := range ids {
			jobs = append(jobs, job{column: c, ref: models.Ref{Type: c.Kind, ID: id}})
		}
	}

	results := make([]*CounterDriftError, len(jobs))
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(s.sweepWorkers)
	for i, j := range jobs {
		p.Go(func(ctx context.Context) error {
			drift, err := s.reconcile(ctx, j.column, j.ref)
			results[i] = drift
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	drifts := make([]CounterDriftError, 0)
	for _, d := range results {
		if d != nil {
			drifts = append(drifts, *d)
		}
	}
	s.log.Info("counter sweep finished", zap.Int("checked", len(jobs)), zap.Int("repaired", len(drifts)))
	return drifts, nil
}
