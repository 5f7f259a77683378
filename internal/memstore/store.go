// Package memstore is an in-memory votes.Store. Every operation, including a
// whole transaction, runs under one mutex, so exclusivity transitions are
// trivially serialized.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

type state struct {
	nextID   int64
	votes    map[int64]models.Vote
	entities map[models.Ref]map[string]any
}

func (st *state) clone() *state {
	out := &state{
		nextID:   st.nextID,
		votes:    make(map[int64]models.Vote, len(st.votes)),
		entities: make(map[models.Ref]map[string]any, len(st.entities)),
	}
	for id, v := range st.votes {
		out.votes[id] = v
	}
	for ref, attrs := range st.entities {
		cp := make(map[string]any, len(attrs))
		for k, val := range attrs {
			cp[k] = val
		}
		out.entities[ref] = cp
	}
	return out
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	failCounters error
}

func New() *Store {
	return &Store{
		st: &state{
			votes:    make(map[int64]models.Vote),
			entities: make(map[models.Ref]map[string]any),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// PutEntity registers a record so it can be tallied, counted and deleted.
// attrs are the record's columns; "id" is set from ref.
func (s *Store) PutEntity(ref models.Ref, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		cp[k] = v
	}
	cp["id"] = ref.ID
	s.st.entities[ref] = cp
}

// Entity returns a copy of the stored attributes of ref.
func (s *Store) Entity(ref models.Ref) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.st.entities[ref]
	if !ok {
		return nil, false
	}
	cp := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return cp, true
}

// FailCounterUpdates makes every IncrementCounter return err until called
// again with nil.
func (s *Store) FailCounterUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCounters = err
}

// SetClock replaces the clock used to stamp votes without CreatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) view() *tx {
	return &tx{st: s.st, store: s}
}

func (s *Store) Append(ctx context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Append(ctx, v)
}

func (s *Store) Remove(ctx context.Context, id int64) (*models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Remove(ctx, id)
}

func (s *Store) RemoveAll(ctx context.Context, f votes.Filter) ([]models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().RemoveAll(ctx, f)
}

func (s *Store) Find(ctx context.Context, f votes.Filter) ([]models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Find(ctx, f)
}

func (s *Store) Count(ctx context.Context, f votes.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Count(ctx, f)
}

func (s *Store) Sum(ctx context.Context, f votes.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Sum(ctx, f)
}

func (s *Store) DistinctVoters(ctx context.Context, f votes.Filter) ([]models.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DistinctVoters(ctx, f)
}

func (s *Store) IncrementCounter(ctx context.Context, c votes.CounterColumn, id int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().IncrementCounter(ctx, c, id, delta)
}

func (s *Store) ReadCounter(ctx context.Context, c votes.CounterColumn, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ReadCounter(ctx, c, id)
}

func (s *Store) CounterIDs(ctx context.Context, c votes.CounterColumn) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CounterIDs(ctx, c)
}

func (s *Store) EntityExists(ctx context.Context, ref models.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().EntityExists(ctx, ref)
}

func (s *Store) DeleteEntity(ctx context.Context, ref models.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteEntity(ctx, ref)
}

func (s *Store) Tally(ctx context.Context, kind string, opts votes.TallyOptions) ([]votes.TallyRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Tally(ctx, kind, opts)
}

// Transaction runs fn on a snapshot and publishes it only when fn succeeds.
func (s *Store) Transaction(ctx context.Context, fn func(votes.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&tx{st: snapshot, store: s}); err != nil {
		return err
	}
	s.st = snapshot
	return nil
}

// LockPair is a no-op: the store mutex is held for the whole transaction.
func (s *Store) LockPair(context.Context, models.Ref, models.Ref) error {
	return nil
}

// tx operates on a state without locking. The owning Store holds the mutex
// for as long as a tx is reachable.
type tx struct {
	st    *state
	store *Store
}

func (t *tx) Append(_ context.Context, v *models.Vote) error {
	if err := votes.ValidateVote(*v); err != nil {
		return err
	}
	t.st.nextID++
	v.ID = t.st.nextID
	if v.CreatedAt.IsZero() {
		v.CreatedAt = t.store.now()
	}
	t.st.votes[v.ID] = *v
	return nil
}

func (t *tx) Remove(_ context.Context, id int64) (*models.Vote, error) {
	v, ok := t.st.votes[id]
	if !ok {
		return nil, nil
	}
	delete(t.st.votes, id)
	return &v, nil
}

func (t *tx) RemoveAll(ctx context.Context, f votes.Filter) ([]models.Vote, error) {
	matched, err := t.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, v := range matched {
		delete(t.st.votes, v.ID)
	}
	return matched, nil
}

// Find returns matches in insertion order.
func (t *tx) Find(_ context.Context, f votes.Filter) ([]models.Vote, error) {
	out := make([]models.Vote, 0)
	for _, v := range t.st.votes {
		if f.Match(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) Count(ctx context.Context, f votes.Filter) (int64, error) {
	matched, err := t.Find(ctx, f)
	return int64(len(matched)), err
}

func (t *tx) Sum(ctx context.Context, f votes.Filter) (int64, error) {
	matched, err := t.Find(ctx, f)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, v := range matched {
		sum += int64(v.Value)
	}
	return sum, nil
}

func (t *tx) DistinctVoters(ctx context.Context, f votes.Filter) ([]models.Ref, error) {
	matched, err := t.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	seen := make(map[models.Ref]bool)
	out := make([]models.Ref, 0)
	for _, v := range matched {
		if !seen[v.Voter()] {
			seen[v.Voter()] = true
			out = append(out, v.Voter())
		}
	}
	return out, nil
}

// IncrementCounter on a missing record is a no-op, like an UPDATE matching no rows.
func (t *tx) IncrementCounter(_ context.Context, c votes.CounterColumn, id int64, delta int64) error {
	if t.store.failCounters != nil {
		return t.store.failCounters
	}
	attrs, ok := t.st.entities[models.Ref{Type: c.Kind, ID: id}]
	if !ok {
		return nil
	}
	current, _ := toInt64(attrs[c.Column])
	attrs[c.Column] = current + delta
	return nil
}

func (t *tx) ReadCounter(_ context.Context, c votes.CounterColumn, id int64) (int64, error) {
	attrs, ok := t.st.entities[models.Ref{Type: c.Kind, ID: id}]
	if !ok {
		return 0, fmt.Errorf("%w: %s#%d", votes.ErrEntityNotFound, c.Kind, id)
	}
	n, _ := toInt64(attrs[c.Column])
	return n, nil
}

func (t *tx) CounterIDs(_ context.Context, c votes.CounterColumn) ([]int64, error) {
	ids := make([]int64, 0)
	for ref := range t.st.entities {
		if ref.Type == c.Kind {
			ids = append(ids, ref.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *tx) EntityExists(_ context.Context, ref models.Ref) (bool, error) {
	_, ok := t.st.entities[ref]
	return ok, nil
}

func (t *tx) DeleteEntity(_ context.Context, ref models.Ref) error {
	delete(t.st.entities, ref)
	return nil
}

func (t *tx) Transaction(_ context.Context, fn func(votes.Store) error) error {
	return fn(t)
}

func (t *tx) LockPair(context.Context, models.Ref, models.Ref) error {
	return nil
}

var (
	_ votes.Store = (*Store)(nil)
	_ votes.Store = (*tx)(nil)
)
