package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

const votesTable = "votes"

// Kind binds a type tag to the gorm model whose table holds its records.
type Kind struct {
	Tag   string
	Model any
}

// DefaultKinds are the voter and voteable models of this service.
func DefaultKinds() []Kind {
	return []Kind{
		{Tag: models.UserKind, Model: &models.User{}},
		{Tag: models.PostKind, Model: &models.Post{}},
		{Tag: models.CommentKind, Model: &models.Comment{}},
	}
}

// Store is the postgres implementation of votes.Store.
type Store struct {
	db     *gorm.DB
	log    *zap.Logger
	tables map[string]string
}

// NewStore resolves the table of every kind from its gorm schema.
func NewStore(db *gorm.DB, log *zap.Logger, kinds ...Kind) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tables := make(map[string]string, len(kinds))
	for _, k := range kinds {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(k.Model); err != nil {
			return nil, fmt.Errorf("parse model of %s: %w", k.Tag, err)
		}
		tables[k.Tag] = stmt.Schema.Table
	}
	return &Store{db: db, log: log, tables: tables}, nil
}

func (s *Store) with(tx *gorm.DB) *Store {
	return &Store{db: tx, log: s.log, tables: s.tables}
}

func (s *Store) table(kind string) (string, error) {
	t, ok := s.tables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", votes.ErrUnknownKind, kind)
	}
	return t, nil
}

func (s *Store) Transaction(ctx context.Context, fn func(votes.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.with(tx))
	})
}

// LockPair takes a transaction-scoped advisory lock keyed by the pair.
// Outside a transaction the lock is released as soon as the statement ends.
func (s *Store) LockPair(ctx context.Context, voter, voteable models.Ref) error {
	key := voter.String() + "|" + voteable.String()
	if err := s.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
		return s.logError("lock pair", err, zap.String("pair", key))
	}
	return nil
}

func (s *Store) Append(ctx context.Context, v *models.Vote) error {
	if err := votes.ValidateVote(*v); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", votes.ErrInvalidVote, err)
		}
		return s.logError("append vote", err,
			zap.Stringer("voter", v.Voter()),
			zap.Stringer("voteable", v.Voteable()),
		)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id int64) (*models.Vote, error) {
	var removed []models.Vote
	err := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Delete(&removed).
		Error
	if err != nil {
		return nil, s.logError("remove vote", err, zap.Int64("vote_id", id))
	}
	if len(removed) == 0 {
		return nil, nil
	}
	return &removed[0], nil
}

func (s *Store) RemoveAll(ctx context.Context, f votes.Filter) ([]models.Vote, error) {
	if f == (votes.Filter{}) {
		return nil, errors.New("refusing to remove votes without a filter")
	}
	removed := make([]models.Vote, 0)
	err := scopeFilter(s.db.WithContext(ctx), f).
		Clauses(clause.Returning{}).
		Delete(&removed).
		Error
	if err != nil {
		return nil, s.logError("remove votes", err)
	}
	return removed, nil
}

func (s *Store) Find(ctx context.Context, f votes.Filter) ([]models.Vote, error) {
	found := make([]models.Vote, 0)
	if err := scopeFilter(s.db.WithContext(ctx), f).Order("id").Find(&found).Error; err != nil {
		return nil, s.logError("find votes", err)
	}
	return found, nil
}

func (s *Store) Count(ctx context.Context, f votes.Filter) (int64, error) {
	var n int64
	if err := scopeFilter(s.db.WithContext(ctx).Model(&models.Vote{}), f).Count(&n).Error; err != nil {
		return 0, s.logError("count votes", err)
	}
	return n, nil
}

func (s *Store) Sum(ctx context.Context, f votes.Filter) (int64, error) {
	var sum int64
	err := scopeFilter(s.db.WithContext(ctx).Model(&models.Vote{}), f).
		Select("COALESCE(SUM(vote), 0)").
		Scan(&sum).
		Error
	if err != nil {
		return 0, s.logError("sum votes", err)
	}
	return sum, nil
}

// DistinctVoters lists voters in the order of their first vote.
func (s *Store) DistinctVoters(ctx context.Context, f votes.Filter) ([]models.Ref, error) {
	var rows []struct {
		VoterType string
		VoterID   int64
	}
	err := scopeFilter(s.db.WithContext(ctx).Model(&models.Vote{}), f).
		Select("voter_type, voter_id").
		Group("voter_type, voter_id").
		Order("MIN(id)").
		Scan(&rows).
		Error
	if err != nil {
		return nil, s.logError("distinct voters", err)
	}
	refs := make([]models.Ref, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, models.Ref{Type: r.VoterType, ID: r.VoterID})
	}
	return refs, nil
}

func (s *Store) EntityExists(ctx context.Context, ref models.Ref) (bool, error) {
	table, err := s.table(ref.Type)
	if err != nil {
		return false, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Table(table).Where("id = ?", ref.ID).Count(&n).Error; err != nil {
		return false, s.logError("entity exists", err, zap.Stringer("ref", ref))
	}
	return n > 0, nil
}

func (s *Store) DeleteEntity(ctx context.Context, ref models.Ref) error {
	table, err := s.table(ref.Type)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Exec("DELETE FROM ? WHERE id = ?", clause.Table{Name: table}, ref.ID).
		Error
	if err != nil {
		return s.logError("delete entity", err, zap.Stringer("ref", ref))
	}
	return nil
}

func scopeFilter(q *gorm.DB, f votes.Filter) *gorm.DB {
	if f.Voter != nil {
		q = q.Where("voter_type = ? AND voter_id = ?", f.Voter.Type, f.Voter.ID)
	}
	if f.Voteable != nil {
		q = q.Where("voteable_type = ? AND voteable_id = ?", f.Voteable.Type, f.Voteable.ID)
	}
	if f.VoteableType != "" {
		q = q.Where("voteable_type = ?", f.VoteableType)
	}
	if f.Value != nil {
		q = q.Where("vote = ?", *f.Value)
	}
	if f.MinValue != nil {
		q = q.Where("vote >= ?", *f.MinValue)
	}
	if f.MaxValue != nil {
		q = q.Where("vote <= ?", *f.MaxValue)
	}
	if f.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		q = q.Where("created_at <= ?", *f.CreatedTo)
	}
	return q
}

func (s *Store) logError(op string, err error, fields ...zap.Field) error {
	s.log.Error("vote store operation failed", append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...)
	return err
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

func isUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42703"
}

var _ votes.Store = (*Store)(nil)
