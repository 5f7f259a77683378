package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/thumbsup/internal/votes"
)

// IncrementCounter issues UPDATE t SET col = col + delta, so concurrent
// deltas on the same row never overwrite each other.
func (s *Store) IncrementCounter(ctx context.Context, c votes.CounterColumn, id int64, delta int64) error {
	table, err := s.table(c.Kind)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Table(table).
		Where("id = ?", id).
		UpdateColumn(c.Column, gorm.Expr("? + ?", clause.Column{Name: c.Column}, delta)).
		Error
	if err != nil {
		return s.logError("increment counter", err,
			zap.String("table", table),
			zap.String("column", c.Column),
			zap.Int64("id", id),
			zap.Int64("delta", delta),
		)
	}
	return nil
}

func (s *Store) ReadCounter(ctx context.Context, c votes.CounterColumn, id int64) (int64, error) {
	table, err := s.table(c.Kind)
	if err != nil {
		return 0, err
	}
	var values []int64
	if err := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Pluck(c.Column, &values).Error; err != nil {
		return 0, s.logError("read counter", err, zap.String("table", table), zap.Int64("id", id))
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: %s#%d", votes.ErrEntityNotFound, c.Kind, id)
	}
	return values[0], nil
}

func (s *Store) CounterIDs(ctx context.Context, c votes.CounterColumn) ([]int64, error) {
	table, err := s.table(c.Kind)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0)
	if err := s.db.WithContext(ctx).Table(table).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, s.logError("list counter ids", err, zap.String("table", table))
	}
	return ids, nil
}
