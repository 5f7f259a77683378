package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

// Tally groups the votes of kind in memory. Votes on records that are not
// stored are skipped. Ties keep ascending id order.
func (t *tx) Tally(_ context.Context, kind string, opts votes.TallyOptions) ([]votes.TallyRow, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int64)
	for _, v := range t.st.votes {
		if v.VoteableType != kind {
			continue
		}
		if opts.StartAt != nil && v.CreatedAt.Before(*opts.StartAt) {
			continue
		}
		if opts.EndAt != nil && v.CreatedAt.After(*opts.EndAt) {
			continue
		}
		counts[v.VoteableID]++
	}

	rows := make([]votes.TallyRow, 0, len(counts))
	for id, n := range counts {
		if opts.AtLeast != nil && n < *opts.AtLeast {
			continue
		}
		if opts.AtMost != nil && n > *opts.AtMost {
			continue
		}
		ref := models.Ref{Type: kind, ID: id}
		attrs, ok := t.st.entities[ref]
		if !ok {
			continue
		}
		if len(opts.Conditions) > 0 {
			ok, err := matchConditions(attrs, opts.Conditions)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		rows = append(rows, votes.TallyRow{Ref: ref, VoteCount: n, Attributes: copyAttrs(attrs)})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Ref.ID < rows[j].Ref.ID })
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ob := range opts.Order {
			c, err := compare(sortKey(rows[i], ob.Column), sortKey(rows[j], ob.Column))
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if ob.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, fmt.Errorf("%w: %v", votes.ErrInvalidTally, sortErr)
	}

	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows, nil
}

func sortKey(row votes.TallyRow, column string) any {
	if column == votes.VoteCountColumn {
		return row.VoteCount
	}
	return row.Attributes[column]
}

func matchConditions(attrs map[string]any, conds []votes.Condition) (bool, error) {
	if attrs == nil {
		return false, nil
	}
	for _, cond := range conds {
		got, ok := attrs[cond.Column]
		if !ok {
			return false, nil
		}
		c, err := compare(got, cond.Value)
		if err != nil {
			return false, fmt.Errorf("%w: column %s: %v", votes.ErrInvalidTally, cond.Column, err)
		}
		op, _ := votes.ParseOp(string(cond.Op))
		var keep bool
		switch op {
		case votes.OpEq:
			keep = c == 0
		case votes.OpNe:
			keep = c != 0
		case votes.OpLt:
			keep = c < 0
		case votes.OpLte:
			keep = c <= 0
		case votes.OpGt:
			keep = c > 0
		case votes.OpGte:
			keep = c >= 0
		}
		if !keep {
			return false, nil
		}
	}
	return true, nil
}

// compare orders numbers, strings, booleans and times. nil sorts first.
func compare(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			return cmp(x, y), nil
		}
	}
	if x, ok := toFloat64(a); ok {
		if y, ok := toFloat64(b); ok {
			return cmp(x, y), nil
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func cmp[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func copyAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	cp := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return cp
}
