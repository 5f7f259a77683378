package database

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

// tallyAlias keeps the aggregate apart from counter cache columns that are
// themselves called vote_count.
const tallyAlias = "tally_vote_count"

// Tally runs a single grouped query:
//
//	SELECT t.*, COUNT(votes.id) AS tally_vote_count
//	FROM t JOIN votes ON votes.voteable_id = t.id AND votes.voteable_type = ? [window]
//	WHERE [conditions] GROUP BY t.id HAVING COUNT(votes.id) > 0 [bounds]
//	ORDER BY ... LIMIT ...
func (s *Store) Tally(ctx context.Context, kind string, opts votes.TallyOptions) ([]votes.TallyRow, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	table, err := s.table(kind)
	if err != nil {
		return nil, err
	}

	q := tallyQuery(s.db.WithContext(ctx), table, kind, opts)

	var rows []map[string]any
	if err := q.Find(&rows).Error; err != nil {
		if isUndefinedColumn(err) {
			return nil, fmt.Errorf("%w: %v", votes.ErrInvalidTally, err)
		}
		return nil, s.logError("tally", err, zap.String("kind", kind))
	}

	out := make([]votes.TallyRow, 0, len(rows))
	for _, row := range rows {
		id, ok := asInt64(row["id"])
		if !ok {
			return nil, fmt.Errorf("tally %s: unexpected id %v", kind, row["id"])
		}
		count, _ := asInt64(row[tallyAlias])
		delete(row, tallyAlias)
		out = append(out, votes.TallyRow{
			Ref:        models.Ref{Type: kind, ID: id},
			VoteCount:  count,
			Attributes: row,
		})
	}
	return out, nil
}

func tallyQuery(db *gorm.DB, table, kind string, opts votes.TallyOptions) *gorm.DB {
	tbl := clause.Table{Name: table}
	voteID := clause.Column{Table: votesTable, Name: "id"}

	join := []string{"JOIN votes ON votes.voteable_id = ?.id AND votes.voteable_type = ?"}
	joinVars := []any{tbl, kind}
	if opts.StartAt != nil {
		join = append(join, "votes.created_at >= ?")
		joinVars = append(joinVars, *opts.StartAt)
	}
	if opts.EndAt != nil {
		join = append(join, "votes.created_at <= ?")
		joinVars = append(joinVars, *opts.EndAt)
	}

	q := db.Table(table).
		Select("?.*, COUNT(?) AS ?", tbl, voteID, clause.Column{Name: tallyAlias}).
		Joins(strings.Join(join, " AND "), joinVars...)

	for _, c := range opts.Conditions {
		op, _ := votes.ParseOp(string(c.Op))
		q = q.Where(clause.Expr{
			SQL:  "? " + string(op) + " ?",
			Vars: []any{clause.Column{Table: table, Name: c.Column}, c.Value},
		})
	}

	q = q.Group(table + ".id").Having("COUNT(?) > 0", voteID)
	if opts.AtLeast != nil {
		q = q.Having("COUNT(?) >= ?", voteID, *opts.AtLeast)
	}
	if opts.AtMost != nil {
		q = q.Having("COUNT(?) <= ?", voteID, *opts.AtMost)
	}

	for _, ob := range opts.Order {
		col := clause.Column{Table: table, Name: ob.Column}
		// shadows a cache column of the same name
		if ob.Column == votes.VoteCountColumn {
			col = clause.Column{Name: tallyAlias}
		}
		q = q.Order(clause.OrderByColumn{Column: col, Desc: ob.Desc})
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	return q
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}
