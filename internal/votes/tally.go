package votes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emilythestrangee/thumbsup/internal/models"
)

// VoteCountColumn names the aggregated count in tally ordering. It always
// means the count of votes in the window, even on kinds whose counter cache
// column is also called vote_count; a tally cannot sort by that cache.
const VoteCountColumn = "vote_count"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Op is a comparison operator usable in tally conditions.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "<>"
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

var opAliases = map[string]Op{
	"=": OpEq, "eq": OpEq,
	"<>": OpNe, "!=": OpNe, "ne": OpNe,
	"<": OpLt, "lt": OpLt,
	"<=": OpLte, "lte": OpLte,
	">": OpGt, "gt": OpGt,
	">=": OpGte, "gte": OpGte,
}

// ParseOp accepts symbolic or short operator names.
func ParseOp(s string) (Op, bool) {
	op, ok := opAliases[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

// Condition filters the base entity collection of a tally on one column.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

// OrderBy is one sort key of a tally. Column is either VoteCountColumn or a
// column of the voteable table.
type OrderBy struct {
	Column string
	Desc   bool
}

// TallyOptions are the knobs of Tally. Zero fields are ignored.
type TallyOptions struct {
	StartAt    *time.Time
	EndAt      *time.Time
	AtLeast    *int64
	AtMost     *int64
	Limit      int
	Order      []OrderBy
	Conditions []Condition
}

// TallyRow is one ranked voteable.
type TallyRow struct {
	Ref        models.Ref     `json:"ref"`
	VoteCount  int64          `json:"vote_count"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Normalize validates the options and fills in defaults.
func (o TallyOptions) Normalize() (TallyOptions, error) {
	if o.Limit < 0 {
		return o, fmt.Errorf("%w: negative limit", ErrInvalidTally)
	}
	if o.StartAt != nil && o.EndAt != nil && o.EndAt.Before(*o.StartAt) {
		return o, fmt.Errorf("%w: end_at before start_at", ErrInvalidTally)
	}
	if o.AtLeast != nil && o.AtMost != nil && *o.AtMost < *o.AtLeast {
		return o, fmt.Errorf("%w: at_most below at_least", ErrInvalidTally)
	}
	for _, ob := range o.Order {
		if !validIdentifier(ob.Column) {
			return o, fmt.Errorf("%w: bad order column %q", ErrInvalidTally, ob.Column)
		}
	}
	for _, c := range o.Conditions {
		if !validIdentifier(c.Column) {
			return o, fmt.Errorf("%w: bad condition column %q", ErrInvalidTally, c.Column)
		}
		if _, ok := ParseOp(string(c.Op)); !ok {
			return o, fmt.Errorf("%w: bad operator %q", ErrInvalidTally, c.Op)
		}
	}
	if len(o.Order) == 0 {
		o.Order = []OrderBy{{Column: VoteCountColumn, Desc: true}}
	}
	return o, nil
}

// ParseOrder reads "col[:asc|:desc][,col...]" into sort keys.
func ParseOrder(s string) ([]OrderBy, error) {
	var out []OrderBy
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		col, dir, _ := strings.Cut(part, ":")
		ob := OrderBy{Column: strings.TrimSpace(col)}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
		case "desc":
			ob.Desc = true
		default:
			return nil, fmt.Errorf("%w: bad order direction %q", ErrInvalidTally, dir)
		}
		out = append(out, ob)
	}
	return out, nil
}

// ParseCondition reads "col:op:value".
func ParseCondition(s string) (Condition, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("%w: condition %q is not column:op:value", ErrInvalidTally, s)
	}
	op, ok := ParseOp(parts[1])
	if !ok {
		return Condition{}, fmt.Errorf("%w: bad operator %q", ErrInvalidTally, parts[1])
	}
	return Condition{Column: strings.TrimSpace(parts[0]), Op: op, Value: literal(parts[2])}, nil
}

// literal types a textual condition value so integer and boolean columns
// compare against typed parameters.
func literal(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}
