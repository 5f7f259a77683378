package votes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaultsOrder(t *testing.T) {
	opts, err := TallyOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, []OrderBy{{Column: VoteCountColumn, Desc: true}}, opts.Order)
}

func TestNormalizeRejects(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	one, two := int64(1), int64(2)

	tests := map[string]TallyOptions{
		"negative limit":   {Limit: -1},
		"inverted window":  {StartAt: &now, EndAt: &earlier},
		"inverted bounds":  {AtLeast: &two, AtMost: &one},
		"bad order column": {Order: []OrderBy{{Column: "1=1"}}},
		"bad column":       {Conditions: []Condition{{Column: "title)", Op: OpEq, Value: "x"}}},
		"bad operator":     {Conditions: []Condition{{Column: "title", Op: "LIKE", Value: "x"}}},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := opts.Normalize()
			require.ErrorIs(t, err, ErrInvalidTally)
		})
	}
}

func TestParseOrder(t *testing.T) {
	order, err := ParseOrder("vote_count:desc, created_at ,title:asc")
	require.NoError(t, err)
	assert.Equal(t, []OrderBy{
		{Column: "vote_count", Desc: true},
		{Column: "created_at"},
		{Column: "title"},
	}, order)

	order, err = ParseOrder("")
	require.NoError(t, err)
	assert.Empty(t, order)

	_, err = ParseOrder("title:sideways")
	require.ErrorIs(t, err, ErrInvalidTally)
}

func TestParseCondition(t *testing.T) {
	tests := map[string]Condition{
		"user_id:eq:7":      {Column: "user_id", Op: OpEq, Value: int64(7)},
		"title:!=:hello":    {Column: "title", Op: OpNe, Value: "hello"},
		"published:=:true":  {Column: "published", Op: OpEq, Value: true},
		"flag:=:t":          {Column: "flag", Op: OpEq, Value: "t"},
		"body:=:a:b":        {Column: "body", Op: OpEq, Value: "a:b"},
		"vote_count:gte:-2": {Column: "vote_count", Op: OpGte, Value: int64(-2)},
	}
	for in, want := range tests {
		got, err := ParseCondition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCondition("title")
	require.ErrorIs(t, err, ErrInvalidTally)
	_, err = ParseCondition("title:like:x")
	require.ErrorIs(t, err, ErrInvalidTally)
}
