package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

func TestRenderDrifts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderDrifts(&buf, nil))
	assert.Equal(t, "All counters are in sync.\n", buf.String())

	buf.Reset()
	require.NoError(t, renderDrifts(&buf, []votes.CounterDriftError{
		{Ref: models.Ref{Type: models.PostKind, ID: 4}, Column: "vote_count", Cached: 7, Actual: 5},
	}))
	out := buf.String()
	assert.Contains(t, out, "Post#4")
	assert.Contains(t, out, "-2")
	assert.Contains(t, out, "REPAIRED")
}

func TestCounterRegistry(t *testing.T) {
	r, err := counterRegistry()
	require.NoError(t, err)

	c, ok := r.Lookup(models.CommentKind)
	require.True(t, ok)
	assert.Equal(t, votes.CounterCount, c.Mode)
	_, ok = r.Lookup(models.UserKind)
	assert.False(t, ok)
}

func TestCommandTree(t *testing.T) {
	cmd := NewCmd(nil)
	for _, name := range []string{"serve", "migrate", "reconcile"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup(portF))
}
