package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/thumbsup/internal/middleware"
	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

type VoteHandler struct {
	svc   *votes.Service
	kinds map[string]string
	log   *zap.Logger
}

func NewVoteHandler(svc *votes.Service, kinds map[string]string, log *zap.Logger) *VoteHandler {
	return &VoteHandler{svc: svc, kinds: kinds, log: log}
}

type castVoteRequest struct {
	// Value is a symbol ("up", "down", "gold", "silver", "bronze") or an integer.
	Value     any  `json:"value"`
	Exclusive bool `json:"exclusive"`
}

func (r castVoteRequest) value() (votes.Value, error) {
	switch v := r.Value.(type) {
	case nil:
		return votes.Value{}, nil
	case string:
		return votes.ParseValue(v)
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
			return votes.Value{}, fmt.Errorf("%w: value must be an integer", votes.ErrInvalidVote)
		}
		return votes.Magnitude(int(v)), nil
	default:
		return votes.Value{}, fmt.Errorf("%w: unsupported value type %T", votes.ErrInvalidVote, v)
	}
}

// target resolves :kind/:id and checks the record exists.
func (h *VoteHandler) target(c *gin.Context) (models.Ref, bool) {
	kind, ok := h.kinds[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown kind " + c.Param("kind")})
		return models.Ref{}, false
	}
	id, ok := parseID(c, "id")
	if !ok {
		return models.Ref{}, false
	}
	ref := models.Ref{Type: kind, ID: id}
	exists, err := h.svc.Exists(c.Request.Context(), ref)
	if err != nil {
		respondError(c, h.log, err, "Failed to look up "+c.Param("kind"))
		return models.Ref{}, false
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": ref.Type + " not found"})
		return models.Ref{}, false
	}
	return ref, true
}

func currentVoter(c *gin.Context) (models.Ref, bool) {
	voter, ok := middleware.Voter(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return voter, ok
}

// CastVote records a vote (PROTECTED - requires a voter token)
func (h *VoteHandler) CastVote(c *gin.Context) {
	voter, ok := currentVoter(c)
	if !ok {
		return
	}

	var input castVoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, err := input.value()
	if err != nil {
		respondError(c, h.log, err, "Failed to vote")
		return
	}

	target, ok := h.target(c)
	if !ok {
		return
	}

	vote, err := h.svc.Vote(c.Request.Context(), voter, target, votes.Options{Value: value, Exclusive: input.Exclusive})
	if err != nil {
		respondError(c, h.log, err, "Failed to vote")
		return
	}

	resp := gin.H{"message": "Vote recorded", "vote": vote}
	if counter, err := h.svc.ReloadVoteCounter(c.Request.Context(), target); err == nil {
		resp["vote_counter"] = counter
	} else if !errors.Is(err, votes.ErrUnknownKind) {
		h.log.Warn("reload vote counter failed", zap.Stringer("voteable", target), zap.Error(err))
	}
	c.JSON(http.StatusCreated, resp)
}

// ClearVotes removes the current voter's votes on the target (PROTECTED)
func (h *VoteHandler) ClearVotes(c *gin.Context) {
	voter, ok := currentVoter(c)
	if !ok {
		return
	}
	target, ok := h.target(c)
	if !ok {
		return
	}
	removed, err := h.svc.ClearVotes(c.Request.Context(), voter, target)
	if err != nil {
		respondError(c, h.log, err, "Failed to clear votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Votes removed", "removed": len(removed)})
}

// GetSummary returns the aggregate statistics of a voteable
func (h *VoteHandler) GetSummary(c *gin.Context) {
	target, ok := h.target(c)
	if !ok {
		return
	}
	summary, err := h.svc.Aggregator().Summarize(c.Request.Context(), target)
	if err != nil {
		respondError(c, h.log, err, "Failed to fetch votes")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetVoterStatus reports how the current voter voted on the target (PROTECTED)
func (h *VoteHandler) GetVoterStatus(c *gin.Context) {
	voter, ok := currentVoter(c)
	if !ok {
		return
	}
	target, ok := h.target(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	status := gin.H{}
	checks := []struct {
		key string
		fn  func() (bool, error)
	}{
		{"voted_on", func() (bool, error) { return h.svc.VotedOn(ctx, voter, target) }},
		{"voted_for", func() (bool, error) { return h.svc.VotedFor(ctx, voter, target) }},
		{"voted_against", func() (bool, error) { return h.svc.VotedAgainst(ctx, voter, target) }},
		{"gold", func() (bool, error) { return h.svc.VotedWith(ctx, voter, target, votes.GoldValue) }},
		{"silver", func() (bool, error) { return h.svc.VotedWith(ctx, voter, target, votes.SilverValue) }},
		{"bronze", func() (bool, error) { return h.svc.VotedWith(ctx, voter, target, votes.BronzeValue) }},
	}
	for _, check := range checks {
		v, err := check.fn()
		if err != nil {
			respondError(c, h.log, err, "Failed to fetch vote status")
			return
		}
		status[check.key] = v
	}
	c.JSON(http.StatusOK, status)
}

// GetVoters lists everyone who voted on the target
func (h *VoteHandler) GetVoters(c *gin.Context) {
	target, ok := h.target(c)
	if !ok {
		return
	}
	voters, err := h.svc.Aggregator().VotersWhoVoted(c.Request.Context(), target)
	if err != nil {
		respondError(c, h.log, err, "Failed to fetch voters")
		return
	}
	c.JSON(http.StatusOK, voters)
}

// ReloadCounter returns the stored counter cache of the target
func (h *VoteHandler) ReloadCounter(c *gin.Context) {
	target, ok := h.target(c)
	if !ok {
		return
	}
	counter, err := h.svc.ReloadVoteCounter(c.Request.Context(), target)
	if err != nil {
		respondError(c, h.log, err, "Failed to reload vote counter")
		return
	}
	c.JSON(http.StatusOK, gin.H{"voteable": target, "vote_counter": counter})
}

// GetMyVoteCount counts the current voter's votes (PROTECTED)
func (h *VoteHandler) GetMyVoteCount(c *gin.Context) {
	voter, ok := currentVoter(c)
	if !ok {
		return
	}
	direction, ok := votes.ParseDirection(c.Query("direction"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be all, up or down"})
		return
	}
	n, err := h.svc.VoteCount(c.Request.Context(), voter, direction)
	if err != nil {
		respondError(c, h.log, err, "Failed to count votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"voter": voter, "vote_count": n})
}

// Tally ranks all voteables of a kind by vote count
func (h *VoteHandler) Tally(c *gin.Context) {
	kind, ok := h.kinds[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown kind " + c.Param("kind")})
		return
	}
	opts, err := tallyOptionsFromQuery(c)
	if err != nil {
		respondError(c, h.log, err, "Failed to tally")
		return
	}
	rows, err := h.svc.Tally(c.Request.Context(), kind, opts)
	if err != nil {
		respondError(c, h.log, err, "Failed to tally")
		return
	}
	c.JSON(http.StatusOK, rows)
}

func tallyOptionsFromQuery(c *gin.Context) (votes.TallyOptions, error) {
	var opts votes.TallyOptions
	parseTime := func(key string) (*time.Time, error) {
		raw := c.Query(key)
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be RFC3339", votes.ErrInvalidTally, key)
		}
		return &t, nil
	}
	parseInt := func(key string) (*int64, error) {
		raw := c.Query(key)
		if raw == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", votes.ErrInvalidTally, key)
		}
		return &n, nil
	}

	var err error
	if opts.StartAt, err = parseTime("start_at"); err != nil {
		return opts, err
	}
	if opts.EndAt, err = parseTime("end_at"); err != nil {
		return opts, err
	}
	if opts.AtLeast, err = parseInt("at_least"); err != nil {
		return opts, err
	}
	if opts.AtMost, err = parseInt("at_most"); err != nil {
		return opts, err
	}
	limit, err := parseInt("limit")
	if err != nil {
		return opts, err
	}
	if limit != nil {
		opts.Limit = int(*limit)
	}
	if opts.Order, err = votes.ParseOrder(c.Query("order")); err != nil {
		return opts, err
	}
	for _, raw := range c.QueryArray("where") {
		cond, err := votes.ParseCondition(raw)
		if err != nil {
			return opts, err
		}
		opts.Conditions = append(opts.Conditions, cond)
	}
	return opts, nil
}

// Reconcile recomputes every counter cache from the ledger
func (h *VoteHandler) Reconcile(c *gin.Context) {
	drifts, err := h.svc.Synchronizer().Sweep(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "Failed to reconcile counters")
		return
	}
	out := make([]gin.H, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, gin.H{
			"voteable": d.Ref,
			"column":   d.Column,
			"cached":   d.Cached,
			"actual":   d.Actual,
		})
	}
	c.JSON(http.StatusOK, gin.H{"repaired": out})
}
