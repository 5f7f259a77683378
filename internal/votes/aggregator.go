package votes

import (
	"context"

	"github.com/emilythestrangee/thumbsup/internal/models"
)

// Aggregator answers read-only count and sum questions against the ledger.
//
// Plusminus, VotesFor and VotesAgainst only look at +1 and -1 votes, so
// tiered gold/silver/bronze votes (3/2/1) never move plusminus, and bronze
// votes are indistinguishable from up votes in VotesFor.
type Aggregator struct {
	ledger Ledger
}

func NewAggregator(ledger Ledger) *Aggregator {
	return &Aggregator{ledger: ledger}
}

func (a *Aggregator) Count(ctx context.Context, f Filter) (int64, error) {
	return a.ledger.Count(ctx, f)
}

func (a *Aggregator) Sum(ctx context.Context, f Filter) (int64, error) {
	return a.ledger.Sum(ctx, f)
}

// VotesCount is the number of votes ref received.
func (a *Aggregator) VotesCount(ctx context.Context, ref models.Ref) (int64, error) {
	return a.ledger.Count(ctx, ByVoteable(ref))
}

// VotesTotal is the signed sum of the votes ref received.
func (a *Aggregator) VotesTotal(ctx context.Context, ref models.Ref) (int64, error) {
	return a.ledger.Sum(ctx, ByVoteable(ref))
}

func (a *Aggregator) VotesFor(ctx context.Context, ref models.Ref) (int64, error) {
	return a.ledger.Count(ctx, ByVoteable(ref).WithValue(1))
}

func (a *Aggregator) VotesAgainst(ctx context.Context, ref models.Ref) (int64, error) {
	return a.ledger.Count(ctx, ByVoteable(ref).WithValue(-1))
}

// Plusminus is VotesFor minus VotesAgainst.
func (a *Aggregator) Plusminus(ctx context.Context, ref models.Ref) (int64, error) {
	up, err := a.VotesFor(ctx, ref)
	if err != nil {
		return 0, err
	}
	down, err := a.VotesAgainst(ctx, ref)
	if err != nil {
		return 0, err
	}
	return up - down, nil
}

func (a *Aggregator) Golds(ctx context.Context, ref models.Ref) (int64, error) {
	return a.ledger.Count(ctx, ByVoteable(ref).WithValue(GoldValue))
}

func (a *Aggregator) Silvers(ctx context.Context, ref models.Ref) (int64, error) {
	return a.ledger.Count(ctx, ByVoteable(ref).WithValue(SilverValue))
}

func (a *Aggregator) Bronzes(ctx context.Context, ref models.Ref) (int64, error) {
	return a.ledger.Count(ctx, ByVoteable(ref).WithValue(BronzeValue))
}

// VotersWhoVoted returns each voter of ref once.
func (a *Aggregator) VotersWhoVoted(ctx context.Context, ref models.Ref) ([]models.Ref, error) {
	return a.ledger.DistinctVoters(ctx, ByVoteable(ref))
}

// Summary bundles the per-category statistics of one voteable.
type Summary struct {
	Voteable     models.Ref `json:"voteable"`
	VotesCount   int64      `json:"votes_count"`
	VotesTotal   int64      `json:"votes_total"`
	VotesFor     int64      `json:"votes_for"`
	VotesAgainst int64      `json:"votes_against"`
	Plusminus    int64      `json:"plusminus"`
	Golds        int64      `json:"golds"`
	Silvers      int64      `json:"silvers"`
	Bronzes      int64      `json:"bronzes"`
}

func (a *Aggregator) Summarize(ctx context.Context, ref models.Ref) (Summary, error) {
	s := Summary{Voteable: ref}
	counts := []struct {
		dst *int64
		f   Filter
	}{
		{&s.VotesCount, ByVoteable(ref)},
		{&s.VotesFor, ByVoteable(ref).WithValue(1)},
		{&s.VotesAgainst, ByVoteable(ref).WithValue(-1)},
		{&s.Golds, ByVoteable(ref).WithValue(GoldValue)},
		{&s.Silvers, ByVoteable(ref).WithValue(SilverValue)},
		{&s.Bronzes, ByVoteable(ref).WithValue(BronzeValue)},
	}
	for _, c := range counts {
		n, err := a.ledger.Count(ctx, c.f)
		if err != nil {
			return Summary{}, err
		}
		*c.dst = n
	}
	total, err := a.ledger.Sum(ctx, ByVoteable(ref))
	if err != nil {
		return Summary{}, err
	}
	s.VotesTotal = total
	s.Plusminus = s.VotesFor - s.VotesAgainst
	return s, nil
}
