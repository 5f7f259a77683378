package database

import (
	"context"
	"testing"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/thumbsup/internal/config"
	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

func startPostgres(t *testing.T) Service {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("thumbsup"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := New(config.Database{DSN: dsn, Name: "thumbsup"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db.GetDB()))
	return db
}

type fixture struct {
	db    *gorm.DB
	store *Store
	svc   *votes.Service
	users []models.User
	posts []models.Post
}

func newFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	require.NoError(t, db.Exec("TRUNCATE votes, posts, comments, users RESTART IDENTITY").Error)

	store, err := NewStore(db, zap.NewNop(), DefaultKinds()...)
	require.NoError(t, err)
	registry, err := votes.NewRegistry(
		votes.CounterColumn{Kind: models.PostKind, Column: "vote_count", Mode: votes.CounterSum},
		votes.CounterColumn{Kind: models.CommentKind, Column: "votes_count", Mode: votes.CounterCount},
	)
	require.NoError(t, err)

	f := &fixture{db: db, store: store, svc: votes.NewService(store, registry, zap.NewNop(), nil)}
	for _, name := range []string{"alice", "bob", "carol"} {
		u := models.User{Username: name}
		require.NoError(t, db.Create(&u).Error)
		f.users = append(f.users, u)
	}
	for _, title := range []string{"b", "a", "c"} {
		p := models.Post{Title: title, UserID: f.users[0].ID}
		require.NoError(t, db.Create(&p).Error)
		f.posts = append(f.posts, p)
	}
	return f
}

func (f *fixture) voteCount(t *testing.T, p models.Post) int64 {
	t.Helper()
	var reloaded models.Post
	require.NoError(t, f.db.First(&reloaded, p.ID).Error)
	return reloaded.VoteCount
}

func TestPostgresStore(t *testing.T) {
	db := startPostgres(t).GetDB()
	ctx := context.Background()

	t.Run("append and filter", func(t *testing.T) {
		f := newFixture(t, db)
		alice, bob, post := f.users[0].Ref(), f.users[1].Ref(), f.posts[0].Ref()

		_, err := f.svc.VoteFor(ctx, alice, post)
		require.NoError(t, err)
		_, err = f.svc.VoteAgainst(ctx, bob, post)
		require.NoError(t, err)
		_, err = f.svc.VoteFor(ctx, alice, post)
		require.NoError(t, err)

		total, err := f.svc.Aggregator().VotesTotal(ctx, post)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)

		found, err := f.store.Find(ctx, votes.ByPair(alice, post))
		require.NoError(t, err)
		assert.Len(t, found, 2)

		voters, err := f.svc.Aggregator().VotersWhoVoted(ctx, post)
		require.NoError(t, err)
		assert.Equal(t, []models.Ref{alice, bob}, voters)
		assert.Equal(t, int64(1), f.voteCount(t, f.posts[0]))
	})

	t.Run("zero vote is rejected by the check constraint", func(t *testing.T) {
		f := newFixture(t, db)
		v := models.Vote{
			VoterType: models.UserKind, VoterID: f.users[0].ID,
			VoteableType: models.PostKind, VoteableID: f.posts[0].ID,
			Value: 0, CreatedAt: time.Now(),
		}
		err := f.db.Create(&v).Error
		require.Error(t, err)
		assert.True(t, isCheckViolation(err))
	})

	t.Run("remove returns the deleted rows", func(t *testing.T) {
		f := newFixture(t, db)
		v, err := f.svc.VoteGold(ctx, f.users[0].Ref(), f.posts[0].Ref())
		require.NoError(t, err)

		removed, err := f.store.Remove(ctx, v.ID)
		require.NoError(t, err)
		require.NotNil(t, removed)
		assert.Equal(t, votes.GoldValue, removed.Value)

		removed, err = f.store.Remove(ctx, v.ID)
		require.NoError(t, err)
		assert.Nil(t, removed)

		_, err = f.store.RemoveAll(ctx, votes.Filter{})
		require.Error(t, err)
	})

	t.Run("concurrent exclusive votes leave one vote", func(t *testing.T) {
		f := newFixture(t, db)
		alice, post := f.users[0].Ref(), f.posts[0].Ref()

		p := pool.New().WithErrors().WithMaxGoroutines(8)
		for i := range 16 {
			p.Go(func() error {
				value := votes.Sym(votes.Up)
				if i%2 == 1 {
					value = votes.Sym(votes.Down)
				}
				_, err := f.svc.Vote(ctx, alice, post, votes.Options{Value: value, Exclusive: true})
				return err
			})
		}
		require.NoError(t, p.Wait())

		found, err := f.store.Find(ctx, votes.ByPair(alice, post))
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, int64(found[0].Value), f.voteCount(t, f.posts[0]))
	})

	t.Run("destroying a voter cascades", func(t *testing.T) {
		f := newFixture(t, db)
		alice, bob := f.users[0].Ref(), f.users[1].Ref()

		_, err := f.svc.VoteFor(ctx, alice, f.posts[0].Ref())
		require.NoError(t, err)
		_, err = f.svc.VoteGold(ctx, alice, f.posts[1].Ref())
		require.NoError(t, err)
		_, err = f.svc.VoteFor(ctx, bob, f.posts[0].Ref())
		require.NoError(t, err)

		require.NoError(t, f.svc.DestroyOwner(ctx, alice))

		cast, err := f.store.Find(ctx, votes.ByVoter(alice))
		require.NoError(t, err)
		assert.Empty(t, cast)
		assert.Equal(t, int64(1), f.voteCount(t, f.posts[0]))
		assert.Zero(t, f.voteCount(t, f.posts[1]))

		exists, err := f.store.EntityExists(ctx, alice)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("count mode counter", func(t *testing.T) {
		f := newFixture(t, db)
		c := models.Comment{Body: "first", AuthorID: f.users[0].ID, PostID: f.posts[0].ID}
		require.NoError(t, f.db.Create(&c).Error)

		_, err := f.svc.VoteGold(ctx, f.users[1].Ref(), c.Ref())
		require.NoError(t, err)
		_, err = f.svc.VoteAgainst(ctx, f.users[2].Ref(), c.Ref())
		require.NoError(t, err)

		n, err := f.svc.ReloadVoteCounter(ctx, c.Ref())
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("reconcile repairs drift", func(t *testing.T) {
		f := newFixture(t, db)
		post := f.posts[0]
		_, err := f.svc.VoteFor(ctx, f.users[0].Ref(), post.Ref())
		require.NoError(t, err)
		require.NoError(t, f.db.Exec("UPDATE posts SET vote_count = 10 WHERE id = ?", post.ID).Error)

		drifts, err := f.svc.Synchronizer().Sweep(ctx)
		require.NoError(t, err)
		require.Len(t, drifts, 1)
		assert.Equal(t, int64(10), drifts[0].Cached)
		assert.Equal(t, int64(1), drifts[0].Actual)
		assert.Equal(t, int64(1), f.voteCount(t, post))
	})

	t.Run("tally", func(t *testing.T) {
		f := newFixture(t, db)
		// post 0 gets one vote, post 1 three and post 2 two
		plan := []struct {
			post   int
			voters []int
		}{{0, []int{0}}, {1, []int{0, 1, 2}}, {2, []int{0, 1}}}
		for _, p := range plan {
			for _, u := range p.voters {
				_, err := f.svc.VoteFor(ctx, f.users[u].Ref(), f.posts[p.post].Ref())
				require.NoError(t, err)
			}
		}

		atLeast := int64(2)
		rows, err := f.svc.Tally(ctx, models.PostKind, votes.TallyOptions{AtLeast: &atLeast})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, f.posts[1].Ref(), rows[0].Ref)
		assert.Equal(t, int64(3), rows[0].VoteCount)
		assert.Equal(t, f.posts[2].Ref(), rows[1].Ref)
		assert.Equal(t, "c", rows[1].Attributes["title"])

		rows, err = f.svc.Tally(ctx, models.PostKind, votes.TallyOptions{
			Conditions: []votes.Condition{{Column: "title", Op: votes.OpNe, Value: "a"}},
			Order:      []votes.OrderBy{{Column: "title"}},
			Limit:      1,
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, f.posts[0].Ref(), rows[0].Ref)

		// vote_count orders by the tally, not by the posts.vote_count cache
		require.NoError(t, f.db.Exec("UPDATE posts SET vote_count = 100 WHERE id = ?", f.posts[0].ID).Error)
		rows, err = f.svc.Tally(ctx, models.PostKind, votes.TallyOptions{
			Order: []votes.OrderBy{{Column: votes.VoteCountColumn, Desc: true}},
		})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, f.posts[1].Ref(), rows[0].Ref)
		assert.Equal(t, f.posts[0].Ref(), rows[2].Ref)

		_, err = f.svc.Tally(ctx, models.PostKind, votes.TallyOptions{
			Order: []votes.OrderBy{{Column: "no_such_column"}},
		})
		require.ErrorIs(t, err, votes.ErrInvalidTally)

		_, err = f.svc.Tally(ctx, "Widget", votes.TallyOptions{})
		require.ErrorIs(t, err, votes.ErrUnknownKind)
	})
}

func TestHealth(t *testing.T) {
	db := startPostgres(t)
	stats := db.Health(context.Background())
	assert.Equal(t, "up", stats["status"], stats["error"])
	assert.Contains(t, stats, "wait_count")

	require.NoError(t, db.GetDB().Exec("ALTER TABLE votes RENAME TO votes_moved").Error)
	stats = db.Health(context.Background())
	assert.Equal(t, "down", stats["status"])
	assert.Equal(t, "ledger", stats["failed_check"])
	require.NoError(t, db.GetDB().Exec("ALTER TABLE votes_moved RENAME TO votes").Error)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	stats = db.Health(context.Background())
	assert.Equal(t, "down", stats["status"])
	assert.Equal(t, "ping", stats["failed_check"])
}
