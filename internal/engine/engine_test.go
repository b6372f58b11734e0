package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/moments/internal/feed"
	"github.com/sujalbistaa/moments/internal/models"
	"github.com/sujalbistaa/moments/internal/persona"
	"github.com/sujalbistaa/moments/internal/reply"
)

var human = models.Author{ID: "user", Name: "我", Avatar: "me.png"}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []reply.Prompt
	GenFunc func(ctx context.Context, p reply.Prompt) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, p reply.Prompt) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	f.mu.Unlock()
	return f.GenFunc(ctx, p)
}

func (f *fakeGenerator) Calls() []reply.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reply.Prompt{}, f.calls...)
}

func instantConfig() Config {
	cfg := DefaultConfig()
	cfg.PostDelay = Window{}
	cfg.CommentDelay = Window{}
	cfg.BetweenDelay = Window{}
	return cfg
}

func startEngine(t *testing.T, store *feed.Store, gen reply.Generator, cfg Config, seed uint64) *Engine {
	t.Helper()
	roster := persona.Default()
	e := New(slogt.New(t), store, roster, gen, reply.NewCanned(roster, rand.New(rand.NewPCG(seed, 1))), cfg,
		WithRand(rand.New(rand.NewPCG(seed, 2))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		e.Close()
		e.Wait()
		cancel()
		<-done
	})
	return e
}

func TestEngine_FailingGeneratorFallsBack(t *testing.T) {
	roster := persona.Default()
	failing := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) {
		return "", reply.ErrUpstream
	}}

	cfg := instantConfig()
	cfg.CommentProbability = 1
	cfg.PostOdds = Odds{Mention: 1, Random: 1}

	for seed := uint64(0); seed < 10; seed++ {
		store := feed.NewStore()
		e := startEngine(t, store, failing, cfg, seed)

		post, err := store.CreatePost(human, "许妍 look at this", nil, "")
		require.NoError(t, err)
		e.PostCreated(post)
		e.Wait()

		got, err := store.GetPost(post.ID)
		require.NoError(t, err)
		require.Len(t, got.Comments, 2, "one comment per selected persona")
		require.Equal(t, "persona-1", got.Comments[0].AuthorID)
		for _, c := range got.Comments {
			p, ok := roster.ByID(c.AuthorID)
			require.True(t, ok)
			require.Contains(t, roster.Replies(p.Personality), c.Body)
			require.Empty(t, c.ReplyTo)
		}
	}
}

func TestEngine_CommentReply(t *testing.T) {
	gen := &fakeGenerator{GenFunc: func(_ context.Context, p reply.Prompt) (string, error) {
		return "  reply from " + p.Persona.Name, nil
	}}
	cfg := instantConfig()
	cfg.CommentOdds = Odds{}

	store := feed.NewStore()
	e := startEngine(t, store, gen, cfg, 1)

	post, err := store.CreatePost(human, "episode 5", []string{"a.jpg"}, "")
	require.NoError(t, err)
	for i := 0; i < 11; i++ {
		_, err := store.AddComment(post.ID, human, "filler", "")
		require.NoError(t, err)
	}
	c, err := store.AddComment(post.ID, human, "what do you think, 沈皓明?", "")
	require.NoError(t, err)

	e.CommentAdded(post.ID, c)
	e.Wait()

	got, err := store.GetPost(post.ID)
	require.NoError(t, err)
	last := got.Comments[len(got.Comments)-1]
	require.Equal(t, "persona-2", last.AuthorID)
	require.Equal(t, "reply from 沈皓明", last.Body)
	require.Equal(t, "我", last.ReplyTo)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "what do you think, 沈皓明?", calls[0].Text)
	require.Equal(t, "episode 5", calls[0].PostBody)
	require.Len(t, calls[0].History, reply.MaxHistory)
	require.Equal(t, c.Body, calls[0].History[reply.MaxHistory-1].Text)
	require.NotEmpty(t, calls[0].ImageHints)
}

func TestEngine_CommentTriggerRules(t *testing.T) {
	tests := []struct {
		name    string
		author  models.Author
		replyTo string
	}{
		{name: "PersonaAuthor", author: models.Author{ID: "persona-1", Name: "许妍"}},
		{name: "ReplyToSelf", author: human, replyTo: "我"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) { return "hi", nil }}
			store := feed.NewStore()
			e := startEngine(t, store, gen, instantConfig(), 3)

			post, err := store.CreatePost(human, "hello", nil, "")
			require.NoError(t, err)
			c, err := store.AddComment(post.ID, tt.author, "hey", tt.replyTo)
			require.NoError(t, err)

			e.CommentAdded(post.ID, c)
			e.Wait()

			got, err := store.GetPost(post.ID)
			require.NoError(t, err)
			require.Len(t, got.Comments, 1)
			require.Empty(t, got.Likes)
			require.Empty(t, gen.Calls())
		})
	}
}

func TestEngine_OrphanedPost(t *testing.T) {
	gen := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) { return "hi", nil }}
	cfg := instantConfig()
	cfg.PostDelay = Window{Min: 50 * time.Millisecond, Max: 60 * time.Millisecond}
	cfg.CommentProbability = 1

	store := feed.NewStore()
	e := startEngine(t, store, gen, cfg, 4)

	post, err := store.CreatePost(human, "soon gone", nil, "")
	require.NoError(t, err)
	e.PostCreated(post)
	require.NoError(t, store.DeletePost(post.ID, human.ID))

	e.Wait()
	require.Zero(t, store.Count())
	require.Empty(t, gen.Calls())
	_, err = store.GetPost(post.ID)
	require.ErrorIs(t, err, feed.ErrNotFound)
}

func TestEngine_OrphanedComment(t *testing.T) {
	gen := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) { return "hi", nil }}
	cfg := instantConfig()
	cfg.CommentDelay = Window{Min: 50 * time.Millisecond, Max: 60 * time.Millisecond}

	store := feed.NewStore()
	e := startEngine(t, store, gen, cfg, 5)

	post, err := store.CreatePost(human, "still here", nil, "")
	require.NoError(t, err)
	c, err := store.AddComment(post.ID, human, "never mind", "")
	require.NoError(t, err)
	e.CommentAdded(post.ID, c)
	_, err = store.DeleteComment(post.ID, 0, human.ID)
	require.NoError(t, err)

	e.Wait()
	got, err := store.GetPost(post.ID)
	require.NoError(t, err)
	require.Empty(t, got.Comments)
	require.Empty(t, gen.Calls())
}

func TestEngine_LikeIsIdempotent(t *testing.T) {
	gen := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) {
		return "", errors.New("should not be called")
	}}
	cfg := instantConfig()
	cfg.CommentProbability = 0
	cfg.PostOdds = Odds{}

	store := feed.NewStore()
	e := startEngine(t, store, gen, cfg, 6)

	post, err := store.CreatePost(human, "方蕾 like this please", nil, "")
	require.NoError(t, err)
	fang, _ := persona.Default().ByID("persona-3")
	_, err = store.Like(post.ID, fang.Author())
	require.NoError(t, err)

	e.PostCreated(post)
	e.PostCreated(post)
	e.Wait()

	got, err := store.GetPost(post.ID)
	require.NoError(t, err)
	require.Len(t, got.Likes, 1)
	require.Equal(t, "persona-3", got.Likes[0].UserID)
	require.Empty(t, got.Comments)
	require.Empty(t, gen.Calls())
}

func TestEngine_MarkerImageForcesComment(t *testing.T) {
	gen := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) { return "好美的海", nil }}
	cfg := instantConfig()
	cfg.CommentProbability = 0
	cfg.PostOdds = Odds{}

	store := feed.NewStore()
	e := startEngine(t, store, gen, cfg, 7)

	post, err := store.CreatePost(human, "", []string{"/images/sea.jpg"}, "")
	require.NoError(t, err)
	e.PostCreated(post)
	e.Wait()

	got, err := store.GetPost(post.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	require.Equal(t, "好美的海", got.Comments[0].Body)
	require.Empty(t, got.Likes)
	require.Contains(t, gen.Calls()[0].ImageHints, cfg.MarkerHint)
}

func TestEngine_ReplyProbabilityZero(t *testing.T) {
	gen := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) { return "hi", nil }}
	cfg := instantConfig()
	cfg.ReplyProbability = 0

	store := feed.NewStore()
	e := startEngine(t, store, gen, cfg, 8)

	post, err := store.CreatePost(human, "quiet", nil, "")
	require.NoError(t, err)
	e.PostCreated(post)
	e.Wait()

	got, err := store.GetPost(post.ID)
	require.NoError(t, err)
	require.Empty(t, got.Comments)
	require.Empty(t, got.Likes)
}

func TestEngine_ClosedDropsNewReactions(t *testing.T) {
	gen := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) { return "hi", nil }}
	store := feed.NewStore()
	e := startEngine(t, store, gen, instantConfig(), 9)

	post, err := store.CreatePost(human, "late", nil, "")
	require.NoError(t, err)
	e.Close()
	e.PostCreated(post)
	e.Wait()

	got, err := store.GetPost(post.ID)
	require.NoError(t, err)
	require.Empty(t, got.Comments)
	require.Empty(t, got.Likes)
}

func TestEngine_GeneratorPanicIsRecovered(t *testing.T) {
	gen := &fakeGenerator{GenFunc: func(context.Context, reply.Prompt) (string, error) { panic("boom") }}
	cfg := instantConfig()
	cfg.CommentProbability = 1
	cfg.PostOdds = Odds{}

	store := feed.NewStore()
	e := startEngine(t, store, gen, cfg, 10)

	post, err := store.CreatePost(human, "panic", nil, "")
	require.NoError(t, err)
	e.PostCreated(post)
	e.PostCreated(post)
	e.Wait()

	require.Len(t, gen.Calls(), 2)
}
