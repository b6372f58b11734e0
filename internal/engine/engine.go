// Package engine schedules persona reactions to new posts and comments.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/sujalbistaa/moments/internal/feed"
	"github.com/sujalbistaa/moments/internal/models"
	"github.com/sujalbistaa/moments/internal/persona"
	"github.com/sujalbistaa/moments/internal/reply"
)

// Window is a [Min, Max) range a delay is drawn from.
type Window struct {
	Min time.Duration
	Max time.Duration
}

func (w Window) draw(r Rand) time.Duration {
	if w.Max <= w.Min {
		return max(w.Min, 0)
	}
	return w.Min + time.Duration(r.Int64N(int64(w.Max-w.Min)))
}

type Config struct {
	ReplyProbability float64

	PostDelay    Window
	CommentDelay Window
	BetweenDelay Window

	PostOdds    Odds
	CommentOdds Odds

	// CommentProbability is the chance a persona comments instead of liking
	// when reacting to a post; ReplyCommentProbability is the same for
	// reactions to a comment.
	CommentProbability      float64
	ReplyCommentProbability float64

	// MarkerImage forces a comment when any post image contains it.
	MarkerImage string
	MarkerHint  string

	Workers   int
	QueueSize int
}

func DefaultConfig() Config {
	return Config{
		ReplyProbability: 1,
		PostDelay:        Window{Min: 200 * time.Millisecond, Max: 400 * time.Millisecond},
		CommentDelay:     Window{Min: 200 * time.Millisecond, Max: 400 * time.Millisecond},
		BetweenDelay:     Window{Min: 200 * time.Millisecond, Max: 600 * time.Millisecond},
		PostOdds:         Odds{Mention: 0.5, ReplyTo: 0.3, Author: 0, History: 0.3, Random: 0.5},
		CommentOdds:      Odds{Mention: 0.3, ReplyTo: 0.3, Author: 0, History: 0.3, Random: 0.5},

		CommentProbability:      0.5,
		ReplyCommentProbability: 1,

		MarkerImage: "sea.jpg",
		MarkerHint:  "One of the photos shows the sea.",
		Workers:     4,
		QueueSize:   64,
	}
}

type task struct {
	postID    int64
	commentID int64 // zero for post reactions
}

// Engine reacts to feed events on behalf of the personas. Scheduled tasks
// wait out their delay on a timer, then queue for a bounded pool of workers
// started by Run.
type Engine struct {
	Logger *slog.Logger

	store     *feed.Store
	roster    *persona.Roster
	generator reply.Generator
	canned    *reply.Canned
	cfg       Config
	rnd       Rand

	queue   chan task
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

type Option func(*Engine)

// WithRand replaces the random source. Tests use a seeded one.
func WithRand(r Rand) Option {
	return func(e *Engine) { e.rnd = &lockedRand{r: r} }
}

func New(logger *slog.Logger, store *feed.Store, roster *persona.Roster, generator reply.Generator, canned *reply.Canned, cfg Config, opts ...Option) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers
	}
	e := &Engine{
		Logger:    logger.With("component", "engine"),
		store:     store,
		roster:    roster,
		generator: generator,
		canned:    canned,
		cfg:       cfg,
		rnd:       &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))},
		queue:     make(chan task, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PostCreated schedules persona reactions to a new post.
func (e *Engine) PostCreated(post models.Post) {
	e.schedule(task{postID: post.ID}, e.cfg.PostDelay)
}

// CommentAdded schedules persona replies to a comment. Comments written by a
// persona, or addressed to their own author, trigger nothing.
func (e *Engine) CommentAdded(postID int64, c models.Comment) {
	if e.roster.IsPersona(c.AuthorID) {
		return
	}
	if c.ReplyTo != "" && c.ReplyTo == c.AuthorName {
		return
	}
	e.schedule(task{postID: postID, commentID: c.ID}, e.cfg.CommentDelay)
}

func (e *Engine) schedule(t task, w Window) {
	if e.rnd.Float64() >= e.cfg.ReplyProbability {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.pending.Add(1)

	delay := w.draw(e.rnd)
	e.Logger.Debug("Reaction scheduled", "post_id", t.postID, "comment_id", t.commentID, "delay", delay)
	time.AfterFunc(delay, func() {
		select {
		case e.queue <- t:
		case <-e.done:
			e.pending.Done()
		}
	})
}

// Run processes queued reactions until ctx is cancelled, running at most
// Config.Workers of them at once.
func (e *Engine) Run(ctx context.Context) error {
	semaphore := make(chan struct{}, e.cfg.Workers)
	var running sync.WaitGroup
	defer running.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-e.queue:
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				e.pending.Done()
				return nil
			}

			running.Add(1)
			go func() {
				defer func() {
					<-semaphore
					running.Done()
					e.pending.Done()
				}()
				e.process(ctx, t)
			}()
		}
	}
}

// Close stops accepting new reactions. Timers that have not fired yet are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
}

// Wait blocks until every scheduled reaction has run or been dropped. Run
// must be active for queued reactions to drain, so on shutdown call Close,
// then Wait, then cancel Run's context.
func (e *Engine) Wait() {
	e.pending.Wait()
}

func (e *Engine) process(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("Reaction panicked", "post_id", t.postID, "comment_id", t.commentID, "panic", r)
		}
	}()

	post, trigger, ok := e.resolve(t)
	if !ok {
		return
	}

	odds, commentProbability := e.cfg.PostOdds, e.cfg.CommentProbability
	replyTo := ""
	if t.commentID != 0 {
		odds, commentProbability = e.cfg.CommentOdds, e.cfg.ReplyCommentProbability
		replyTo = trigger.AuthorName
	}
	if post.HasImage(e.cfg.MarkerImage) {
		commentProbability = 1
	}

	prior := post.Comments
	if t.commentID != 0 {
		prior = post.Comments[:post.CommentIndex(t.commentID)]
	}
	selected, reason := Select(e.roster, Trigger{
		Text:     trigger.Body,
		ReplyTo:  trigger.ReplyTo,
		AuthorID: post.AuthorID,
		History:  prior,
	}, odds, e.rnd)
	e.Logger.Debug("Personas selected", "post_id", t.postID, "reason", reason,
		"personas", lo.Map(selected, func(p persona.Persona, _ int) string { return p.Name }))

	for i, p := range selected {
		if i > 0 {
			if !sleep(ctx, e.cfg.BetweenDelay.draw(e.rnd)) {
				return
			}
			if post, _, ok = e.resolve(t); !ok {
				return
			}
		}

		if e.rnd.Float64() >= commentProbability {
			e.like(post, p)
			continue
		}
		if !e.comment(ctx, post, trigger.Body, p, replyTo) {
			return
		}
	}
}

// resolve re-reads the task's post and triggering comment. For post tasks the
// trigger is the post itself, expressed as a comment by its author.
func (e *Engine) resolve(t task) (models.Post, models.Comment, bool) {
	post, err := e.store.GetPost(t.postID)
	if err != nil {
		abortedTotal.Inc()
		e.Logger.Debug("Reaction dropped, post is gone", "post_id", t.postID)
		return models.Post{}, models.Comment{}, false
	}
	if t.commentID == 0 {
		return post, models.Comment{AuthorID: post.AuthorID, AuthorName: post.AuthorName, Body: post.Body}, true
	}

	idx := post.CommentIndex(t.commentID)
	if idx < 0 {
		abortedTotal.Inc()
		e.Logger.Debug("Reaction dropped, comment is gone", "post_id", t.postID, "comment_id", t.commentID)
		return models.Post{}, models.Comment{}, false
	}
	return post, post.Comments[idx], true
}

func (e *Engine) like(post models.Post, p persona.Persona) {
	added, err := e.store.Like(post.ID, p.Author())
	if err != nil {
		if errors.Is(err, feed.ErrNotFound) {
			abortedTotal.Inc()
			return
		}
		e.Logger.Error("Failed to add persona like", "post_id", post.ID, "persona", p.ID, "error", err)
		return
	}
	if added {
		reactionsTotal.WithLabelValues("like").Inc()
	}
}

// comment appends one persona comment and reports whether the post still exists.
func (e *Engine) comment(ctx context.Context, post models.Post, text string, p persona.Persona, replyTo string) bool {
	prompt := reply.Prompt{
		Persona:    p,
		PostBody:   post.Body,
		Text:       text,
		ImageHints: e.imageHints(post),
		History:    history(post.Comments),
	}

	body, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		fallbacksTotal.Inc()
		e.Logger.Warn("Reply generation failed, using canned reply", "post_id", post.ID, "persona", p.ID, "error", err)
		body = e.canned.Pick(p.Personality)
	}
	body = clip(body, feed.MaxBodyLength)

	_, err = e.store.AddComment(post.ID, p.Author(), body, replyTo)
	if errors.Is(err, feed.ErrNotFound) {
		abortedTotal.Inc()
		return false
	}
	if err != nil {
		e.Logger.Error("Failed to add persona comment", "post_id", post.ID, "persona", p.ID, "error", err)
		return true
	}
	reactionsTotal.WithLabelValues("comment").Inc()
	return true
}

func (e *Engine) imageHints(post models.Post) []string {
	if len(post.Images) == 0 {
		return nil
	}
	hints := []string{fmt.Sprintf("The moment includes %d photo(s).", len(post.Images))}
	if post.HasImage(e.cfg.MarkerImage) && e.cfg.MarkerHint != "" {
		hints = append(hints, e.cfg.MarkerHint)
	}
	return hints
}

func history(comments []models.Comment) []reply.Message {
	recent := comments[max(len(comments)-reply.MaxHistory, 0):]
	return lo.Map(recent, func(c models.Comment, _ int) reply.Message {
		return reply.Message{Author: c.AuthorName, Text: c.Body}
	})
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type lockedRand struct {
	mu sync.Mutex
	r  Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Int64N(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int64N(n)
}
