package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sujalbistaa/moments/internal/feed"
)

// Saver writes the feed to a Store after mutations. Requests that arrive
// while a save is running collapse into one follow-up save.
type Saver struct {
	Logger *slog.Logger

	store    Store
	feed     *feed.Store
	requests chan struct{}
}

func NewSaver(logger *slog.Logger, store Store, f *feed.Store) *Saver {
	s := &Saver{
		Logger:   logger.With("component", "snapshot"),
		store:    store,
		feed:     f,
		requests: make(chan struct{}, 1),
	}
	f.Subscribe(func(feed.Event) { s.Notify() })
	return s
}

// Restore loads the saved feed into the store. It reports how many posts were restored.
func (s *Saver) Restore(ctx context.Context) (int, error) {
	posts, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		return 0, nil
	}
	s.feed.Restore(posts)
	return len(posts), nil
}

// Notify requests a save without blocking.
func (s *Saver) Notify() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Flush saves the current feed immediately.
func (s *Saver) Flush(ctx context.Context) error {
	if err := s.store.Save(ctx, s.feed.ListPosts()); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// Run saves on every request until ctx is cancelled, then writes a final snapshot.
func (s *Saver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.Flush(flushCtx)
		case <-s.requests:
			if err := s.Flush(ctx); err != nil {
				s.Logger.Error("Failed to save snapshot", "error", err)
			}
		}
	}
}
