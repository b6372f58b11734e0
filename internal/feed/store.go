package feed

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sujalbistaa/moments/internal/models"
)

const (
	MaxBodyLength = 500
	MaxImages     = 9
)

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

// Store is the authoritative in-memory collection of posts. All operations
// run to completion under a single lock, so a cascade delete never
// interleaves with another mutation of the same post.
type Store struct {
	mu            sync.RWMutex
	posts         map[int64]*models.Post
	nextID        int64
	nextCommentID int64
	now           func() time.Time

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		posts:  make(map[int64]*models.Post),
		nextID: 1,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePost validates and appends a new post. Body is stored trimmed.
func (s *Store) CreatePost(author models.Author, body string, images []string, location string) (models.Post, error) {
	return s.createAt(author, body, images, location, s.now())
}

// Seed creates a post with an explicit creation time.
func (s *Store) Seed(author models.Author, body string, images []string, createdAt time.Time) (models.Post, error) {
	return s.createAt(author, body, images, "", createdAt)
}

func (s *Store) createAt(author models.Author, body string, images []string, location string, at time.Time) (models.Post, error) {
	body = strings.TrimSpace(body)
	if body == "" && len(images) == 0 {
		return models.Post{}, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return models.Post{}, fmt.Errorf("%w: content must not exceed %d characters", ErrValidation, MaxBodyLength)
	}
	if len(images) > MaxImages {
		return models.Post{}, fmt.Errorf("%w: at most %d images allowed", ErrValidation, MaxImages)
	}

	s.mu.Lock()
	p := &models.Post{
		ID:         s.nextID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Avatar:     author.Avatar,
		Body:       body,
		Location:   strings.TrimSpace(location),
		Images:     append([]string{}, images...),
		CreatedAt:  at.UnixMilli(),
		Likes:      []models.Like{},
		Comments:   []models.Comment{},
	}
	s.nextID++
	s.posts[p.ID] = p
	out := p.Clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventPostCreated, PostID: out.ID, Data: out})
	return out, nil
}

// ListPosts returns a snapshot of all posts, newest first.
func (s *Store) ListPosts() []models.Post {
	s.mu.RLock()
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Post) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// Count returns the number of posts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// GetPost returns a copy of the post.
func (s *Store) GetPost(id int64) (models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	return p.Clone(), nil
}

// DeletePost removes a post together with its likes and comments.
func (s *Store) DeletePost(id int64, requesterID string) error {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if p.AuthorID != requesterID {
		s.mu.Unlock()
		return fmt.Errorf("%w: post %d belongs to %s", ErrPermission, id, p.AuthorID)
	}
	delete(s.posts, id)
	s.mu.Unlock()

	s.emit(Event{Type: EventPostDeleted, PostID: id})
	return nil
}

// ToggleLike adds the user's like, or removes it if already present.
func (s *Store) ToggleLike(id int64, user models.Author) (LikeResult, error) {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok {
		s.mu.Unlock()
		return LikeResult{}, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}

	var res LikeResult
	if i := slices.IndexFunc(p.Likes, func(l models.Like) bool { return l.UserID == user.ID }); i >= 0 {
		p.Likes = slices.Delete(p.Likes, i, i+1)
	} else {
		p.Likes = append(p.Likes, models.Like{UserID: user.ID, Username: user.Name, CreatedAt: s.now().UnixMilli()})
		res.Liked = true
	}
	res.LikesCount = len(p.Likes)
	s.mu.Unlock()

	s.emit(Event{Type: EventLikeChanged, PostID: id, Data: likeEvent{UserID: user.ID, LikeResult: res}})
	return res, nil
}

// Like adds the user's like unless it is already present. It never removes a like.
func (s *Store) Like(id int64, user models.Author) (bool, error) {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if slices.ContainsFunc(p.Likes, func(l models.Like) bool { return l.UserID == user.ID }) {
		s.mu.Unlock()
		return false, nil
	}
	p.Likes = append(p.Likes, models.Like{UserID: user.ID, Username: user.Name, CreatedAt: s.now().UnixMilli()})
	res := LikeResult{Liked: true, LikesCount: len(p.Likes)}
	s.mu.Unlock()

	s.emit(Event{Type: EventLikeChanged, PostID: id, Data: likeEvent{UserID: user.ID, LikeResult: res}})
	return true, nil
}

type likeEvent struct {
	UserID string `json:"userId"`
	LikeResult
}

// AddComment appends a comment to the post's thread.
func (s *Store) AddComment(id int64, author models.Author, body, replyTo string) (models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Comment{}, fmt.Errorf("%w: comment must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return models.Comment{}, fmt.Errorf("%w: comment must not exceed %d characters", ErrValidation, MaxBodyLength)
	}

	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok {
		s.mu.Unlock()
		return models.Comment{}, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	s.nextCommentID++
	c := models.Comment{
		ID:         s.nextCommentID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Body:       body,
		ReplyTo:    strings.TrimSpace(replyTo),
		CreatedAt:  s.now().UnixMilli(),
	}
	p.Comments = append(p.Comments, c)
	s.mu.Unlock()

	s.emit(Event{Type: EventCommentAdded, PostID: id, Data: c})
	return c, nil
}

// DeleteComment removes the comment at index and every later comment whose
// ReplyTo equals the removed comment's author name. Matching is by display
// name, so comments addressed to a different author who shares that name are
// removed as well.
func (s *Store) DeleteComment(id int64, index int, requesterID string) (int, error) {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if index < 0 || index >= len(p.Comments) {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: comment %d on post %d", ErrNotFound, index, id)
	}
	target := p.Comments[index]
	if target.AuthorID != requesterID {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: comment %d on post %d belongs to %s", ErrPermission, index, id, target.AuthorID)
	}

	kept := make([]models.Comment, 0, len(p.Comments))
	deleted := make([]int64, 0, 1)
	for i, c := range p.Comments {
		if i == index || (i > index && c.ReplyTo == target.AuthorName) {
			deleted = append(deleted, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	p.Comments = kept
	s.mu.Unlock()

	s.emit(Event{Type: EventCommentsDeleted, PostID: id, Data: deleted})
	return len(deleted), nil
}

// ClearInteractions removes every comment and like from every post and
// returns the number of comments removed.
func (s *Store) ClearInteractions() int {
	s.mu.Lock()
	cleared := 0
	for _, p := range s.posts {
		cleared += len(p.Comments)
		p.Comments = []models.Comment{}
		p.Likes = []models.Like{}
	}
	s.mu.Unlock()

	s.emit(Event{Type: EventCleared, Data: cleared})
	return cleared
}

// Restore replaces the store contents with posts and advances the id
// generators past the highest ids present.
func (s *Store) Restore(posts []models.Post) {
	s.mu.Lock()
	s.posts = make(map[int64]*models.Post, len(posts))
	s.nextID = 1
	s.nextCommentID = 0
	for _, p := range posts {
		cp := p.Clone()
		if cp.Likes == nil {
			cp.Likes = []models.Like{}
		}
		if cp.Comments == nil {
			cp.Comments = []models.Comment{}
		}
		s.posts[cp.ID] = &cp
		s.nextID = max(s.nextID, cp.ID+1)
		for _, c := range cp.Comments {
			s.nextCommentID = max(s.nextCommentID, c.ID)
		}
	}
	n := len(s.posts)
	s.mu.Unlock()

	s.emit(Event{Type: EventRestored, Data: n})
}
