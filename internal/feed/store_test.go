package feed

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/moments/internal/models"
)

var (
	me = models.Author{ID: "user", Name: "我"}
	p1 = models.Author{ID: "persona-1", Name: "许妍"}
	p2 = models.Author{ID: "persona-2", Name: "沈皓明"}
)

func testClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestStore_CreatePost(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		images   []string
		wantBody string
		wantErr  error
	}{
		{name: "OK", body: "hello", wantBody: "hello"},
		{name: "Trimmed", body: "  hello \n", wantBody: "hello"},
		{name: "MaxLength", body: strings.Repeat("a", MaxBodyLength), wantBody: strings.Repeat("a", MaxBodyLength)},
		{name: "MaxLengthRunes", body: strings.Repeat("好", MaxBodyLength), wantBody: strings.Repeat("好", MaxBodyLength)},
		{name: "ImagesOnly", body: "  ", images: []string{"a.png"}, wantBody: ""},
		{name: "Empty", body: "   ", wantErr: ErrValidation},
		{name: "TooLong", body: strings.Repeat("a", MaxBodyLength+1), wantErr: ErrValidation},
		{name: "TooManyImages", body: "x", images: make([]string, MaxImages+1), wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(WithClock(testClock()))
			p, err := s.CreatePost(me, tt.body, tt.images, "")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Zero(t, s.Count())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantBody, p.Body)
			require.Equal(t, me.ID, p.AuthorID)
			require.Equal(t, me.Name, p.AuthorName)
			require.NotZero(t, p.ID)
			require.NotNil(t, p.Likes)
			require.NotNil(t, p.Comments)
		})
	}
}

func TestStore_ListPostsNewestFirst(t *testing.T) {
	s := NewStore(WithClock(testClock()))
	first, err := s.CreatePost(me, "first", nil, "")
	require.NoError(t, err)
	second, err := s.CreatePost(me, "second", nil, "")
	require.NoError(t, err)
	old, err := s.Seed(p1, "seeded", nil, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	got := s.ListPosts()
	require.Len(t, got, 3)
	require.Equal(t, []int64{second.ID, first.ID, old.ID}, []int64{got[0].ID, got[1].ID, got[2].ID})

	// snapshot isolation
	got[0].Body = "mutated"
	fresh, err := s.GetPost(second.ID)
	require.NoError(t, err)
	require.Equal(t, "second", fresh.Body)
}

func TestStore_DeletePost(t *testing.T) {
	s := NewStore()
	p, err := s.CreatePost(me, "mine", nil, "")
	require.NoError(t, err)

	err = s.DeletePost(p.ID, p1.ID)
	require.ErrorIs(t, err, ErrPermission)
	_, err = s.GetPost(p.ID)
	require.NoError(t, err)

	require.ErrorIs(t, s.DeletePost(p.ID+100, me.ID), ErrNotFound)

	require.NoError(t, s.DeletePost(p.ID, me.ID))
	_, err = s.GetPost(p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ToggleLike(t *testing.T) {
	s := NewStore()
	p, err := s.CreatePost(me, "like me", nil, "")
	require.NoError(t, err)
	_, err = s.Like(p.ID, p1)
	require.NoError(t, err)

	res, err := s.ToggleLike(p.ID, me)
	require.NoError(t, err)
	require.Equal(t, LikeResult{Liked: true, LikesCount: 2}, res)

	res, err = s.ToggleLike(p.ID, me)
	require.NoError(t, err)
	require.Equal(t, LikeResult{Liked: false, LikesCount: 1}, res)

	_, err = s.ToggleLike(p.ID+1, me)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LikeIsIdempotent(t *testing.T) {
	s := NewStore()
	p, err := s.CreatePost(me, "x", nil, "")
	require.NoError(t, err)

	added, err := s.Like(p.ID, p1)
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.Like(p.ID, p1)
	require.NoError(t, err)
	require.False(t, added)

	got, err := s.GetPost(p.ID)
	require.NoError(t, err)
	require.Len(t, got.Likes, 1)
}

func TestStore_AddComment(t *testing.T) {
	s := NewStore()
	p, err := s.CreatePost(me, "x", nil, "")
	require.NoError(t, err)

	c, err := s.AddComment(p.ID, me, "  hi  ", "")
	require.NoError(t, err)
	require.Equal(t, "hi", c.Body)
	require.NotZero(t, c.ID)

	c2, err := s.AddComment(p.ID, p1, "hey", me.Name)
	require.NoError(t, err)
	require.Greater(t, c2.ID, c.ID)
	require.Equal(t, me.Name, c2.ReplyTo)

	_, err = s.AddComment(p.ID, me, " ", "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = s.AddComment(p.ID+1, me, "hi", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func commentsOf(t *testing.T, s *Store, id int64) []string {
	t.Helper()
	p, err := s.GetPost(id)
	require.NoError(t, err)
	out := make([]string, len(p.Comments))
	for i, c := range p.Comments {
		out[i] = c.Body
	}
	return out
}

func TestStore_DeleteCommentCascade(t *testing.T) {
	type comment struct {
		author  models.Author
		body    string
		replyTo string
	}
	tests := []struct {
		name        string
		comments    []comment
		index       int
		requester   string
		wantDeleted int
		wantLeft    []string
		wantErr     error
	}{
		{
			// index 2 replies to P1, not to "我", so it survives.
			name: "ReplyChain",
			comments: []comment{
				{me, "c0", ""},
				{p1, "c1", me.Name},
				{me, "c2", p1.Name},
			},
			index:       0,
			requester:   me.ID,
			wantDeleted: 2,
			wantLeft:    []string{"c2"},
		},
		{
			name: "EarlierRepliesKept",
			comments: []comment{
				{p1, "c0", me.Name},
				{me, "c1", ""},
				{p2, "c2", me.Name},
				{p1, "c3", ""},
				{p1, "c4", me.Name},
			},
			index:       1,
			requester:   me.ID,
			wantDeleted: 3,
			wantLeft:    []string{"c0", "c3"},
		},
		{
			name: "NoReplies",
			comments: []comment{
				{me, "c0", ""},
				{p1, "c1", ""},
			},
			index:       0,
			requester:   me.ID,
			wantDeleted: 1,
			wantLeft:    []string{"c1"},
		},
		{
			name: "NotOwner",
			comments: []comment{
				{me, "c0", ""},
				{p1, "c1", me.Name},
			},
			index:     1,
			requester: me.ID,
			wantErr:   ErrPermission,
			wantLeft:  []string{"c0", "c1"},
		},
		{
			name:      "IndexOutOfRange",
			comments:  []comment{{me, "c0", ""}},
			index:     3,
			requester: me.ID,
			wantErr:   ErrNotFound,
			wantLeft:  []string{"c0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			p, err := s.CreatePost(me, "post", nil, "")
			require.NoError(t, err)
			for _, c := range tt.comments {
				_, err := s.AddComment(p.ID, c.author, c.body, c.replyTo)
				require.NoError(t, err)
			}

			n, err := s.DeleteComment(p.ID, tt.index, tt.requester)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.wantDeleted, n)
			}
			if diff := cmp.Diff(tt.wantLeft, commentsOf(t, s, p.ID)); diff != "" {
				t.Errorf("remaining comments (-want +got):\n%s", diff)
			}
		})
	}
}

// Two different authors share the display name "我". Deleting the first
// author's comment also removes the reply addressed to the second one,
// because the cascade matches on names.
func TestStore_DeleteCommentNameCollision(t *testing.T) {
	s := NewStore()
	other := models.Author{ID: "user-2", Name: me.Name}
	p, err := s.CreatePost(me, "post", nil, "")
	require.NoError(t, err)

	for _, c := range []struct {
		author  models.Author
		body    string
		replyTo string
	}{
		{me, "mine", ""},
		{other, "theirs", ""},
		{p1, "reply to theirs", me.Name},
	} {
		_, err := s.AddComment(p.ID, c.author, c.body, c.replyTo)
		require.NoError(t, err)
	}

	n, err := s.DeleteComment(p.ID, 0, me.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"theirs"}, commentsOf(t, s, p.ID))
}

func TestStore_ClearInteractions(t *testing.T) {
	s := NewStore()
	a, _ := s.CreatePost(me, "a", nil, "")
	b, _ := s.CreatePost(p1, "b", nil, "")
	_, _ = s.AddComment(a.ID, p1, "x", "")
	_, _ = s.AddComment(b.ID, me, "y", "")
	_, _ = s.AddComment(b.ID, p2, "z", me.Name)
	_, _ = s.Like(a.ID, p2)

	require.Equal(t, 3, s.ClearInteractions())
	for _, p := range s.ListPosts() {
		require.Empty(t, p.Comments)
		require.Empty(t, p.Likes)
	}
}

func TestStore_RestoreAdvancesIDs(t *testing.T) {
	s := NewStore()
	s.Restore([]models.Post{
		{ID: 41, AuthorID: me.ID, Body: "old", Comments: []models.Comment{{ID: 9, Body: "c"}}},
		{ID: 3, AuthorID: p1.ID, Body: "older"},
	})
	require.Equal(t, 2, s.Count())

	p, err := s.CreatePost(me, "new", nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(42), p.ID)

	c, err := s.AddComment(3, me, "hi", "")
	require.NoError(t, err)
	require.Equal(t, int64(10), c.ID)

	restored, err := s.GetPost(3)
	require.NoError(t, err)
	require.NotNil(t, restored.Likes)
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore()
	var got []EventType
	s.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	p, _ := s.CreatePost(me, "x", nil, "")
	_, _ = s.ToggleLike(p.ID, me)
	_, _ = s.AddComment(p.ID, me, "c", "")
	_, _ = s.DeleteComment(p.ID, 0, me.ID)
	_ = s.DeletePost(p.ID, p1.ID) // rejected, no event
	_ = s.DeletePost(p.ID, me.ID)

	require.Equal(t, []EventType{
		EventPostCreated,
		EventLikeChanged,
		EventCommentAdded,
		EventCommentsDeleted,
		EventPostDeleted,
	}, got)
}

func TestStore_ConcurrentComments(t *testing.T) {
	s := NewStore()
	p, err := s.CreatePost(me, "busy", nil, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddComment(p.ID, p1, "c", me.Name)
			_, _ = s.ToggleLike(p.ID, me)
		}()
	}
	wg.Wait()

	got, err := s.GetPost(p.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 50)
	seen := map[int64]bool{}
	for _, c := range got.Comments {
		require.False(t, seen[c.ID])
		seen[c.ID] = true
	}
}
