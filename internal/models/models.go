package models

import (
	"strings"
	"time"
)

// Post represents a single moment in the feed.
type Post struct {
	ID         int64     `json:"id"`
	AuthorID   string    `json:"userId"`
	AuthorName string    `json:"username"`
	Avatar     string    `json:"avatar"`
	Body       string    `json:"content"`
	Location   string    `json:"location,omitempty"`
	Images     []string  `json:"images"`
	CreatedAt  int64     `json:"timestamp"` // milliseconds since epoch
	Likes      []Like    `json:"likes"`
	Comments   []Comment `json:"comments"`
}

// Like is a single user's like on a post. A post holds at most one like per UserID.
type Like struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"timestamp"`
}

// Comment is an entry in a post's thread. ID is unique across the feed.
// ReplyTo holds the display name of the author being addressed, not an id.
type Comment struct {
	ID         int64  `json:"id"`
	AuthorID   string `json:"userId"`
	AuthorName string `json:"username"`
	Body       string `json:"content"`
	ReplyTo    string `json:"replyTo,omitempty"`
	CreatedAt  int64  `json:"timestamp"`
}

// Author identifies whoever creates a post, like or comment.
type Author struct {
	ID     string
	Name   string
	Avatar string
}

// Snapshot is a whole-feed JSON payload stored under a single key by the SQL snapshot backend.
type Snapshot struct {
	Key       string    `gorm:"primaryKey;size:191" json:"key"`
	Payload   []byte    `gorm:"not null" json:"-"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Time returns the creation time of the post.
func (p Post) Time() time.Time {
	return time.UnixMilli(p.CreatedAt)
}

// HasImage reports whether any image reference contains marker.
func (p Post) HasImage(marker string) bool {
	if marker == "" {
		return false
	}
	for _, img := range p.Images {
		if strings.Contains(img, marker) {
			return true
		}
	}
	return false
}

// CommentIndex returns the position of the comment with the given id, or -1.
func (p Post) CommentIndex(id int64) int {
	for i, c := range p.Comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the post.
func (p Post) Clone() Post {
	out := p
	out.Images = append([]string{}, p.Images...)
	out.Likes = append([]Like{}, p.Likes...)
	out.Comments = append([]Comment{}, p.Comments...)
	return out
}
