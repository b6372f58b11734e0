package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/moments/internal/feed"
	"github.com/sujalbistaa/moments/internal/models"
)

// --- Structs for request binding ---
type CreateMomentInput struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Avatar   string   `json:"avatar"`
	Content  string   `json:"content"`
	Location string   `json:"location"`
	Images   []string `json:"images" binding:"max=9"`
}

type LikeInput struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type CommentInput struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Content  string `json:"content" binding:"required"`
	ReplyTo  string `json:"replyTo"`
}

type DeleteInput struct {
	UserID string `json:"userId" binding:"required"`
}

// Reactor is told about new posts and comments so personas can respond.
type Reactor interface {
	PostCreated(post models.Post)
	CommentAdded(postID int64, c models.Comment)
}

// --- Handlers ---
type Env struct {
	Store    *feed.Store
	Engine   Reactor
	Logger   *slog.Logger
	Provider string
	// Human fills in userId and username when a request omits them.
	Human models.Author
	Now   func() time.Time
}

func (e *Env) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "OK",
		"message":      "AI Moments API is running",
		"aiProvider":   e.Provider,
		"timestamp":    e.now().UTC().Format(time.RFC3339),
		"momentsCount": e.Store.Count(),
	})
}

func (e *Env) GetMoments(c *gin.Context) {
	posts := e.Store.ListPosts()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": posts, "count": len(posts)})
}

func (e *Env) CreateMoment(c *gin.Context) {
	var input CreateMomentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid input", err))
		return
	}

	author := e.author(input.UserID, input.Username)
	author.Avatar = input.Avatar
	post, err := e.Store.CreatePost(author, input.Content, input.Images, input.Location)
	if err != nil {
		e.respondError(c, err, "Failed to create moment")
		return
	}
	e.Engine.PostCreated(post)

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Moment published", "data": post})
}

func (e *Env) LikeMoment(c *gin.Context) {
	id, ok := momentID(c)
	if !ok {
		return
	}
	var input LikeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid input", err))
		return
	}

	res, err := e.Store.ToggleLike(id, e.author(input.UserID, input.Username))
	if err != nil {
		e.respondError(c, err, "Failed to update like")
		return
	}

	msg := "Like removed"
	if res.Liked {
		msg = "Liked"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "data": res})
}

func (e *Env) AddComment(c *gin.Context) {
	id, ok := momentID(c)
	if !ok {
		return
	}
	var input CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid input", err))
		return
	}

	comment, err := e.Store.AddComment(id, e.author(input.UserID, input.Username), input.Content, input.ReplyTo)
	if err != nil {
		e.respondError(c, err, "Failed to add comment")
		return
	}
	e.Engine.CommentAdded(id, comment)

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Comment added", "data": comment})
}

func (e *Env) DeleteMoment(c *gin.Context) {
	id, ok := momentID(c)
	if !ok {
		return
	}
	var input DeleteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid input", err))
		return
	}

	if err := e.Store.DeletePost(id, input.UserID); err != nil {
		e.respondError(c, err, "Failed to delete moment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Moment deleted"})
}

func (e *Env) DeleteComment(c *gin.Context) {
	id, ok := momentID(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid comment index", nil))
		return
	}
	var input DeleteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid input", err))
		return
	}

	deleted, err := e.Store.DeleteComment(id, index, input.UserID)
	if err != nil {
		e.respondError(c, err, "Failed to delete comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("Deleted %d comment(s)", deleted),
		"deletedCount": deleted,
	})
}

// ClearComments wipes every comment and like. Used to reset demo data.
func (e *Env) ClearComments(c *gin.Context) {
	cleared := e.Store.ClearInteractions()
	e.Logger.Info("Cleared all interactions", "comments", cleared)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("Cleared %d comment(s)", cleared)})
}

func (e *Env) author(userID, username string) models.Author {
	a := models.Author{ID: strings.TrimSpace(userID), Name: strings.TrimSpace(username)}
	if a.ID == "" {
		a.ID = e.Human.ID
	}
	if a.Name == "" {
		a.Name = e.Human.Name
	}
	return a
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// respondError maps store errors onto HTTP statuses.
func (e *Env) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, feed.ErrValidation):
		c.JSON(http.StatusBadRequest, failure(userMessage(err), nil))
	case errors.Is(err, feed.ErrNotFound):
		c.JSON(http.StatusNotFound, failure("Moment or comment not found", nil))
	case errors.Is(err, feed.ErrPermission):
		c.JSON(http.StatusForbidden, failure("You can only delete your own content", nil))
	default:
		_ = c.Error(err)
		e.Logger.Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, failure(fallback, nil))
	}
}

// userMessage strips the sentinel prefix from a validation error.
func userMessage(err error) string {
	_, msg, found := strings.Cut(err.Error(), feed.ErrValidation.Error()+": ")
	if !found {
		return err.Error()
	}
	return msg
}

func failure(message string, err error) gin.H {
	body := gin.H{"success": false, "message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	return body
}

func momentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, failure("Invalid moment ID", nil))
		return 0, false
	}
	return id, true
}
