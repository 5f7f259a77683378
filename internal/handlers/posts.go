package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/thumbsup/internal/middleware"
	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

type PostHandler struct {
	db  *gorm.DB
	svc *votes.Service
	log *zap.Logger
}

func NewPostHandler(db *gorm.DB, svc *votes.Service, log *zap.Logger) *PostHandler {
	return &PostHandler{db: db, svc: svc, log: log}
}

// GetPosts lists posts, highest cached vote count first
func (h *PostHandler) GetPosts(c *gin.Context) {
	posts := make([]models.Post, 0)
	if err := h.db.WithContext(c.Request.Context()).Order("vote_count desc, created_at desc").Find(&posts).Error; err != nil {
		respondError(c, h.log, err, "Failed to fetch posts")
		return
	}
	c.JSON(http.StatusOK, posts)
}

// GetPost returns a single post by ID with its vote statistics
func (h *PostHandler) GetPost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var post models.Post
	if err := h.db.WithContext(c.Request.Context()).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		respondError(c, h.log, err, "Failed to fetch post")
		return
	}

	summary, err := h.svc.Aggregator().Summarize(c.Request.Context(), post.Ref())
	if err != nil {
		respondError(c, h.log, err, "Failed to fetch votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post, "votes": summary})
}

// CreatePost creates a new post (PROTECTED - requires authentication)
func (h *PostHandler) CreatePost(c *gin.Context) {
	var input models.CreatePostRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	author, ok := middleware.Voter(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	post := models.Post{
		Title:  input.Title,
		Body:   input.Body,
		Image:  input.Image,
		UserID: author.ID,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&post).Error; err != nil {
		respondError(c, h.log, err, "Failed to create post")
		return
	}
	c.JSON(http.StatusCreated, post)
}

// DeletePost deletes a post, its comments and every vote on either
// (PROTECTED - requires ownership)
func (h *PostHandler) DeletePost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	author, ok := middleware.Voter(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var post models.Post
	if err := h.db.WithContext(c.Request.Context()).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		respondError(c, h.log, err, "Failed to fetch post")
		return
	}

	// Check ownership
	if post.UserID != author.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own posts"})
		return
	}

	if err := destroyPostComments(c.Request.Context(), h.db, h.svc, post.ID); err != nil {
		respondError(c, h.log, err, "Failed to delete comments")
		return
	}
	if err := h.svc.DestroyOwner(c.Request.Context(), post.Ref()); err != nil {
		respondError(c, h.log, err, "Failed to delete post")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}
