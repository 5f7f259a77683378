package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/thumbsup/internal/middleware"
	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

type CommentHandler struct {
	db  *gorm.DB
	svc *votes.Service
	log *zap.Logger
}

func NewCommentHandler(db *gorm.DB, svc *votes.Service, log *zap.Logger) *CommentHandler {
	return &CommentHandler{db: db, svc: svc, log: log}
}

// GetComments returns all comments for a post, newest first
func (h *CommentHandler) GetComments(c *gin.Context) {
	postID, ok := parseID(c, "id")
	if !ok {
		return
	}
	comments := make([]models.Comment, 0)
	err := h.db.WithContext(c.Request.Context()).
		Where("post_id = ?", postID).
		Order("created_at desc").
		Find(&comments).Error
	if err != nil {
		respondError(c, h.log, err, "Failed to fetch comments")
		return
	}
	c.JSON(http.StatusOK, comments)
}

// CreateComment creates a new comment on a post (PROTECTED - requires authentication)
func (h *CommentHandler) CreateComment(c *gin.Context) {
	postID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input models.CreateCommentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	author, ok := middleware.Voter(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	// Verify post exists
	var post models.Post
	if err := h.db.WithContext(c.Request.Context()).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		respondError(c, h.log, err, "Failed to fetch post")
		return
	}

	comment := models.Comment{
		Body:     input.Body,
		PostID:   post.ID,
		AuthorID: author.ID,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&comment).Error; err != nil {
		respondError(c, h.log, err, "Failed to create comment")
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// DeleteComment deletes a comment and every vote on it (PROTECTED - owner only)
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	id, ok := parseID(c, "commentId")
	if !ok {
		return
	}
	author, ok := middleware.Voter(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var comment models.Comment
	if err := h.db.WithContext(c.Request.Context()).First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
			return
		}
		respondError(c, h.log, err, "Failed to fetch comment")
		return
	}

	if comment.AuthorID != author.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own comments"})
		return
	}

	if err := h.svc.DestroyOwner(c.Request.Context(), comment.Ref()); err != nil {
		respondError(c, h.log, err, "Failed to delete comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}

// destroyPostComments removes every comment on a post together with the
// votes they received. Each comment goes in its own transaction, so a failure
// leaves the post and its remaining comments in place for a retry.
func destroyPostComments(ctx context.Context, db *gorm.DB, svc *votes.Service, postID int64) error {
	var ids []int64
	if err := db.WithContext(ctx).Model(&models.Comment{}).Where("post_id = ?", postID).Pluck("id", &ids).Error; err != nil {
		return err
	}
	for _, id := range ids {
		err := svc.DestroyOwner(ctx, models.Ref{Type: models.CommentKind, ID: id})
		// a comment deleted concurrently by its author is already gone
		if err != nil && !errors.Is(err, votes.ErrEntityNotFound) {
			return err
		}
	}
	return nil
}
