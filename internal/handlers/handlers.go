package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

// Handler combines all handler types
type Handler struct {
	Vote    *VoteHandler
	Post    *PostHandler
	Comment *CommentHandler
	User    *UserHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(db *gorm.DB, svc *votes.Service, jwtSecret []byte, log *zap.Logger) *Handler {
	return &Handler{
		Vote:    NewVoteHandler(svc, DefaultKinds(), log),
		Post:    NewPostHandler(db, svc, log),
		Comment: NewCommentHandler(db, svc, log),
		User:    NewUserHandler(db, svc, jwtSecret, log),
	}
}

// DefaultKinds maps URL segments to the type tags stored in the ledger.
func DefaultKinds() map[string]string {
	return map[string]string{
		"posts":    models.PostKind,
		"comments": models.CommentKind,
		"users":    models.UserKind,
	}
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps ledger errors to status codes. Anything unexpected is
// logged and reported as a 500.
func respondError(c *gin.Context, log *zap.Logger, err error, msg string) {
	switch {
	case errors.Is(err, votes.ErrMissingValue),
		errors.Is(err, votes.ErrInvalidVote),
		errors.Is(err, votes.ErrInvalidTally):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, votes.ErrEntityNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msg + ": not found"})
	case errors.Is(err, votes.ErrUnknownKind):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		log.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
