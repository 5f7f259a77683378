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

type UserHandler struct {
	db        *gorm.DB
	svc       *votes.Service
	jwtSecret []byte
	log       *zap.Logger
}

func NewUserHandler(db *gorm.DB, svc *votes.Service, jwtSecret []byte, log *zap.Logger) *UserHandler {
	return &UserHandler{db: db, svc: svc, jwtSecret: jwtSecret, log: log}
}

// CreateUser registers a voter and returns a token identifying it
func (h *UserHandler) CreateUser(c *gin.Context) {
	var input models.CreateUserRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Check if username already exists
	var existing models.User
	err := h.db.WithContext(c.Request.Context()).Where("username = ?", input.Username).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, h.log, err, "Failed to create user")
		return
	}

	user := models.User{
		Username: input.Username,
		Bio:      input.Bio,
		Avatar:   input.Avatar,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		respondError(c, h.log, err, "Failed to create user")
		return
	}

	token, err := middleware.IssueToken(h.jwtSecret, user.ID, user.Username)
	if err != nil {
		respondError(c, h.log, err, "Failed to generate token")
		return
	}
	c.JSON(http.StatusCreated, models.AuthResponse{
		Token:   token,
		User:    user,
		Message: "User registered successfully",
	})
}

// GetUserProfile returns a user's profile and voting activity
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		respondError(c, h.log, err, "Failed to fetch user")
		return
	}

	ctx := c.Request.Context()
	counts := gin.H{}
	for key, d := range map[string]votes.Direction{"all": votes.All, "up": votes.For, "down": votes.Against} {
		n, err := h.svc.VoteCount(ctx, user.Ref(), d)
		if err != nil {
			respondError(c, h.log, err, "Failed to count votes")
			return
		}
		counts[key] = n
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "vote_count": counts})
}

// DeleteUser removes the current user together with every vote it cast
// (PROTECTED - own account only)
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	voter, ok := middleware.Voter(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if voter.ID != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own account"})
		return
	}

	if err := h.svc.DestroyOwner(c.Request.Context(), models.Ref{Type: models.UserKind, ID: id}); err != nil {
		respondError(c, h.log, err, "Failed to delete user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
