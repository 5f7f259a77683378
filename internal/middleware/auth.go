package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/emilythestrangee/thumbsup/internal/models"
)

const (
	// VoterKey holds the models.Ref of the authenticated voter.
	VoterKey = "voter"
	// RequestIDKey holds the id echoed in the X-Request-ID header.
	RequestIDKey = "request_id"

	tokenTTL = 72 * time.Hour
)

// IssueToken signs a token identifying userID as a voter.
func IssueToken(secret []byte, userID int64, username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(secret)
}

// ParseToken validates a token and returns the voter it identifies.
func ParseToken(secret []byte, tokenString string) (models.Ref, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Ref{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Ref{}, errors.New("invalid token claims")
	}
	raw, ok := claims["user_id"].(float64)
	if !ok || raw <= 0 {
		return models.Ref{}, errors.New("token has no user_id")
	}
	return models.Ref{Type: models.UserKind, ID: int64(raw)}, nil
}

// AuthMiddleware identifies the voter from a bearer token. It does not
// decide what the voter may do.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		voter, err := ParseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Set(VoterKey, voter)
		c.Next()
	}
}

// Voter returns the voter stored by AuthMiddleware.
func Voter(c *gin.Context) (models.Ref, bool) {
	raw, exists := c.Get(VoterKey)
	if !exists {
		return models.Ref{}, false
	}
	ref, ok := raw.(models.Ref)
	return ref, ok
}

// RequestID tags every request with an id, reusing the caller's when given.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
