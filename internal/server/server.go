package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/emilythestrangee/thumbsup/internal/database"
	"github.com/emilythestrangee/thumbsup/internal/handlers"
	"github.com/emilythestrangee/thumbsup/internal/metrics"
	"github.com/emilythestrangee/thumbsup/internal/middleware"
)

type Server struct {
	db        database.Service
	handler   *handlers.Handler
	registry  *prometheus.Registry
	jwtSecret []byte
	log       *zap.Logger
}

// New wires the router. db may be nil, in which case /health only reports
// that the process is alive.
func New(db database.Service, handler *handlers.Handler, registry *prometheus.Registry, jwtSecret []byte, log *zap.Logger) *Server {
	return &Server{
		db:        db,
		handler:   handler,
		registry:  registry,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

// HTTPServer creates the HTTP server listening on port
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(s.log))

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Health check endpoint
	r.GET("/health", s.health)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(s.registry)))
	}

	api := r.Group("/api")
	{
		// User routes (public)
		api.POST("/users", s.handler.User.CreateUser)
		api.GET("/users/:id", s.handler.User.GetUserProfile)

		// Post routes (public reads)
		api.GET("/posts", s.handler.Post.GetPosts)
		api.GET("/posts/:id", s.handler.Post.GetPost)
		api.GET("/posts/:id/comments", s.handler.Comment.GetComments)

		// Vote routes (public reads)
		api.GET("/votes/:kind/:id", s.handler.Vote.GetSummary)
		api.GET("/votes/:kind/:id/voters", s.handler.Vote.GetVoters)
		api.POST("/votes/:kind/:id/counter", s.handler.Vote.ReloadCounter)
		api.GET("/tally/:kind", s.handler.Vote.Tally)

		// Protected routes (voter token required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(s.jwtSecret))
		{
			protected.DELETE("/users/:id", s.handler.User.DeleteUser)

			protected.POST("/posts", s.handler.Post.CreatePost)
			protected.DELETE("/posts/:id", s.handler.Post.DeletePost)

			protected.POST("/posts/:id/comments", s.handler.Comment.CreateComment)
			protected.DELETE("/comments/:commentId", s.handler.Comment.DeleteComment)

			protected.POST("/votes/:kind/:id", s.handler.Vote.CastVote)
			protected.DELETE("/votes/:kind/:id", s.handler.Vote.ClearVotes)
			protected.GET("/votes/:kind/:id/me", s.handler.Vote.GetVoterStatus)
			protected.GET("/me/votes", s.handler.Vote.GetMyVoteCount)

			protected.POST("/admin/reconcile", s.handler.Vote.Reconcile)
		}
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	stats := s.db.Health(c.Request.Context())
	if stats["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}
