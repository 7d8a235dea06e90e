package web

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"doomcover/internal/config"
	"doomcover/internal/logger"
	"doomcover/internal/pipeline"
)

type Server struct {
	ctx     context.Context
	jobMgr  *JobManager
	config  config.Config
	logger  *logger.Logger
	deps    pipeline.Deps
	limiter *rate.Limiter
}

// NewServer creates the cover job server. deps holds the services shared by
// all jobs; its Rand must be nil since every job gets its own rng.
func NewServer(ctx context.Context, jobMgr *JobManager, cfg config.Config, log *logger.Logger, deps pipeline.Deps) *Server {
	deps.Rand = nil
	return &Server{
		ctx:     ctx,
		jobMgr:  jobMgr,
		config:  cfg,
		logger:  log,
		deps:    deps,
		limiter: rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst),
	}
}

func (s *Server) Router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.loggingMiddleware())
	r.Use(cors.New(s.corsConfig()))

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		covers := api.Group("/covers")
		{
			covers.POST("", s.handleCreateCover)
			covers.GET("", s.handleListCovers)
			covers.GET("/:id", s.handleGetCover)
			covers.GET("/:id/image", s.handleCoverImage)
			covers.POST("/:id/cancel", s.handleCancelCover)
		}
	}
	r.GET("/ws", s.handleWebSocket)

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	if len(s.config.Server.AllowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.config.Server.AllowedOrigins
	}
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || len(s.config.Server.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.config.Server.AllowedOrigins, origin)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// allowCreate takes a token from the cover request limiter, answering 429
// when none is left.
func (s *Server) allowCreate(c *gin.Context) bool {
	if !s.limiter.Allow() {
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many cover requests, slow down"})
		return false
	}
	return true
}
