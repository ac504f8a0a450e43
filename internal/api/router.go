package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nivlheim/nivlheim/internal/api/handlers"
	"github.com/nivlheim/nivlheim/internal/api/middleware"
	"github.com/nivlheim/nivlheim/internal/config"
	"github.com/nivlheim/nivlheim/internal/enroll"
	"github.com/nivlheim/nivlheim/internal/ingest"
	"github.com/nivlheim/nivlheim/internal/session"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	enroller *enroll.Enroller,
	guard *session.Guard,
	ingestor *ingest.Ingestor,
) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Create handlers
	enrollHandler := handlers.NewEnrollHandler(enroller)
	pingHandler := handlers.NewPingHandler(guard)
	postHandler := handlers.NewPostHandler(ingestor)
	ingestHandler := handlers.NewIngestHandler(ingestor)

	// Unauthenticated enrollment
	router.GET("/reqcert", enrollHandler.ReqCert)

	// Endpoints requiring a client certificate from the front server
	secure := router.Group("/secure")
	secure.Use(middleware.RequireClientCert())
	{
		secure.GET("/renewcert", enrollHandler.RenewCert)
		secure.GET("/ping", pingHandler.Ping)
		secure.POST("/post", postHandler.Post)
	}

	// Queue worker, local callers only
	router.GET("/ingest", middleware.LoopbackOnly(), ingestHandler.ProcessFile)

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	return s.router.Run(s.config.Server.ListenAddr)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
