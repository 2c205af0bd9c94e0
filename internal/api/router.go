package api

import (
	"github.com/gin-gonic/gin"
	"github.com/leozw/zoom-dashboard/internal/api/handlers"
	"github.com/leozw/zoom-dashboard/internal/api/middleware"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"go.uber.org/zap"
)

type Server struct {
	Router    *gin.Engine
	handler   *handlers.Handler
	validator middleware.TokenValidator
	metrics   *metrics.Collector
}

func NewServer(mode string, h *handlers.Handler, validator middleware.TokenValidator, m *metrics.Collector, logger *zap.Logger) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Router:    router,
		handler:   h,
		validator: validator,
		metrics:   m,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.handler.Health)
	s.Router.GET("/ready", s.handler.Ready)
	s.Router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.Router.Group("/api/v1")
	{
		api.GET("/streams/:stream/latest", s.handler.LatestRecord)
		api.GET("/ledger/:stream", s.handler.LedgerStats)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(s.validator))
	{
		protected.PUT("/users/:account/webinar-capacity", s.handler.SetWebinarCapacity)
	}
}
