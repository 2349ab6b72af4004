// Package server exposes the deliberation engine, conversation storage,
// and supporting endpoints over HTTP.
package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/gateway"
	"github.com/conclave-ai/conclave/internal/status"
	"github.com/conclave-ai/conclave/internal/storage"
	"github.com/conclave-ai/conclave/internal/webfetch"
	"github.com/conclave-ai/conclave/pkg/logger"
	"github.com/conclave-ai/conclave/pkg/metrics"
)

// Server wires the orchestrator, stores, and fetcher behind a gin router.
type Server struct {
	cfg          *config.Config
	router       *gin.Engine
	orchestrator *council.Orchestrator
	store        *storage.Store
	statuses     *status.Store
	fetcher      *webfetch.Fetcher
	log          logger.Logger
}

// New builds a fully wired Server from configuration.
func New(cfg *config.Config) *Server {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	gw := gateway.NewClient(cfg.GatewayURL, cfg.APIKey)
	statuses := status.NewStore(cfg.StatusTTL)

	s := &Server{
		cfg: cfg,
		orchestrator: council.New(gw, cfg.CouncilModels, cfg.ChairmanModel,
			council.WithStatusRecorder(statuses),
			council.WithQueryTimeout(cfg.ModelQueryTimeout),
			council.WithTitleTimeout(cfg.TitleTimeout),
			council.WithTitleModel(cfg.TitleModel),
		),
		store:    storage.NewStore(cfg.DataDir),
		statuses: statuses,
		fetcher:  webfetch.NewFetcher(cfg.FetchTimeout),
		log:      logger.Named("server"),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the HTTP handler, for serving and for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Statuses exposes the status store so callers can run expiry sweeps.
func (s *Server) Statuses() *status.Store {
	return s.statuses
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))
	router.Use(requestMetrics())
	router.Use(bodyLimit(s.cfg.MaxRequestBody))
	router.Use(cors.New(corsConfig(s.cfg.CORSAllowedOrigins)))

	router.GET("/", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})))

	router.POST("/api/council/process", s.processCouncil)
	router.POST("/api/council/generate-title", s.generateTitle)
	router.GET("/api/council/status/:trace_id", s.councilStatus)

	router.GET("/api/conversations", s.listConversations)
	router.POST("/api/conversations", s.createConversation)
	router.GET("/api/conversations/:id", s.getConversation)
	router.DELETE("/api/conversations/:id", s.deleteConversation)
	router.POST("/api/conversations/:id/message", s.sendMessage)
	router.POST("/api/conversations/:id/message/stream", s.sendMessageStream)

	router.POST("/api/fetch-url", s.fetchURL)

	return router
}

// corsConfig allows exactly the configured origins. With none configured
// any local dev origin is accepted instead.
func corsConfig(allowedOrigins []string) cors.Config {
	return cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if len(allowedOrigins) > 0 && allowedOrigins[0] != "" {
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			}
			return len(origin) > 0 && (len(origin) >= 16 && origin[:16] == "http://localhost" ||
				len(origin) >= 14 && origin[:14] == "http://127.0.0")
		},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}
}
