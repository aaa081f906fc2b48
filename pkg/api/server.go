package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/config"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/cost"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/credproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/events"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/healthmon"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/llmproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/metrics"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/narrator"
)

// Server is the orchestrator's HTTP surface: the REST API over Registry,
// the SSE event stream, and the LLM-proxy/credential-proxy mount points
// (spec.md §4.9).
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	cfg       *config.Config
	registry  *Registry
	events    *events.Store
	cost      *cost.Tracker
	health    *healthmon.Monitor
	narrator  *narrator.Narrator
	llmProxy  *llmproxy.Proxy
	credProxy *credproxy.Manager
	metrics   *metrics.Registry
	log       zerolog.Logger
}

// NewServer wires every route. gin.ReleaseMode matches the teacher's
// production-server posture (no debug console output per-request).
func NewServer(cfg *config.Config, registry *Registry, store *events.Store, tracker *cost.Tracker, health *healthmon.Monitor, n *narrator.Narrator, llmProxy *llmproxy.Proxy, credProxy *credproxy.Manager, reg *metrics.Registry, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		cfg:       cfg,
		registry:  registry,
		events:    store,
		cost:      tracker,
		health:    health,
		narrator:  n,
		llmProxy:  llmProxy,
		credProxy: credProxy,
		metrics:   reg,
		log:       log.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/creatures", s.listCreaturesHandler)
		api.POST("/creatures", s.spawnCreatureHandler)

		api.POST("/creatures/:name/start", s.lifecycleHandler("start"))
		api.POST("/creatures/:name/stop", s.lifecycleHandler("stop"))
		api.POST("/creatures/:name/restart", s.lifecycleHandler("restart"))
		api.POST("/creatures/:name/rebuild", s.lifecycleHandler("rebuild"))
		api.POST("/creatures/:name/wake", s.lifecycleHandler("wake"))
		api.POST("/creatures/:name/archive", s.archiveCreatureHandler)

		api.GET("/creatures/:name/events", s.creatureEventsHandler)
		api.POST("/creatures/:name/event", s.inboundEventHandler)
		api.POST("/creatures/:name/evolve", s.evolveHandler)

		api.GET("/creatures/:name/budget", s.getCreatureBudgetHandler)
		api.PUT("/creatures/:name/budget", s.putCreatureBudgetHandler)
		api.GET("/budget", s.getGlobalBudgetHandler)
		api.PUT("/budget", s.putGlobalBudgetHandler)

		api.GET("/usage", s.usageHandler)

		api.GET("/narrator/config", s.getNarratorConfigHandler)
		api.PUT("/narrator/config", s.putNarratorConfigHandler)
		api.GET("/narration", s.narrationHandler)

		api.GET("/status", s.statusHandler)
		api.GET("/events", s.sseHandler)
	}

	if s.llmProxy != nil {
		s.router.Any("/v1/messages", s.llmProxy.Middleware(), s.llmProxy.Handler(s.metrics))
	}
}

// Router exposes the underlying gin.Engine, e.g. for test servers.
func (s *Server) Router() http.Handler { return s.router }

// Start serves on addr, blocking until Shutdown or a fatal error.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener (test infrastructure).
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server within a bounded grace period
// (spec.md §5 "HTTP requests in progress run to completion within a bounded
// grace period (≤5s) then are dropped").
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	stats := s.cfg.Stats()
	_, agg := s.health.Snapshot()
	status := "healthy"
	if agg != "healthy" {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"config": stats,
	})
}
