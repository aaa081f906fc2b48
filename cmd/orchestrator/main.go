// Creature orchestrator server - manages a fleet of agentic creature
// containers, brokers their LLM traffic, and exposes the control API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/api"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/config"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/containerrt"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/cost"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/credproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/events"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/healthmon"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/llmproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/metrics"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/narrator"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/pricing"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	logLevel := zerolog.InfoLevel
	if getEnv("LOG_LEVEL", "") == "debug" {
		logLevel = zerolog.DebugLevel
	}
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(logLevel).With().Timestamp().Logger()

	zlog.Info().Str("config_dir", *configDir).Str("http_port", httpPort).Msg("starting creature orchestrator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize configuration")
	}

	if err := os.MkdirAll(cfg.System.CreaturesDir, 0o755); err != nil {
		zlog.Fatal().Err(err).Msg("failed to create creatures directory")
	}

	health := healthmon.New(nil, healthmon.DefaultInterval, zlog)

	pricingLoader := pricing.New(cfg.Pricing.CachePath, cfg.Pricing.URL, health, zlog)
	pricingLoader.Load(ctx)

	tracker := cost.New(filepath.Join(cfg.System.CreaturesDir, "_usage.json"), pricingLoader, zlog)
	tracker.Start()
	defer tracker.Destroy()

	store := events.New(cfg.System.CreaturesDir, events.DefaultTailSize, zlog)
	rollbackLog := events.NewRollbackLog(cfg.System.CreaturesDir, zlog)

	var credMgr *credproxy.Manager
	if cfg.CredentialProxy.ConfigFilePath != "" {
		credMgr = credproxy.New(credproxy.Config{
			ConfigFilePath: cfg.CredentialProxy.ConfigFilePath,
			Command:        cfg.CredentialProxy.Command,
			Args:           cfg.CredentialProxy.Args,
			Port:           cfg.CredentialProxy.Port,
			RunnerKeyPath:  cfg.CredentialProxy.RunnerKeyPath,
			HealthPath:     cfg.CredentialProxy.HealthPath,
			HealthAttempts: cfg.CredentialProxy.HealthAttempts,
		}, zlog)
		if err := credMgr.Start(ctx); err != nil {
			zlog.Warn().Err(err).Msg("credential-proxy side-car failed to start")
		}
		health.SetDependency("credential-proxy", models.DependencyUp, "")
	}

	runtime := containerrt.NewCLIRuntime(getEnv("CONTAINER_RUNTIME", "docker"))
	// Recorded once at boot; the container runtime and credential-proxy
	// don't expose a side-effect-free liveness probe the way pricing's
	// HTTP fetch does, so their status isn't re-polled by the health loop.
	health.SetDependency("container-runtime", models.DependencyUp, "")
	health.Start(ctx)
	defer health.Stop()

	reg := prometheus.DefaultRegisterer
	metricsReg := metrics.New(reg)

	sourceClient := llmproxy.NewClient(cfg.Secrets.SourceUpstreamURL, cfg.Secrets.SourceAPIKey)

	registry := api.NewRegistry(api.SystemDefaults{
		CreaturesDir:    cfg.System.CreaturesDir,
		Image:           cfg.System.Image,
		ContainerPort:   cfg.System.ContainerPort,
		CPULimit:        cfg.System.CPULimit,
		MemoryLimit:     cfg.System.MemoryLimit,
		OrchestratorURL: cfg.System.OrchestratorURL,
		PackageVolume:   cfg.System.PackageVolume,
		JWTSecret:       cfg.Secrets.JWTSecret,
		CreatorModel:    cfg.Creator.Model,
	}, runtime, store, rollbackLog, tracker, sourceClient, nil, zlog)

	if entries, err := os.ReadDir(cfg.System.CreaturesDir); err == nil {
		var names []string
		for _, e := range entries {
			if e.IsDir() && e.Name()[0] != '_' {
				names = append(names, e.Name())
			}
		}
		registry.Discover(ctx, names)
		zlog.Info().Int("count", len(names)).Msg("discovered existing creatures")
	}

	idxPath := filepath.Join(cfg.System.CreaturesDir, "_narration.idx")
	narrationPath := filepath.Join(cfg.System.CreaturesDir, "_narration.json")
	idx, err := narrator.OpenIndex(idxPath)
	if err != nil {
		zlog.Warn().Err(err).Msg("failed to open narration search index")
	}

	var n *narrator.Narrator
	if idx != nil {
		n, err = narrator.New(narrator.Config{
			Model:           cfg.Narrator.Model,
			IntervalMinutes: cfg.Narrator.IntervalMinutes,
			CreaturesDir:    cfg.System.CreaturesDir,
			NarrationPath:   narrationPath,
			ListCreatures: func() []string {
				items := registry.List()
				names := make([]string, len(items))
				for i, it := range items {
					names[i] = it.Name
				}
				return names
			},
		}, store, sourceClient, tracker, idx, zlog)
		if err != nil {
			zlog.Warn().Err(err).Msg("failed to start narrator")
		} else {
			if narrator.Stale(idxPath, narrationPath) {
				if err := idx.Rebuild(ctx, n.Entries(0)); err != nil {
					zlog.Warn().Err(err).Msg("failed to rebuild narration index")
				}
			}
			n.Start(ctx)
			defer n.Stop()
		}
	}

	budgetChecker := api.NewBudgetChecker(cfg, tracker)
	llmProxy := llmproxy.New(llmproxy.Config{
		SourceUpstreamURL: cfg.Secrets.SourceUpstreamURL,
		TargetUpstreamURL: cfg.Secrets.TargetUpstreamURL,
		SourceAPIKey:      cfg.Secrets.SourceAPIKey,
		TargetAPIKey:      cfg.Secrets.TargetAPIKey,
		JWTSecret:         cfg.Secrets.JWTSecret,
	}, tracker, budgetChecker, llmproxy.Hooks{
		OnBudgetExceeded: func(identity string) {
			metricsReg.BudgetBlocksTotal.WithLabelValues(identity).Inc()
		},
	}, zlog)

	srv := api.NewServer(cfg, registry, store, tracker, health, n, llmProxy, credMgr, metricsReg, zlog)

	go func() {
		zlog.Info().Str("addr", ":"+httpPort).Msg("http server listening")
		if err := srv.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	zlog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn().Err(err).Msg("error during http shutdown")
	}

	registry.StopAll()
	if credMgr != nil {
		credMgr.StopJanee()
	}
}
