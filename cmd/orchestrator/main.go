// Command orchestrator runs the security-tool orchestration backend: the
// Job Executor, Workflow Engine, and thin HTTP surface (health, metrics,
// Import API) over either Postgres or in-memory storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	app "github.com/R3E-Network/orchestrator/internal/app"
	"github.com/R3E-Network/orchestrator/internal/app/config"
	"github.com/R3E-Network/orchestrator/internal/app/storage/postgres"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or 0.0.0.0:8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	toolsFile := flag.String("tools-file", "", "path to tools.yaml (defaults to config or configs/tools.yaml)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rootCtx := context.Background()

	dsnVal := resolveDSN(*dsn, cfg)
	stores := app.Stores{}

	var pg *postgres.Store
	if dsnVal != "" {
		pg, err = postgres.Open(rootCtx, dsnVal)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		defer pg.Close()

		if *runMigrations {
			if err := pg.Migrate(rootCtx); err != nil {
				log.Fatalf("apply migrations: %v", err)
			}
		}
		stores.Gateway = pg
	}

	runtime := app.RuntimeConfig{
		ToolsFile:         resolveToolsFile(*toolsFile, cfg),
		MaxConcurrentJobs: cfg.Runner.MaxConcurrentJobs,
		OutputsRoot:       resolveOutputsRoot(),
		MasterKeyHex:      cfg.Security.MasterKeyHex,
		WebhookURL:        cfg.Notify.WebhookURL,
		HTTPAddr:          resolveAddr(*addr, cfg),
	}

	application, err := app.New(stores, nil, app.WithRuntimeConfig(runtime))
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log.Fatalf("start application: %v", err)
	}
	log.Printf("orchestrator listening on %s", runtime.HTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func resolveAddr(flagAddr string, cfg *config.Config) string {
	if addr := strings.TrimSpace(flagAddr); addr != "" {
		return addr
	}
	if cfg != nil && cfg.Server.Port != 0 {
		host := strings.TrimSpace(cfg.Server.Host)
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	}
	return "0.0.0.0:8080"
}

func resolveToolsFile(flagPath string, cfg *config.Config) string {
	if path := strings.TrimSpace(flagPath); path != "" {
		return path
	}
	if cfg != nil && strings.TrimSpace(cfg.Runner.ToolsFile) != "" {
		return cfg.Runner.ToolsFile
	}
	return "configs/tools.yaml"
}

func resolveOutputsRoot() string {
	if dir := strings.TrimSpace(os.Getenv("ORCHESTRATOR_OUTPUTS_ROOT")); dir != "" {
		return dir
	}
	return "/var/lib/orchestrator/jobs"
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	if cfg != nil {
		return strings.TrimSpace(cfg.Database.DSN)
	}
	return ""
}
