// Command clawgate runs the ClawGate LLM gateway: the HTTP Surface, the
// three-layer routing engine, and (if enabled) the durable metrics
// store, all wired through a single internal/app.App handle.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/clawgate/clawgate/internal/app"
	"github.com/clawgate/clawgate/internal/config"
	"github.com/clawgate/clawgate/internal/httpapi"
	"github.com/clawgate/clawgate/internal/migration"
	"github.com/clawgate/clawgate/internal/obs"
	"github.com/clawgate/clawgate/internal/routing"
	"github.com/clawgate/clawgate/internal/server"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runServe(os.Args[1:])
		return
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "health":
		runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		runServe(os.Args[1:])
	}
}

// runMigrate applies the metrics store's schema migration manually
// (status/up/down), independent of the automatic migration metrics.Init
// runs on server startup - useful for inspecting migration state or
// rolling back without starting the gateway itself.
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config.yaml")
	_ = fs.Parse(args)

	action := "status"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	cfg := config.MustLoad(*configPath)

	m, err := migration.NewMigratorFromMetricsConfig(cfg.Metrics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clawgate: building migrator: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	ctx := context.Background()

	switch action {
	case "up":
		if err = m.Up(ctx); err == nil {
			err = printSchemaVersion(ctx, m)
		}
	case "down":
		if err = m.Down(ctx); err == nil {
			err = printSchemaVersion(ctx, m)
		}
	case "down-all":
		if err = m.DownAll(ctx); err == nil {
			fmt.Println("all migrations rolled back")
		}
	case "status":
		err = printSchemaStatus(ctx, m)
	case "version":
		err = printSchemaVersion(ctx, m)
	default:
		fmt.Fprintf(os.Stderr, "clawgate: unknown migrate action %q (up|down|down-all|status|version)\n", action)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "clawgate: %v\n", err)
		os.Exit(1)
	}
}

func printSchemaVersion(ctx context.Context, m *migration.Migrator) error {
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		fmt.Println("schema not migrated yet")
	case dirty:
		fmt.Printf("schema at version %d (dirty - a previous run was interrupted)\n", version)
	default:
		fmt.Printf("schema at version %d\n", version)
	}
	return nil
}

func printSchemaStatus(ctx context.Context, m *migration.Migrator) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}

	applied := 0
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
			applied++
		}
		fmt.Printf("%06d  %-32s %s\n", s.Version, s.Name, state)
	}
	fmt.Printf("%d of %d applied\n", applied, len(statuses))
	return nil
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config.yaml")
	_ = fs.Parse(args)

	cfg := config.MustLoad(*configPath)

	logger, err := obs.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clawgate: building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	// The LLM-classifier callback lives in internal/httpapi, which
	// imports internal/provider; internal/routing must not, so the
	// engine is first built with a nil classifier (see app.New) and
	// rebuilt here with the real one once the HTTP surface exists.
	if cfg.LLMClassifier.Enabled {
		classifier := httpapi.NewClassifier(a)
		engine, err := routing.NewEngine(cfg, classifier, logger)
		if err != nil {
			logger.Fatal("failed to rebuild routing engine with classifier", zap.Error(err))
		}
		a.SetRouter(engine)
	}

	handler := httpapi.NewRouter(a)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.Server.Addr
	srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

	mgr := server.NewManager(handler, srvCfg, logger)
	if err := mgr.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	logger.Info("clawgate started", zap.String("addr", cfg.Server.Addr), zap.String("version", version))

	mgr.WaitForShutdown()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8089", "gateway base address")
	_ = fs.Parse(args)

	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "clawgate: health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "clawgate: health check returned status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func printVersion() {
	fmt.Printf("clawgate version %s\n", version)
}

func printUsage() {
	fmt.Print(`clawgate - OpenAI-compatible LLM gateway

Usage:
  clawgate serve [-config path]              start the gateway (default command)
  clawgate migrate [-config path] <action>   up|down|down-all|status|version (default status)
  clawgate health [-addr url]                check a running gateway's /health
  clawgate version                           print version
  clawgate help                              show this message
`)
}
