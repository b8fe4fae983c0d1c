// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mitabo/mitabo/internal/config"
	"github.com/mitabo/mitabo/internal/daemon"
	"github.com/mitabo/mitabo/internal/health"
	mlog "github.com/mitabo/mitabo/internal/log"
	"github.com/mitabo/mitabo/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	mlog.Configure(mlog.Config{
		Level:   "info",
		Service: "mitabo",
		Version: version.Version,
	})
	logger := mlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	explicitConfigPath := strings.TrimSpace(*configPath)
	effectiveConfigPath := explicitConfigPath
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}

	// ENV > file > defaults
	cfg, err := config.NewLoader(effectiveConfigPath).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(mlog.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	mlog.Configure(mlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version.Version,
	})
	logger = mlog.WithComponent("daemon")

	source := "env+defaults"
	switch {
	case explicitConfigPath != "":
		source = "file"
	case effectiveConfigPath != "":
		source = "file(auto)"
	}
	logger.Info().
		Str(mlog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", effectiveConfigPath).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(mlog.FieldEvent, "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}

	logger.Info().
		Str(mlog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.ListenAddr).
		Msg("starting mitabo")
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Storage: %s", cfg.Storage.Backend)
	if cfg.Upload.RateLimitPerMinute <= 0 {
		logger.Warn().Msg("→ Upload rate limit: disabled")
	}

	rt, err := daemon.Bootstrap(ctx, cfg, version.Version)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(mlog.FieldEvent, "bootstrap.failed").
			Msg("failed to assemble service")
	}

	mgr, err := daemon.NewManager(daemon.ServerConfigFrom(cfg), daemon.Deps{
		Logger:     logger,
		APIHandler: rt.Handler,
	})
	if err != nil {
		_ = rt.Close(context.Background())
		logger.Fatal().
			Err(err).
			Str(mlog.FieldEvent, "manager.creation.failed").
			Msg("failed to create daemon manager")
	}
	rt.RegisterShutdownHooks(mgr)

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str(mlog.FieldEvent, "manager.failed").
			Msg("daemon failed")
	}

	logger.Info().Msg("server exiting")
}

// resolveDefaultConfigPath auto-loads ${MITABO_DATA_DIR}/config.yaml when present.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(config.ParseString(config.EnvPrefix+"DATA_DIR", config.Defaults().DataDir))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}
