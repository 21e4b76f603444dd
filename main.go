package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shakram02/go-mcp-db-gateway/internal/backend"
	"github.com/shakram02/go-mcp-db-gateway/internal/config"
	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
	"github.com/shakram02/go-mcp-db-gateway/internal/mcpserver"
	"github.com/shakram02/go-mcp-db-gateway/internal/schemacache"
	"github.com/shakram02/go-mcp-db-gateway/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	backendName := flag.String("backend", "", "backend to serve: mongo, postgres, mssql, mysql or sqlite")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: db-gateway-mcp-server [-config file.toml] [-backend name]")
		fmt.Fprintln(os.Stderr, "Example: MCP_MONGO_DB=shop db-gateway-mcp-server -backend mongo")
		flag.PrintDefaults()
	}
	flag.Parse()

	// stdout carries the protocol stream
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", mcpserver.ServerName).Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *backendName); err != nil {
		if errs.Is(err, errs.Startup) {
			log.Error().Err(err).Msg("startup failed")
		} else {
			log.Error().Err(err).Msg("server error")
		}
		cancel()
		os.Exit(1)
	}
	log.Info().Msg("server shutdown gracefully")
}

func run(ctx context.Context, configPath, backendName string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errs.Wrap(errs.Startup, err, "loading config")
	}
	if backendName != "" {
		cfg.Backend = backendName
	}
	if err := cfg.Validate(); err != nil {
		return errs.Wrap(errs.Startup, err, "invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errs.Wrap(errs.Startup, err, "invalid log_level")
	}
	zerolog.SetGlobalLevel(level)

	b, err := backend.Open(ctx, cfg)
	if err != nil {
		return errs.Wrap(errs.Startup, err, fmt.Sprintf("connecting to %s", cfg.Backend))
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close backend")
		}
	}()

	cache := schemacache.New(b)
	reg := tools.NewRegistry(cfg.QueryTimeout.Duration)
	opts := tools.Options{ReadOnly: cfg.ReadOnly}

	switch typed := b.(type) {
	case backend.Document:
		resolver := tools.NewCollectionResolver(cfg.Mongo.PromptRules)
		err = tools.RegisterDocument(reg, typed, cache, resolver, opts)
	case backend.SQL:
		err = tools.RegisterSQL(reg, typed, cache, opts)
	default:
		err = fmt.Errorf("backend %s exposes no tool set", b.Kind())
	}
	if err != nil {
		return errs.Wrap(errs.Startup, err, "registering tools")
	}

	srv := mcpserver.New(reg, cache, b)
	if err := srv.RegisterTableResources(ctx); err != nil {
		log.Warn().Err(err).Msg("could not list tables for schema resources")
	}

	log.Info().
		Str("backend", b.Kind()).
		Str("database", b.DatabaseName()).
		Bool("read_only", cfg.ReadOnly).
		Int("tools", len(reg.List())).
		Msg("MCP server started")

	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
