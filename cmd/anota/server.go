package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amartel/anota/internal/api"
	"github.com/amartel/anota/internal/breaker"
	"github.com/amartel/anota/internal/cache"
	"github.com/amartel/anota/internal/config"
	"github.com/amartel/anota/internal/confirm"
	"github.com/amartel/anota/internal/heuristic"
	"github.com/amartel/anota/internal/intent"
	"github.com/amartel/anota/internal/llm"
	"github.com/amartel/anota/internal/pipeline"
	"github.com/amartel/anota/internal/quota"
	"github.com/amartel/anota/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the anota server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "anota version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if cfg.LLM.APIKey == "" {
		printWarning("no API key configured, running on the heuristic interpreter only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Build the interpretation pipeline.
	var client *llm.Client
	if cfg.LLM.BaseURL != "" {
		client = llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.RequestTimeout, cfg.LLM.BaseURL)
	} else {
		client = llm.NewClient(cfg.LLM.APIKey, cfg.LLM.RequestTimeout)
	}
	primary := intent.NewInterpreter(client, cfg.LLM.Model, cfg.LLM.MaxInputChars)
	fallback := pipeline.NewFallback(primary, heuristic.Interpret)

	orch := pipeline.NewOrchestrator(
		cache.New(cfg.Cache.TTL, cfg.Cache.Capacity),
		quota.New(cfg.Quota.DailyLimit),
		breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.OpenTimeout, cfg.Breaker.SuccessThreshold),
		fallback,
		store,
		store,
	)
	confirms := confirm.NewService(store)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewHandler(orch, confirms, cfg.AuthToken),
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Interpreter: orch,
		Confirms:    confirms,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("anota listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
