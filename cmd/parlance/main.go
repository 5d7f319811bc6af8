// Command parlance is the main entry point for the Parlance language tutor
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parlancehq/parlance/internal/config"
	"github.com/parlancehq/parlance/internal/conversation"
	"github.com/parlancehq/parlance/internal/gateway"
	"github.com/parlancehq/parlance/internal/health"
	"github.com/parlancehq/parlance/internal/observe"
	"github.com/parlancehq/parlance/internal/progress"
	"github.com/parlancehq/parlance/internal/resilience"
	"github.com/parlancehq/parlance/internal/vocab"
	"github.com/parlancehq/parlance/pkg/backend"
	"github.com/parlancehq/parlance/pkg/kvstore"
	kvmemory "github.com/parlancehq/parlance/pkg/kvstore/memory"
	kvpostgres "github.com/parlancehq/parlance/pkg/kvstore/postgres"
	kvsqlite "github.com/parlancehq/parlance/pkg/kvstore/sqlite"
	"github.com/parlancehq/parlance/pkg/provider/stt"
	openaistt "github.com/parlancehq/parlance/pkg/provider/stt/openai"
	tutorstt "github.com/parlancehq/parlance/pkg/provider/stt/tutor"
	tutortts "github.com/parlancehq/parlance/pkg/provider/tts/tutor"
	vadenergy "github.com/parlancehq/parlance/pkg/provider/vad/energy"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parlance: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parlance: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("parlance starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"store", cfg.Store.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// ── Progress store ───────────────────────────────────────────────────────
	kv, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open progress store", "err", err)
		return 1
	}
	defer func() {
		if err := kv.Close(); err != nil {
			slog.Warn("store close error", "err", err)
		}
	}()

	// ── Tutor backend client ─────────────────────────────────────────────────
	clientOpts := []backend.Option{
		backend.WithTokenSource(backend.StaticToken(cfg.Backend.Token)),
	}
	if cfg.Backend.Timeout > 0 {
		clientOpts = append(clientOpts, backend.WithHTTPClient(&http.Client{
			Timeout: cfg.Backend.Timeout.Std(),
		}))
	}
	client, err := backend.New(cfg.Backend.BaseURL, clientOpts...)
	if err != nil {
		slog.Error("failed to create backend client", "err", err)
		return 1
	}

	// ── Speech providers ─────────────────────────────────────────────────────
	sttProvider, err := buildSTT(cfg, client, logger)
	if err != nil {
		slog.Error("failed to build stt providers", "err", err)
		return 1
	}
	ttsProvider, err := tutortts.New(client)
	if err != nil {
		slog.Error("failed to build tts provider", "err", err)
		return 1
	}

	// ── Readiness checks ─────────────────────────────────────────────────────
	checks := health.New()
	if pinger, ok := kv.(health.Pinger); ok {
		checks.Add("store", health.PingCheck(pinger))
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	server := gateway.NewServer(cfg, gateway.Deps{
		Backend:   client,
		STT:       sttProvider,
		TTS:       ttsProvider,
		VAD:       vadenergy.New(),
		Prober:    client,
		Progress:  progress.NewStore(kv),
		Unsaved:   conversation.NewUnsavedStore(kv),
		Corrector: vocab.New(),
		Metrics:   metrics,
		Health:    checks,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:        cfg.Server.ListenAddr,
		Handler:     server.Routes(),
		ReadTimeout: 30 * time.Second,
		// Session sockets stay open for the whole conversation; no write
		// timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("server failed", "err", err)
		return 1
	case <-ctx.Done():
	}
	stop()

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// openStore creates the configured progress store backend.
func openStore(ctx context.Context, cfg *config.Config) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		return kvsqlite.Open(ctx, cfg.Store.SQLitePath)
	case config.StorePostgres:
		return kvpostgres.Open(ctx, cfg.Store.PostgresDSN)
	default:
		return kvmemory.New(), nil
	}
}

// buildSTT assembles the transcription failover chain: the tutor backend
// first, then each configured fallback provider.
func buildSTT(cfg *config.Config, client *backend.Client, logger *slog.Logger) (stt.Provider, error) {
	primary, err := tutorstt.New(client)
	if err != nil {
		return nil, err
	}

	if len(cfg.Providers.STTFallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewSTTChain(resilience.BreakerConfig{Name: "stt"}, logger)
	chain.Add("tutor", primary)
	for _, entry := range cfg.Providers.STTFallbacks {
		switch entry.Name {
		case "openai":
			var opts []openaistt.Option
			if entry.BaseURL != "" {
				opts = append(opts, openaistt.WithBaseURL(entry.BaseURL))
			}
			if entry.Model != "" {
				opts = append(opts, openaistt.WithModel(entry.Model))
			}
			p, err := openaistt.New(entry.APIKey, opts...)
			if err != nil {
				return nil, fmt.Errorf("fallback %q: %w", entry.Name, err)
			}
			chain.Add(entry.Name, p)
		default:
			return nil, fmt.Errorf("unknown stt fallback provider %q", entry.Name)
		}
	}
	return chain, nil
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
