package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"blitzid/internal/api"
	"blitzid/internal/auth"
	"blitzid/internal/backup"
	"blitzid/internal/config"
	"blitzid/internal/logging"
	"blitzid/internal/metrics"
	"blitzid/internal/store"
	"blitzid/internal/wallet"
)

func printStats(cfg *config.Config) error {
	st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, wallet.DBFileName))
	if err != nil {
		return fmt.Errorf("open operation log: %w", err)
	}
	defer st.Close()

	stats, err := st.GetStats(context.Background())
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	fmt.Printf("Data directory:  %s\n", cfg.DataDir)
	fmt.Printf("Operations:      %d\n", stats.TotalOperations)
	fmt.Printf("  pending:       %d\n", stats.Pending)
	fmt.Printf("  settled:       %d\n", stats.Settled)
	fmt.Printf("  expired:       %d\n", stats.Expired)
	fmt.Printf("Balance:         %d msat\n", stats.BalanceMsat)
	return nil
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		logging.Main.Fatalf("invalid configuration: %v", err)
	}

	// One-shot stats mode: inspect an existing data directory and exit.
	if cfg.Stats {
		if err := printStats(cfg); err != nil {
			logging.Main.Fatalf("stats: %v", err)
		}
		return
	}

	token, generated, err := auth.Provision(cfg.BearerToken)
	if err != nil {
		logging.Main.Fatalf("failed to generate bearer token: %v", err)
	}

	w, err := wallet.NewEmbeddedWallet(wallet.Options{
		DataDir:         cfg.DataDir,
		Federation:      cfg.Federation,
		InvoiceTTL:      cfg.InvoiceTTL,
		AutoSettleAfter: cfg.AutoSettle,
	})
	if err != nil {
		logging.Main.Fatalf("failed to open wallet: %v", err)
	}
	defer w.Close()

	m := metrics.New()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = m.Start(cfg.MetricsAddr)
	}

	// Base context for everything request-scoped. Cancelling it on
	// shutdown unblocks every suspended invoice wait, so shutdown never
	// hangs behind a long poll.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if b2cfg, ok := backup.ConfigFromEnv(); ok {
		target, err := backup.NewB2Target(b2cfg)
		if err != nil {
			logging.Main.Fatalf("failed to initialize backups: %v", err)
		}
		go backup.Run(ctx, w, target, cfg.BackupInterval)
		logging.Main.Printf("snapshot backups enabled (bucket %s, every %s)", b2cfg.Bucket, cfg.BackupInterval)
	}

	handler := api.NewHandler(w, auth.Middleware(token), m)

	// Middleware order: Logger -> RateLimit -> CORS -> routes.
	var final http.Handler = handler
	final = api.CORS(corsConfig(cfg))(final)
	if cfg.RateLimit > 0 {
		final = api.RateLimit(cfg.RateLimit)(final)
	}
	final = api.Logger(m)(final)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: final,

		// No WriteTimeout: invoice waits legitimately hold a response
		// open for minutes.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,

		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Main.Println("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logging.Main.Printf("metrics shutdown error: %v", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Main.Printf("shutdown error: %v", err)
		}
	}()

	logging.Main.Printf("data directory: %s", cfg.DataDir)

	// The token is announced exactly once, at startup; request logs never
	// carry it.
	if generated {
		logging.Main.Printf("generated bearer token: %s", token)
	}
	logging.Main.Printf("use Authorization header: Bearer %s", token)

	logging.Main.Printf("listening on %s", cfg.Addr())
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logging.Main.Fatalf("server error: %v", err)
	}
}

func corsConfig(cfg *config.Config) api.CORSConfig {
	if cfg.CORSOrigin == "*" || cfg.CORSOrigin == "" {
		return api.CORSConfig{}
	}
	return api.CORSConfig{AllowedOrigins: []string{cfg.CORSOrigin}}
}
