package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/gateway/broker/bridge"
	"github.com/rustyeddy/gateway/broker/session"
	"github.com/rustyeddy/gateway/gateway"
	"github.com/rustyeddy/gateway/journal"
	"github.com/rustyeddy/gateway/logger"
	"github.com/rustyeddy/gateway/server"
	"github.com/rustyeddy/gateway/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Long: `Start the HTTP gateway and serve until interrupted.

Example:
  gateway serve -c gateway.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	grace, err := cfg.Server.ShutdownGrace()
	if err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}

	log, err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	accounts, err := store.NewSQLite(dsn(cfg.Store.DBPath))
	if err != nil {
		return fmt.Errorf("open account store: %w", err)
	}
	defer accounts.Close()

	j, err := journal.NewSQLite(dsn(cfg.Store.DBPath))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	client := bridge.New(cfg.BridgeOptions(log.WithField("component", "bridge")))
	tokens := session.NewManager(session.NewMemoryCache(), client, log.WithField("component", "session"))
	svc := gateway.New(accounts, tokens, client,
		gateway.WithJournal(j),
		gateway.WithLogger(log.WithField("component", "gateway")),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.New(svc, log.WithField("component", "http"), cfg.Server.CORSOrigins).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("listen", cfg.Server.Listen).WithField("upstream", cfg.Upstream.BaseURL).Info("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
