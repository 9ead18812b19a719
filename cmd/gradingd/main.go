package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	api "github.com/prepgrid/gradecore/internal/api/http"
	"github.com/prepgrid/gradecore/internal/config"
	"github.com/prepgrid/gradecore/internal/db"
	"github.com/prepgrid/gradecore/internal/integrity"
	"github.com/prepgrid/gradecore/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gradingd",
		Short: "Deterministic exam grading service",
	}

	serve := serveCmd()
	root.AddCommand(serve, verifyCmd())

	// Bare `gradingd` serves.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the grading HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("http-addr", "a", ":8080", "HTTP listen address")
	f.String("mode", "offline", "Deployment mode (offline, online)")
	f.String("db-driver", "sqlite", "Result store driver (sqlite, postgres)")
	f.String("db-dsn", "", "Result store DSN (empty = driver default)")
	f.String("receipt-secret", "", "HMAC secret for result receipts")
	f.Duration("rule-cache-ttl", 5*time.Minute, "TTL for resolved marking rules")
	f.Int("mailbox-size", 64, "Engine mailbox depth per session")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <result-id-or-ref>",
		Short: "Re-hash a stored result and check its digest",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	f := cmd.Flags()
	f.String("db-driver", "sqlite", "Result store driver (sqlite, postgres)")
	f.String("db-dsn", "", "Result store DSN (empty = driver default)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

// viperForCmd binds a command's flags into a fresh viper instance;
// config.Load layers GRADECORE_* environment variables underneath, so
// flags win over env and env wins over defaults.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	return v
}

func setupLogging(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.ToLower(cfg.LogFormat) == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	return store.NewSQLStore(dbh, cfg.DBDriver), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viperForCmd(cmd))
	log := setupLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Mode == config.ModeOnline && cfg.ReceiptSecret == "dev-receipt-secret" {
		log.Warn("running online with the development receipt secret")
	}

	svc := api.NewService(st, []byte(cfg.ReceiptSecret), cfg.RuleCacheTTL, cfg.MailboxSize, log)
	defer svc.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/", svc.Routes())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("grading server listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutCancel()
		return srv.Shutdown(shutCtx)
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := config.Load(viperForCmd(cmd))
	log := setupLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	key := args[0]
	sr, err := st.GetResult(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		sr, err = st.GetResultByRef(ctx, key)
	}
	if err != nil {
		return fmt.Errorf("load result %q: %w", key, err)
	}

	if err := integrity.NewValidator().Verify(sr.Result, sr.Digest); err != nil {
		log.Error("digest mismatch", "result_id", sr.Result.ID, "err", err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "result %s verified (digest %s)\n", sr.Result.ID, sr.Digest)
	return nil
}
