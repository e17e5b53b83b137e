package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/server"
)

var (
	servePort    int
	serveNoStore bool
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtractEnv("serve")
		if err != nil {
			return err
		}
		defer env.Close()

		extra := []server.Option{server.WithChecks(readinessChecks(env)...)}
		if !serveNoStore {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			extra = append(extra, server.WithRunStore(st))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.New(env.Pipeline, serverOptions(), extra...).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("env", cfg.Env),
			zap.Bool("cache", env.Cache != nil),
			zap.Bool("llm_configured", env.LLM.Configured()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// serverOptions maps config onto server.Options.
func serverOptions() server.Options {
	return server.Options{
		Env:              cfg.Env,
		CORSOrigins:      cfg.Server.CORSOrigins,
		BatchMaxSize:     cfg.Batch.MaxSize,
		BatchConcurrency: cfg.Batch.MaxConcurrent,
		MaxUploadBytes:   int64(cfg.PDF.MaxUploadMB) << 20,
	}
}

// readinessChecks probes the cache store and the model credentials.
func readinessChecks(env *extractEnv) []server.Check {
	checks := []server.Check{{
		Name:  "llm",
		Ready: "configured",
		Run: func(context.Context) error {
			if !env.LLM.Configured() {
				return eris.New("api key not configured")
			}
			return nil
		},
	}}

	if env.Cache == nil {
		checks = append(checks, server.Check{
			Name:  "redis",
			Ready: "disabled",
			Run:   func(context.Context) error { return nil },
		})
		return checks
	}
	return append(checks, server.Check{Name: "redis", Run: env.Cache.Ping})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "do not persist evaluation runs")
	rootCmd.AddCommand(serveCmd)
}
