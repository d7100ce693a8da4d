package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/deeplearn/internal/api"
	"github.com/abhisek/deeplearn/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := metrics.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		a, cleanup, err := newApp(cmd, m)
		if err != nil {
			return err
		}
		defer cleanup()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			a.cfg.Server.Addr = addr
		}
		if a.cfg.Server.Mode != "" {
			gin.SetMode(a.cfg.Server.Mode)
		}

		tokens, err := api.NewTokens(a.cfg.Auth.Secret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}

		router := api.NewRouter(api.Deps{
			Catalog:     a.catalog,
			Ledger:      a.ledger,
			Submissions: a.submissions,
			Quizzes:     a.quizzes,
			Assistant:   a.assistant,
			Discussions: a.discussions,
			Tokens:      tokens,
			Metrics:     m,
			Logger:      a.log,
			RateLimit:   a.cfg.RateLimit.PerMinute,
			Burst:       a.cfg.RateLimit.Burst,
			RefreshWait: 3 * time.Second,
		})

		srv := &http.Server{
			Addr:         a.cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			a.log.Info("server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		a.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if err := a.ledger.Wait(shutdownCtx); err != nil {
			a.log.Warn("recommendation refreshes still running at exit", zap.Error(err))
		}
		a.log.Info("server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
