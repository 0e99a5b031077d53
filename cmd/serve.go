package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/api"
	"github.com/sells-group/costdb/internal/insight"
	"github.com/sells-group/costdb/internal/monitoring"
	"github.com/sells-group/costdb/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the output tables and run history as a read-only JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipeline(ctx, "serve", prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer env.Close()

		guard := pipeline.NewGuard(env.Pipeline)
		in := runInput("", "", "")

		if cfg.Server.Schedule != "" {
			sched, err := pipeline.NewScheduler(ctx, cfg.Server.Schedule, guard, in)
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
			zap.L().Info("scheduled runs enabled", zap.String("schedule", cfg.Server.Schedule))
		}

		var checker *monitoring.Checker
		if cfg.Monitoring.Enabled {
			checker = monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			stopChecker, err := checker.Start(ctx)
			if err != nil {
				return err
			}
			defer stopChecker()
		}

		s := api.New(ctx, api.Options{
			Store:          env.Store,
			Guard:          guard,
			Input:          in,
			Insights:       insight.New(env.Taxonomy),
			Checker:        checker,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           s.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// A canceled ctx aborts any background run at its next stage.
		guard.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
