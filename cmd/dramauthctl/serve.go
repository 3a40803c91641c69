package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/dramauth/metrics/export/prometheus"
	"github.com/MrEthical07/dramauth/sweeper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the token sweeper and serve /metrics until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sw, err := sweeper.New(rt.engine, sweeper.Config{
		Interval:   cfg.Sweep.Interval,
		Cron:       cfg.Sweep.Cron,
		Timeout:    cfg.Sweep.Timeout,
		RunOnStart: true,
	}, logger)
	if err != nil {
		return err
	}
	sw.Start()
	defer func() {
		if err := sw.Shutdown(); err != nil {
			logger.Warn("sweeper shutdown", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewCollector(rt.engine).Handler())
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
