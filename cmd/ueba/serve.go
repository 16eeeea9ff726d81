package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nihams/ueba/internal/bucketing"
	"github.com/nihams/ueba/internal/client"
	"github.com/nihams/ueba/internal/handler"
	"github.com/nihams/ueba/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only JSON API over run artifacts",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer util.Sync()

	buckets := bucketing.NewManager(cfg.Bucketing)

	// The cache is optional; without it every lookup hits the snapshot.
	var redisClient *client.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = client.NewRedisClient(cfg, util.Get())
		if err != nil {
			util.Warn("Redis unavailable, serving from snapshot only", util.ErrorField(err))
		} else {
			defer redisClient.Close()
		}
	}

	analyticsHandler := handler.NewAnalyticsHandler(cfg, redisClient, buckets, util.Get())
	router := handler.NewRouter(analyticsHandler, util.Get())

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	util.Info("Server started",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
	)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-signalChan:
		util.Info("Received shutdown signal", util.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		return err
	}
	util.Info("Server shutdown completed")
	return nil
}
