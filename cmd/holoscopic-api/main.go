package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/markothell/holoscopic-websocket-server/internal/activity"
	"github.com/markothell/holoscopic-websocket-server/internal/config"
	"github.com/markothell/holoscopic-websocket-server/internal/database"
	"github.com/markothell/holoscopic-websocket-server/internal/logging"
	"github.com/markothell/holoscopic-websocket-server/internal/realtime"
	"github.com/markothell/holoscopic-websocket-server/internal/server"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "holoscopic-api",
		Short: "Holoscopic realtime participation backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("max-connections", defaults.GetInt("realtime.max_connections"), "Concurrent connection ceiling")
	cmd.PersistentFlags().Float64("watermark-fraction", defaults.GetFloat64("realtime.watermark_fraction"), "Soft capacity watermark as a fraction of the ceiling")
	cmd.PersistentFlags().Int("stats-interval-seconds", defaults.GetInt("realtime.stats_interval_seconds"), "Janitor stats sweep interval")
	cmd.PersistentFlags().Int("reconcile-interval-seconds", defaults.GetInt("realtime.reconcile_interval_seconds"), "Janitor stale-connection reconciliation interval")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "realtime.max_connections", "max-connections")
	bindFlag(cmd, "realtime.watermark_fraction", "watermark-fraction")
	bindFlag(cmd, "realtime.stats_interval_seconds", "stats-interval-seconds")
	bindFlag(cmd, "realtime.reconcile_interval_seconds", "reconcile-interval-seconds")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := activity.NewGormStore(db, time.Now)
	if err != nil {
		return err
	}

	registry := realtime.NewRegistry(logger)
	hub := realtime.NewHub(logger)
	governor := realtime.NewGovernor(appConfig.MaxConnections, appConfig.WatermarkFraction, logger)
	broadcaster := realtime.NewBroadcaster(registry, hub, logger)

	engine, err := activity.NewEngine(activity.EngineConfig{
		Store:       store,
		Broadcaster: broadcaster,
		Connections: registry,
		IDProvider:  activity.NewUUIDProvider(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	janitor := realtime.NewJanitor(realtime.JanitorConfig{
		Registry:          registry,
		Live:              hub,
		Cleaner:           engine,
		Inflight:          engine,
		Governor:          governor,
		StatsInterval:     appConfig.StatsInterval,
		ReconcileInterval: appConfig.ReconcileInterval,
		Logger:            logger,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Engine:     engine,
		Registry:   registry,
		Hub:        hub,
		Governor:   governor,
		IDProvider: activity.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := janitor.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("janitor exited", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
