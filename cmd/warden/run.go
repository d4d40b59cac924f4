package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/warden/pkg/api"
	"github.com/cuemby/warden/pkg/config"
	"github.com/cuemby/warden/pkg/engine"
	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/host"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/status"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/spf13/cobra"
)

const (
	collectInterval = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the warden daemon",
	Long: `Run the poll engine and the control API in the foreground.

The config file is watched; credential and log level changes apply
without a restart. Other changes need one.`,
	RunE: runDaemon,
}

func statusOptions(cfg *config.Config) status.Options {
	return status.Options{
		BaseURL:           cfg.Upstream.BaseURL,
		Credentials:       credentialsOf(cfg),
		BatchSize:         cfg.Upstream.BatchSize,
		RequestsPerMinute: cfg.Upstream.RequestsPerMinute,
		MaxRetries:        cfg.Upstream.MaxRetries,
		Backoff:           cfg.Upstream.Backoff,
		Timeout:           cfg.Upstream.Timeout,
		CacheTTL:          cfg.Upstream.CacheTTL,
		CategoryPageSize:  cfg.Upstream.CategoryPageSize,
	}
}

func credentialsOf(cfg *config.Config) status.Credentials {
	return status.Credentials{ClientID: cfg.Upstream.ClientID, Token: cfg.Upstream.Token}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	metrics.SetVersion(Version)
	logger := log.WithComponent("daemon")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	metrics.RegisterComponent(metrics.ComponentStore, true, "open")
	queue := storage.NewWriteQueue(store, cfg.Engine.WriteDelay)

	matcher, err := host.NewPageMatcher(cfg.Service.Host, cfg.Service.ChannelURL)
	if err != nil {
		store.Close()
		return err
	}

	bridge := host.NewBridge()
	broker := events.NewBroker()
	broker.Start()

	eng, err := engine.New(engine.Options{
		Store:       store,
		Queue:       queue,
		Status:      status.NewClient(statusOptions(cfg)),
		Credentials: credentialsOf(cfg),
		Surfaces:    bridge,
		Notifier:    bridge,
		Prompter:    bridge,
		HostEvents:  bridge.Events(),
		Matcher:     matcher,
		Broker:      broker,
		Config:      cfg.Engine,
	})
	if err != nil {
		store.Close()
		return err
	}

	servers := map[string]*api.Server{}
	control, err := api.NewServer(api.Options{Engine: eng, Store: store, Queue: queue, Bridge: bridge, Broker: broker})
	if err != nil {
		store.Close()
		return err
	}
	servers[cfg.ListenAddr] = control
	if cfg.OverlayAddr != "" {
		overlay, err := api.NewServer(api.Options{Engine: eng, Store: store, Queue: queue, Broker: broker, ReadOnly: true})
		if err != nil {
			store.Close()
			return err
		}
		servers[cfg.OverlayAddr] = overlay
	}

	collector := metrics.NewCollector(store, collectInterval)
	collector.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Engine stopped with error")
		}
	}()

	errCh := make(chan error, len(servers))
	for addr, srv := range servers {
		go func() {
			if err := srv.Start(addr); err != nil {
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()
	}

	go func() {
		if err := config.Watch(ctx, path, reloadConfig(ctx, eng)); err != nil {
			logger.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}()

	<-eng.Ready()
	logger.Info().
		Str("listen", cfg.ListenAddr).
		Str("overlay", cfg.OverlayAddr).
		Str("data_dir", cfg.DataDir).
		Msg("Warden is running")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Shutting down")
		stop()
	}

	// ending the broker closes open event streams so Shutdown can finish
	broker.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("API shutdown incomplete")
		}
	}

	<-engineDone
	collector.Stop()
	if err := queue.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("flush pending writes: %w", err))
	}
	if err := store.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close store: %w", err))
	}
	return runErr
}

// reloadConfig applies the parts of a changed config that can change live
func reloadConfig(ctx context.Context, eng *engine.Engine) func(*config.Config) {
	logger := log.WithComponent("config")
	return func(cfg *config.Config) {
		log.SetLevel(log.ParseLevel(cfg.Log.Level))
		if err := eng.SetCredentials(ctx, credentialsOf(cfg)); err != nil {
			logger.Warn().Err(err).Msg("Failed to apply reloaded credentials")
		}
	}
}
