package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vouchgraph/internal/config"
	"vouchgraph/internal/handler"
	"vouchgraph/internal/hub"
	"vouchgraph/internal/metrics"
	"vouchgraph/internal/notify"
	"vouchgraph/internal/scheduler"
	"vouchgraph/internal/service"
	"vouchgraph/internal/store"
	"vouchgraph/internal/watcher"
)

func serveCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph API, layout socket and embed page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.cfg, opts.cfgPath)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, cfgPath string) error {
	logger, level, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting vouchgraph server", zap.String("version", version), zap.String("config", cfgPath))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	collector := metrics.NewCollector("vouchgraph")
	bus := service.NewEventBus()
	svc := newGraphService(cfg, collector, logger)
	st := store.New(svc, bus, store.Options{Location: loc}, logger.Named("store"))

	engine := newEngine(cfg.Layout, st, bus, logger.Named("layout"))
	defer engine.Stop()

	tokens, err := openTokenStore(ctx, cfg.Notify)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer tokens.Close()
	logger.Info("Token store opened",
		zap.String("store", cfg.Notify.Store), zap.Bool("sealed", cfg.Notify.TokenKey != ""))

	sseHub := hub.New(logger.Named("hub"))
	go sseHub.Run(ctx)

	events := make(chan service.Event, 256)
	bus.Subscribe(events)
	defer bus.Unsubscribe(events)
	go relay(ctx, events, sseHub)

	sched := scheduler.New(st, scheduler.DefaultPollInterval, logger.Named("scheduler"))
	if err := sched.Reschedule(cfg.Refresh.Schedule); err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	embed := handler.NewEmbedHandler(st, cfg.Site, logger)

	if cfgPath != "" {
		w := watcher.New(cfgPath, func() {
			reload(cfgPath, sched, embed, level, logger)
		}, logger.Named("watcher"))
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	rt := &handler.Router{
		Graph:  handler.NewGraphHandler(st, logger),
		Layout: handler.NewLayoutHandler(st, engine, bus, logger),
		Notify: handler.NewNotifyHandler(
			notify.NewReceiver(tokens, newKeyVerifier(cfg, collector, logger.Named("appkeys")), logger.Named("webhook")),
			notify.NewSender(tokens, nil, cfg.Notify.DefaultTargetURL, logger.Named("sender")),
			logger,
		),
		Embed:       embed,
		Events:      sseHub,
		Metrics:     collector,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	}

	// streaming endpoints rule out a write timeout
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           rt.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := st.FetchGraphData(ctx); err != nil {
			logger.Warn("Initial graph fetch failed", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}

// reload applies the settings that can change without a restart
func reload(path string, sched *scheduler.Scheduler, embed *handler.EmbedHandler, level zap.AtomicLevel, logger *zap.Logger) {
	cfg, _, err := config.LoadFromPath(path)
	if err != nil {
		logger.Warn("Ignoring invalid config change", zap.String("path", path), zap.Error(err))
		return
	}

	if err := sched.Reschedule(cfg.Refresh.Schedule); err != nil {
		logger.Warn("Ignoring invalid refresh schedule", zap.Error(err))
	}
	embed.SetSite(cfg.Site)
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		logger.Warn("Ignoring invalid log level", zap.Error(err))
	}

	logger.Info("Config reloaded", zap.String("path", path),
		zap.String("schedule", sched.Schedule()), zap.Stringer("level", level))
}
