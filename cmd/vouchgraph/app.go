package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vouchgraph/internal/adapter"
	"vouchgraph/internal/config"
	"vouchgraph/internal/domain"
	"vouchgraph/internal/hub"
	"vouchgraph/internal/layout"
	"vouchgraph/internal/metrics"
	"vouchgraph/internal/repository"
	"vouchgraph/internal/repository/memory"
	redisstore "vouchgraph/internal/repository/redis"
	"vouchgraph/internal/repository/sqlite"
	"vouchgraph/internal/service"
	"vouchgraph/internal/store"
)

// newGraphService wires the upstream clients into a graph service. A nil
// collector leaves the clients unobserved.
func newGraphService(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) *service.GraphService {
	subgraph := adapter.NewSubgraphClient(adapter.SubgraphConfig{
		Endpoint: cfg.Upstream.SubgraphURL,
		Timeout:  cfg.Upstream.Timeout.Duration(),
		StatsRPS: cfg.Upstream.StatsRPS,
	}, logger.Named("subgraph"))

	profiles := adapter.NewProfileClient(adapter.ProfileConfig{
		Endpoint: cfg.Upstream.ProfilesURL,
		APIKey:   cfg.Upstream.APIKey,
		Timeout:  cfg.Upstream.Timeout.Duration(),
	}, logger.Named("profiles"))

	svc := service.NewGraphService(subgraph, subgraph, profiles, service.Options{
		EventLimit:       cfg.Upstream.EventLimit,
		StatsConcurrency: cfg.Upstream.StatsConcurrency,
	}, logger.Named("graph"))

	if collector != nil {
		subgraph.SetObserver(collector)
		profiles.SetObserver(collector)
		svc.SetObserver(collector)
	}
	return svc
}

// newKeyVerifier checks webhook signers against the configured hub
func newKeyVerifier(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) *adapter.AppKeyClient {
	keys := adapter.NewAppKeyClient(adapter.AppKeyConfig{
		HubURL:  cfg.Notify.HubURL,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: cfg.Upstream.Timeout.Duration(),
	}, logger)
	if collector != nil {
		keys.SetObserver(collector)
	}
	return keys
}

func layoutConfig(cfg config.LayoutConfig) layout.Config {
	lc := layout.DefaultConfig()
	lc.Width = cfg.Width
	lc.Height = cfg.Height
	lc.LargeGraphThreshold = cfg.LargeGraphThreshold
	lc.WarmupTicks = cfg.WarmupTicks
	lc.TickInterval = cfg.TickInterval.Duration()
	return lc
}

// newEngine creates a layout engine that follows the store's filtered
// graph, reports through the bus and records drag pins in the store
func newEngine(cfg config.LayoutConfig, st *store.Store, bus *service.EventBus, logger *zap.Logger) *layout.Engine {
	engine := layout.NewEngine(layoutConfig(cfg), logger)
	st.OnViewChange(engine.Load)
	engine.OnTick(func(positions []domain.NodePosition) {
		bus.Publish(service.Event{Type: service.EventLayoutTick, Payload: positions})
	})
	engine.OnSettle(func() {
		bus.Publish(service.Event{Type: service.EventLayoutSettled})
	})
	engine.OnPin(func(pin domain.NodePosition) {
		if err := st.PinNode(pin.NodeID, pin.X, pin.Y); err != nil {
			logger.Warn("Failed to record pin", zap.String("node", pin.NodeID), zap.Error(err))
		}
	})
	return engine
}

// openTokenStore opens the notification token store named by cfg, sealing
// tokens when a token key is configured
func openTokenStore(ctx context.Context, cfg config.NotifyConfig) (repository.TokenStore, error) {
	var (
		tokens repository.TokenStore
		err    error
	)
	switch cfg.Store {
	case config.StoreMemory, "":
		tokens = memory.New()
	case config.StoreSQLite:
		tokens, err = sqlite.New(cfg.SQLitePath)
	case config.StoreRedis:
		tokens, err = redisstore.New(ctx, cfg.RedisAddr, redisstore.DefaultPrefix)
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Store)
	}
	if err != nil || cfg.TokenKey == "" {
		return tokens, err
	}

	key, err := repository.ParseKey(cfg.TokenKey)
	if err != nil {
		tokens.Close()
		return nil, err
	}
	sealed, err := repository.Seal(tokens, key)
	if err != nil {
		tokens.Close()
		return nil, err
	}
	return sealed, nil
}

// relay feeds bus events to the SSE hub. It returns when ctx is done.
func relay(ctx context.Context, events <-chan service.Event, sseHub *hub.Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			sseHub.Broadcast(ev)
		}
	}
}
