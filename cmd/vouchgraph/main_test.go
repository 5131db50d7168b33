package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vouchgraph/internal/codec"
	"vouchgraph/internal/config"
	"vouchgraph/internal/domain"
	"vouchgraph/internal/hub"
	"vouchgraph/internal/layout"
	"vouchgraph/internal/repository"
	"vouchgraph/internal/service"
	"vouchgraph/internal/store"
)

type staticSource struct{ g domain.GraphData }

func (s staticSource) GetVouchGraph(context.Context) (domain.GraphData, error) {
	return s.g, nil
}

func sampleGraph() domain.GraphData {
	alice := domain.NewVouchNode("0xaaa")
	alice.Name = "alice"
	alice.VouchesGiven = 1
	bob := domain.NewVouchNode("0xbbb")
	bob.Name = "bob"
	carol := domain.NewVouchNode("0xccc")
	carol.Name = "carol"
	g := domain.GraphData{
		Nodes: []domain.VouchNode{alice, bob, carol},
		Links: []domain.VouchLink{
			domain.NewVouchLink("0xaaa", "0xbbb", "100000000", 100),
			domain.NewVouchLink("0xccc", "0xaaa", "300000000", 300),
		},
	}
	g.RecomputeSizes()
	return g
}

// writeConfig saves cfg to a temp file and returns its path
func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Log.Level = "error"
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(t.TempDir(), "vouchgraph.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	logger, level, err := newLogger(config.LogConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, "warn", level.String())

	require.NoError(t, level.UnmarshalText([]byte("debug")))
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, _, err = newLogger(config.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestLayoutConfig(t *testing.T) {
	lc := layoutConfig(config.LayoutConfig{
		Width:               1024,
		Height:              768,
		LargeGraphThreshold: 50,
		WarmupTicks:         120,
		TickInterval:        config.Duration(20 * time.Millisecond),
	})
	assert.Equal(t, 1024.0, lc.Width)
	assert.Equal(t, 768.0, lc.Height)
	assert.Equal(t, 50, lc.LargeGraphThreshold)
	assert.Equal(t, 120, lc.WarmupTicks)
	assert.Equal(t, 20*time.Millisecond, lc.TickInterval)
	assert.Equal(t, layout.DefaultConfig().SettleTimeout, lc.SettleTimeout)
}

func TestOpenTokenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openTokenStore(ctx, config.NotifyConfig{Store: config.StoreMemory})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = openTokenStore(ctx, config.NotifyConfig{Store: config.StoreSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "1", domain.NotificationInfo{Token: "t", URL: "https://example.com"}))
	require.NoError(t, s.Close())

	_, err = openTokenStore(ctx, config.NotifyConfig{Store: "etcd"})
	assert.Error(t, err)

	s, err = openTokenStore(ctx, config.NotifyConfig{Store: config.StoreMemory, TokenKey: strings.Repeat("0f", 32)})
	require.NoError(t, err)
	require.IsType(t, &repository.SealedStore{}, s)
	require.NoError(t, s.Save(ctx, "1", domain.NotificationInfo{Token: "t", URL: "https://example.com"}))
	info, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "t", info.Token)

	_, err = openTokenStore(ctx, config.NotifyConfig{Store: config.StoreMemory, TokenKey: "abcd"})
	assert.Error(t, err)
}

func TestNewEngine_FollowsStoreWithoutBusSubscribers(t *testing.T) {
	logger := zap.NewNop()
	bus := service.NewEventBus()
	st := store.New(staticSource{sampleGraph()}, bus, store.Options{}, logger)

	cfg := config.DefaultConfig().Layout
	cfg.LargeGraphThreshold = 1
	engine := newEngine(cfg, st, bus, logger)
	t.Cleanup(engine.Stop)

	// a full subscriber drops every bus event
	full := make(chan service.Event)
	bus.Subscribe(full)
	defer bus.Unsubscribe(full)

	require.NoError(t, st.FetchGraphData(context.Background()))
	assert.Len(t, engine.Positions(), 3)

	st.SetSearchTerm("carol")
	assert.Len(t, engine.Positions(), 2)

	st.SetSearchTerm("")
	assert.Len(t, engine.Positions(), 3)
}

func TestRelay_ForwardsToHub(t *testing.T) {
	logger := zap.NewNop()
	sseHub := hub.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sseHub.Run(ctx)

	srv := httptest.NewServer(sseHub)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "?types=graph_loaded")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return sseHub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	events := make(chan service.Event, 1)
	go relay(ctx, events, sseHub)
	events <- service.Event{Type: service.EventGraphLoaded, Payload: map[string]int{"nodes": 3}}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			assert.Equal(t, "event: graph_loaded\n", line)
			return
		}
	}
}

func TestNewEngine_DragPinsInStore(t *testing.T) {
	logger := zap.NewNop()
	st := store.New(staticSource{sampleGraph()}, service.NewEventBus(), store.Options{}, logger)
	require.NoError(t, st.FetchGraphData(context.Background()))

	cfg := config.DefaultConfig().Layout
	cfg.LargeGraphThreshold = 1
	engine := newEngine(cfg, st, service.NewEventBus(), logger)
	t.Cleanup(engine.Stop)
	engine.Load(st.FilteredData(), st.Pins())

	p := engine.Positions()[0]
	screen := engine.Transform()
	x, y := screen.Apply(p.X, p.Y)
	engine.Press(x, y)
	engine.Move(x+40, y+40)
	in := engine.Release(x+40, y+40)

	require.Equal(t, layout.InteractionPin, in.Kind)
	_, pinned := st.Pins()[in.NodeID]
	assert.True(t, pinned)
}

func TestStatsCommand_FromFile(t *testing.T) {
	input := filepath.Join(t.TempDir(), "graph.json")
	f, err := os.Create(input)
	require.NoError(t, err)
	c, _ := codec.ByFormat("json")
	require.NoError(t, c.Export(sampleGraph(), f))
	require.NoError(t, f.Close())

	out, err := run(t, "--config", writeConfig(t, nil), "stats", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "3 accounts, 2 vouches")
	assert.Contains(t, out, "Top vouchers")
	assert.Contains(t, out, "alice")
}

func TestStatsCommand_UnknownInputFormat(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t, nil), "stats", "--input", "graph.csv")
	assert.Error(t, err)
}

func TestSnapshotCommand(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OperationName string `json:"operationName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.OperationName {
		case "GetClubEvents":
			w.Write([]byte(`{"data":{"clubEvents":[
				{"type":"VOUCHED","timestamp":"100","amount":"5000000","account":{"id":"0xA"},"other":{"id":"0xB"}}
			]}}`))
		default:
			w.Write([]byte(`{"data":{"account":null}}`))
		}
	}))
	defer upstream.Close()

	cfgPath := writeConfig(t, func(c *config.Config) {
		c.Upstream.SubgraphURL = upstream.URL
		c.Upstream.ProfilesURL = ""
		c.Upstream.StatsRPS = 0
	})

	output := filepath.Join(t.TempDir(), "out.yaml")
	_, err := run(t, "--config", cfgPath, "snapshot", "--format", "yaml", "--output", output)
	require.NoError(t, err)

	g, err := readGraph(output)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	require.Len(t, g.Links, 1)
	assert.Equal(t, "0xa", g.Links[0].Source.ID)

	_, err = run(t, "--config", cfgPath, "snapshot", "--format", "xml")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vouchgraph.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	cfg, _, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAddr, cfg.Server.Addr)

	_, err = run(t, "config", "init", path)
	assert.Error(t, err, "refuses to overwrite")

	_, err = run(t, "config", "init", path, "--force")
	assert.NoError(t, err)
}

func TestNewKeyVerifier(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Notify.HubURL = srv.URL
	cfg.Upstream.APIKey = "neynar"

	ok, err := newKeyVerifier(cfg, nil, zap.NewNop()).VerifyAppKey(context.Background(), 3, []byte{1, 2})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "neynar", gotKey)
}
