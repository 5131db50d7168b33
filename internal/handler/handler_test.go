package handler

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vouchgraph/internal/adapter"
	"vouchgraph/internal/config"
	"vouchgraph/internal/domain"
	"vouchgraph/internal/layout"
	"vouchgraph/internal/metrics"
	"vouchgraph/internal/notify"
	"vouchgraph/internal/repository/memory"
	"vouchgraph/internal/service"
	"vouchgraph/internal/store"
)

// fakeSource serves graphs or errors in order, repeating the last one
type fakeSource struct {
	mu      sync.Mutex
	results []fakeResult
}

type fakeResult struct {
	g   domain.GraphData
	err error
}

func (f *fakeSource) GetVouchGraph(context.Context) (domain.GraphData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.g, r.err
}

func sampleGraph() domain.GraphData {
	alice := domain.NewVouchNode("0xaaa")
	alice.Name = "alice"
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

type testEnv struct {
	server   *httptest.Server
	store    *store.Store
	engine   *layout.Engine
	tokens   *memory.Store
	signer   ed25519.PrivateKey
	pub      ed25519.PublicKey
	delivery *httptest.Server
	sent     chan []byte
	metrics  *metrics.Collector
}

func newTestEnv(t *testing.T, results ...fakeResult) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	if len(results) == 0 {
		results = []fakeResult{{g: sampleGraph()}}
	}

	bus := service.NewEventBus()
	st := store.New(&fakeSource{results: results}, bus, store.Options{Location: time.UTC}, logger)

	cfg := layout.DefaultConfig()
	cfg.LargeGraphThreshold = 1
	engine := layout.NewEngine(cfg, logger)
	t.Cleanup(engine.Stop)

	env := &testEnv{store: st, engine: engine, tokens: memory.New(), sent: make(chan []byte, 16)}

	env.delivery = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		env.sent <- body
		w.Write([]byte(`{"result":{"successfulTokens":["t"]}}`))
	}))
	t.Cleanup(env.delivery.Close)

	var err error
	env.pub, env.signer, err = ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	env.metrics = metrics.NewCollector("test")
	rt := &Router{
		Graph:  NewGraphHandler(st, logger),
		Layout: NewLayoutHandler(st, engine, bus, logger),
		Notify: NewNotifyHandler(
			notify.NewReceiver(env.tokens, notify.AllowAllKeys, logger),
			notify.NewSender(env.tokens, nil, "https://vouch.example", logger),
			logger,
		),
		Embed:   NewEmbedHandler(st, config.DefaultConfig().Site, logger),
		Metrics: env.metrics,
		Logger:  logger,
	}
	env.server = httptest.NewServer(rt.Setup())
	t.Cleanup(env.server.Close)
	return env
}

// load fetches the graph and lays it out
func (e *testEnv) load(t *testing.T) {
	t.Helper()
	require.NoError(t, e.store.FetchGraphData(context.Background()))
	e.engine.Load(e.store.FilteredData(), e.store.Pins())
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestGraphEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/graph/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[store.State](t, resp)
	assert.Equal(t, 3, state.NodeCount)
	assert.False(t, state.Loading)

	g := decode[domain.GraphData](t, env.do(t, http.MethodGet, "/api/graph", ""))
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Links, 2)

	t.Run("search", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/search", `{"term":"bob"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		filtered := decode[domain.GraphData](t, resp)
		ids := []string{}
		for _, n := range filtered.Nodes {
			ids = append(ids, n.ID)
		}
		assert.Equal(t, []string{"0xaaa", "0xbbb"}, ids)

		stats := decode[domain.GraphStats](t, env.do(t, http.MethodGet, "/api/stats", ""))
		assert.Equal(t, 2, stats.NodeCount)

		env.do(t, http.MethodPut, "/api/search", `{"term":""}`)
		filtered = decode[domain.GraphData](t, env.do(t, http.MethodGet, "/api/graph/filtered", ""))
		assert.Len(t, filtered.Nodes, 3)
	})

	t.Run("bad search body", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/search", `{`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		errResp := decode[ErrorResponse](t, resp)
		assert.Equal(t, "Invalid request body", errResp.Error)
	})

	t.Run("selection toggles", func(t *testing.T) {
		state := decode[store.State](t, env.do(t, http.MethodPost, "/api/selection/0xAAA", ""))
		require.NotNil(t, state.SelectedNode)
		assert.Equal(t, "0xaaa", state.SelectedNode.ID)
		assert.True(t, state.ShowDetailPanel)

		conns := decode[[]ConnectionView](t, env.do(t, http.MethodGet, "/api/connections", ""))
		require.Len(t, conns, 2)
		assert.Equal(t, "0xccc", conns[0].ID)
		assert.Equal(t, domain.DirectionIncoming, conns[0].Direction)
		assert.Equal(t, "1/1/1970, 12:05:00 AM", conns[0].FormattedTime)

		state = decode[store.State](t, env.do(t, http.MethodPost, "/api/selection/0xaaa", ""))
		assert.Nil(t, state.SelectedNode)
		assert.False(t, state.ShowDetailPanel)

		env.do(t, http.MethodPost, "/api/selection/0xbbb", "")
		state = decode[store.State](t, env.do(t, http.MethodDelete, "/api/selection", ""))
		assert.Nil(t, state.SelectedNode)

		conns = decode[[]ConnectionView](t, env.do(t, http.MethodGet, "/api/connections", ""))
		assert.Empty(t, conns)
	})

	t.Run("unknown node", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/selection/0xnope", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("export", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/export/json", "")
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		exported := decode[domain.GraphData](t, resp)
		assert.Len(t, exported.Nodes, 3)

		resp = env.do(t, http.MethodGet, "/api/export/yaml", "")
		assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "source: 0xaaa")

		resp = env.do(t, http.MethodGet, "/api/export/ansible", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("rate limit idle", func(t *testing.T) {
		view := decode[map[string]interface{}](t, env.do(t, http.MethodGet, "/api/rate-limit", ""))
		assert.Nil(t, view["remaining"])
		assert.Equal(t, false, view["isRateLimited"])
	})
}

func TestRefresh_FailureReportedInState(t *testing.T) {
	env := newTestEnv(t, fakeResult{err: &service.GraphBuildError{Err: &adapter.NetworkError{Op: "events", StatusCode: 502}}})

	resp := env.do(t, http.MethodPost, "/api/graph/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[store.State](t, resp)
	require.NotNil(t, state.Error)
	assert.Contains(t, *state.Error, "failed to build vouch graph")
}

func TestRateLimitRetry(t *testing.T) {
	rl := &adapter.RateLimitError{
		NetworkError: adapter.NetworkError{Op: "events", StatusCode: http.StatusTooManyRequests},
		RetryAfter:   time.Hour,
	}
	env := newTestEnv(t, fakeResult{err: rl}, fakeResult{g: sampleGraph()})

	env.do(t, http.MethodPost, "/api/graph/refresh", "")

	view := decode[map[string]interface{}](t, env.do(t, http.MethodGet, "/api/rate-limit", ""))
	assert.Equal(t, true, view["isRateLimited"])
	assert.Equal(t, "3600s", view["remaining"])
	assert.Equal(t, false, view["canRetry"])

	resp := env.do(t, http.MethodPost, "/api/rate-limit/retry", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	errResp := decode[ErrorResponse](t, resp)
	assert.Equal(t, "retry in 3600s", errResp.Details)
}

func TestLayoutEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.load(t)

	view := decode[PositionsView](t, env.do(t, http.MethodGet, "/api/layout/positions", ""))
	assert.Equal(t, layout.StateRendered, view.State)
	assert.Len(t, view.Positions, 3)
	assert.Equal(t, 800.0, view.Width)
	assert.Len(t, view.Styles.Nodes, 3)

	resp := env.do(t, http.MethodGet, "/api/render.svg", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "<svg")
	assert.Contains(t, string(body), "alice")

	resp = env.do(t, http.MethodDelete, "/api/layout/pins/0xaaa", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, env.store.PinNode("0xaaa", 10, 20))
	resp = env.do(t, http.MethodDelete, "/api/layout/pins/0xAAA", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, env.store.Pins())
}

// envelope signs a webhook payload for fid
func (e *testEnv) envelope(t *testing.T, fid int64, payload map[string]interface{}) string {
	t.Helper()
	header, _ := json.Marshal(map[string]interface{}{"fid": fid, "type": "app_key", "key": "0x" + hex.EncodeToString(e.pub)})
	body, _ := json.Marshal(payload)
	h := base64.RawURLEncoding.EncodeToString(header)
	p := base64.RawURLEncoding.EncodeToString(body)
	sig := base64.RawURLEncoding.EncodeToString(ed25519.Sign(e.signer, []byte(h+"."+p)))
	env, _ := json.Marshal(notify.Envelope{Header: h, Payload: p, Signature: sig})
	return string(env)
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp := env.do(t, http.MethodPut, "/api/notifications", `{"title":"t","body":"b"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no users yet")

	resp = env.do(t, http.MethodPost, "/api/webhook", env.envelope(t, 7, map[string]interface{}{
		"event":               notify.EventFrameAdded,
		"notificationDetails": map[string]string{"token": "tok-7", "url": env.delivery.URL},
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"success": true}, decode[map[string]bool](t, resp))

	info, err := env.tokens.Get(ctx, "7")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "tok-7", info.Token)

	t.Run("send", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/notifications", `{"fid":7,"title":"hello","body":"world"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[SendResponse](t, resp)
		assert.True(t, out.Success)
		assert.JSONEq(t, `{"result":{"successfulTokens":["t"]}}`, string(out.Data))

		var delivered map[string]interface{}
		require.NoError(t, json.Unmarshal(<-env.sent, &delivered))
		assert.Equal(t, []interface{}{"tok-7"}, delivered["tokens"])
		assert.Equal(t, "https://vouch.example", delivered["notification"].(map[string]interface{})["targetUrl"])
	})

	t.Run("send by string fid", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/notifications", `{"fid":"7","title":"hello","body":"world"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		<-env.sent
	})

	t.Run("missing fields", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/notifications", `{"fid":7,"title":"hello"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Missing required fields", decode[ErrorResponse](t, resp).Error)
	})

	t.Run("not enabled", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/notifications", `{"fid":8,"title":"hello","body":"world"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("broadcast", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/notifications", `{"title":"t","body":"b","targetUrl":"https://custom.example"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[map[string]interface{}](t, resp)
		assert.Equal(t, true, out["success"])
		assert.Equal(t, 1.0, out["totalUsers"])
		assert.Len(t, out["results"], 1)
		<-env.sent
	})

	t.Run("bad signature", func(t *testing.T) {
		body := env.envelope(t, 7, map[string]interface{}{"event": notify.EventFrameRemoved})
		body = strings.Replace(body, `"signature":"`, `"signature":"AAAA`, 1)
		resp := env.do(t, http.MethodPost, "/api/webhook", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		info, _ := env.tokens.Get(ctx, "7")
		assert.NotNil(t, info, "rejected events change nothing")
	})

	t.Run("removal", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/webhook", env.envelope(t, 7, map[string]interface{}{"event": notify.EventNotificationsDisabled}))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		info, _ := env.tokens.Get(ctx, "7")
		assert.Nil(t, info)
	})
}

func TestEmbed(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/embed", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	assert.Contains(t, page, `<meta name="fc:frame"`)
	assert.Contains(t, page, "launch_frame")
	assert.Contains(t, page, `<meta property="og:title" content="Union Voucher Graph">`)
	assert.NotContains(t, page, "accounts")

	env.load(t)
	body, _ = io.ReadAll(env.do(t, http.MethodGet, "/embed", "").Body)
	assert.Contains(t, string(body), "3 accounts, 2 vouches")
}

func TestNewFrameEmbed(t *testing.T) {
	site := config.DefaultConfig().Site
	raw, err := json.Marshal(NewFrameEmbed(site))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"version": "next",
		"imageUrl": "https://union-vouch.aipop.fun/opengraph-image.png",
		"button": {
			"title": "Explore Network",
			"action": {
				"type": "launch_frame",
				"url": "https://union-vouch.aipop.fun",
				"name": "Union Voucher Graph",
				"splashImageUrl": "https://union-vouch.aipop.fun/logo.png",
				"splashBackgroundColor": "#3b82f6"
			}
		}
	}`, string(raw))
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `test_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestFIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    FID
		wantErr bool
	}{
		{`42`, "42", false},
		{`"42"`, "42", false},
		{`" 42 "`, "42", false},
		{`null`, "", false},
		{`"abc"`, "", true},
		{`-1`, "", true},
		{`4.2`, "", true},
	}
	for _, tt := range tests {
		var f FID
		err := json.Unmarshal([]byte(tt.in), &f)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, f, tt.in)
	}
}

func TestLayoutSocket(t *testing.T) {
	env := newTestEnv(t)
	env.load(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/layout"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func(want string) map[string]interface{} {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var msg map[string]interface{}
			require.NoError(t, conn.ReadJSON(&msg))
			if msg["type"] == want {
				return msg
			}
		}
	}

	snapshot := read(MsgSnapshot)
	payload := snapshot["payload"].(map[string]interface{})
	assert.Len(t, payload["positions"], 3)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgZoom, Factor: 2, X: 0, Y: 0}))
	transform := read(MsgTransform)["payload"].(map[string]interface{})
	assert.Equal(t, 2.0, transform["k"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgPan, DX: 5, DY: 0}))
	transform = read(MsgTransform)["payload"].(map[string]interface{})
	assert.Equal(t, 5.0, transform["x"])

	// a click far from every node clears the selection
	require.NoError(t, env.store.SelectNode("0xaaa"))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgPress, X: -5000, Y: -5000}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgRelease, X: -5000, Y: -5000}))
	interaction := read(MsgInteraction)["payload"].(map[string]interface{})
	assert.Equal(t, string(layout.InteractionClear), interaction["kind"])
	assert.Eventually(t, func() bool { return env.store.SelectedNode() == nil }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)))
	errMsg := read(MsgError)
	assert.NotNil(t, errMsg["payload"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, bytes.Repeat([]byte("x"), 10)))
	read(MsgError)
}

func TestWebhook_KeyVerification(t *testing.T) {
	env := newTestEnv(t)
	logger := zap.NewNop()

	tests := []struct {
		name     string
		verifier notify.KeyVerifier
		want     int
	}{
		{"registered key", notify.AllowAllKeys, http.StatusOK},
		{"unregistered key", notify.DenyAllKeys, http.StatusUnauthorized},
		{"no verifier", nil, http.StatusUnauthorized},
		{"hub unreachable", notify.KeyVerifierFunc(func(context.Context, int64, []byte) (bool, error) {
			return false, &adapter.NetworkError{Op: "verify app key", StatusCode: http.StatusServiceUnavailable}
		}), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := memory.New()
			h := NewNotifyHandler(
				notify.NewReceiver(tokens, tt.verifier, logger),
				notify.NewSender(tokens, nil, "https://vouch.example", logger),
				logger,
			)
			body := env.envelope(t, 3, map[string]interface{}{
				"event":               notify.EventNotificationsEnabled,
				"notificationDetails": map[string]string{"token": "tok", "url": "https://notify.example/a"},
			})

			rec := httptest.NewRecorder()
			h.Webhook(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body)))

			assert.Equal(t, tt.want, rec.Code)
			info, err := tokens.Get(context.Background(), "3")
			require.NoError(t, err)
			assert.Equal(t, tt.want == http.StatusOK, info != nil)
		})
	}
}
