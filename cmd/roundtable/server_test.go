package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/llm/providers"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/testutil"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

var namespaceSeq uint64

// newTestCollector 每次使用独立命名空间，避免重复注册到默认 registry
func newTestCollector(t *testing.T) (*metrics.Collector, string) {
	ns := fmt.Sprintf("cmd_test_%d", atomic.AddUint64(&namespaceSeq, 1))
	return metrics.NewCollector(ns, zaptest.NewLogger(t)), ns
}

// fakeLLM 模拟 OpenAI 兼容的补全端点
func fakeLLM(t *testing.T, content string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(providers.OpenAICompatResponse{
			ID:    fmt.Sprintf("resp-%d", calls.Load()),
			Model: "test-model",
			Choices: []providers.OpenAICompatChoice{
				{Index: 0, FinishReason: "stop", Message: providers.OpenAICompatMessage{Role: "assistant", Content: content}},
			},
			Usage: &providers.OpenAICompatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(llmURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Server.RateLimitRPS = 0
	cfg.Store.Type = "memory"
	cfg.LLM.Provider = "test"
	cfg.LLM.BaseURL = llmURL
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.Timeout = 5 * time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	collector, _ := newTestCollector(t)
	app, err := NewApp(context.Background(), cfg, collector, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path string, header http.Header) (int, apiEnvelope) {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var env apiEnvelope
	if w.Body.Len() > 0 && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

// =============================================================================
// 🖥️ App 组装
// =============================================================================

func TestApp_TurnThroughFullStack(t *testing.T) {
	llm, calls := fakeLLM(t, "Has anyone seen the stapler?")
	app := newTestApp(t, testConfig(llm.URL))
	h := app.Handler()

	code, env := do(t, h, http.MethodPost, "/api/v1/conversation/turn", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	var res struct {
		Status  string `json:"status"`
		Message struct {
			Content    string `json:"content"`
			SpeakerKey string `json:"speakerKey"`
		} `json:"message"`
		NextSpeaker string `json:"nextSpeaker"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "success", res.Status)
	assert.Contains(t, res.Message.Content, "stapler")
	assert.NotEmpty(t, res.Message.SpeakerKey)
	assert.NotEmpty(t, res.NextSpeaker)
	assert.NotEqual(t, res.Message.SpeakerKey, res.NextSpeaker)
	assert.Equal(t, int64(1), calls.Load())

	// 冷却期内不再调用模型
	code, env = do(t, h, http.MethodPost, "/api/v1/conversation/turn", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"cooldown"`)
	assert.Equal(t, int64(1), calls.Load())

	code, env = do(t, h, http.MethodGet, "/api/v1/conversation", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "stapler")
}

func TestApp_MethodNotAllowed(t *testing.T) {
	llm, _ := fakeLLM(t, "hi")
	h := newTestApp(t, testConfig(llm.URL)).Handler()

	code, _ := do(t, h, http.MethodPut, "/api/v1/conversation", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/conversation/turn", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestApp_HealthAndVersion(t *testing.T) {
	llm, _ := fakeLLM(t, "hi")
	h := newTestApp(t, testConfig(llm.URL)).Handler()

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz", "/version"} {
		code, _ := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, code, path)
	}
}

func TestApp_APIKeys(t *testing.T) {
	llm, _ := fakeLLM(t, "hi")
	cfg := testConfig(llm.URL)
	cfg.Server.APIKeys = []string{"k1"}
	h := newTestApp(t, cfg).Handler()

	code, env := do(t, h, http.MethodGet, "/api/v1/conversation", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/conversation", http.Header{"X-Api-Key": {"k1"}})
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestApp_AdminRoutesRequireJWT(t *testing.T) {
	llm, _ := fakeLLM(t, "hi")
	cfg := testConfig(llm.URL)
	cfg.Server.AdminJWT.Secret = testJWTSecret
	h := newTestApp(t, cfg).Handler()

	for _, route := range []struct{ method, path string }{
		{http.MethodDelete, "/api/v1/conversation"},
		{http.MethodPost, "/api/v1/admin/wipe"},
		{http.MethodPost, "/api/v1/context"},
	} {
		code, _ := do(t, h, route.method, route.path, nil)
		assert.Equal(t, http.StatusUnauthorized, code, route.path)
	}

	// 读接口不受影响
	code, _ := do(t, h, http.MethodGet, "/api/v1/context", nil)
	assert.Equal(t, http.StatusOK, code)

	token := signToken(t, testJWTSecret, jwt.MapClaims{
		"sub":  "ops",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	code, env := do(t, h, http.MethodDelete, "/api/v1/conversation", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"cleared"`)
}

func TestNewApp_InvalidProvider(t *testing.T) {
	cfg := testConfig("")
	collector, _ := newTestCollector(t)
	_, err := NewApp(context.Background(), cfg, collector, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM provider")
}

func TestNewApp_MissingRoster(t *testing.T) {
	llm, _ := fakeLLM(t, "hi")
	cfg := testConfig(llm.URL)
	cfg.Conversation.RosterFile = filepath.Join(t.TempDir(), "missing.yaml")
	collector, _ := newTestCollector(t)
	_, err := NewApp(context.Background(), cfg, collector, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster")
}

func TestApp_ArchiveCacheWithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	llm, _ := fakeLLM(t, "hi")
	cfg := testConfig(llm.URL)
	cfg.Store.Type = "redis"
	cfg.Store.Redis.Addr = mr.Addr()
	cfg.Store.Redis.KeyPrefix = "rt:"
	cfg.Store.ArchiveCache.Enabled = true
	cfg.Store.ArchiveCache.TTL = time.Minute
	h := newTestApp(t, cfg).Handler()

	code, _ := do(t, h, http.MethodGet, "/api/v1/conversation", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, mr.Exists("rt:conversation"))

	code, env := do(t, h, http.MethodGet, "/api/v1/archives/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

// =============================================================================
// 🏃 Run
// =============================================================================

func TestApp_RunWithAutopilot(t *testing.T) {
	llm, calls := fakeLLM(t, "Another round?")
	cfg := testConfig(llm.URL)
	cfg.Conversation.Cooldown = 0
	cfg.Conversation.Autopilot.Enabled = true
	cfg.Conversation.Autopilot.Interval = 10 * time.Millisecond
	app := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.True(t, testutil.WaitFor(func() bool { return calls.Load() >= 2 }, 5*time.Second))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	state, err := app.Service().State(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(state.Messages), 2)
}

func TestApp_SyncFeedMetrics(t *testing.T) {
	llm, _ := fakeLLM(t, "hi")
	collector, ns := newTestCollector(t)
	app, err := NewApp(context.Background(), testConfig(llm.URL), collector, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	_, unsubscribe := app.Service().Subscribe(1)
	defer unsubscribe()

	last := app.syncFeedMetrics(0)
	assert.Equal(t, int64(0), last)
	assert.Equal(t, 1.0, gaugeValue(t, ns+"_feed_subscribers"))
}

func gaugeValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"app.example", "localhost:3000"},
		originPatterns([]string{"https://app.example", "http://localhost:3000"}))
	assert.Equal(t, []string{"*"}, originPatterns([]string{"https://a.example", "*"}))
	assert.Empty(t, originPatterns(nil))
}

// =============================================================================
// 🧹 wipe / 命令行
// =============================================================================

func TestWipeStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	seed := store.NewRedisStore(client, "rt:", 3)
	require.NoError(t, seed.IncrementPersonaStats(ctx, "maren", 1_000))

	cfg := config.DefaultStoreConfig()
	cfg.Type = "redis"
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.KeyPrefix = "rt:"

	now := time.UnixMilli(1_700_000_000_000)
	at, err := wipeStore(ctx, cfg, zaptest.NewLogger(t), now)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), at)

	stats, err := seed.PersonaStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)

	state, err := seed.Conversation(ctx, now.UnixMilli()+1)
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
	assert.Equal(t, now.UnixMilli(), state.CreatedAt)
}

func TestRun_Commands(t *testing.T) {
	t.Run("version", func(t *testing.T) {
		var out, errOut bytes.Buffer
		assert.Equal(t, 0, run([]string{"version"}, &out, &errOut))
		assert.Contains(t, out.String(), "roundtable dev")
	})

	t.Run("no command", func(t *testing.T) {
		var out, errOut bytes.Buffer
		assert.Equal(t, 1, run(nil, &out, &errOut))
		assert.Contains(t, errOut.String(), "Usage:")
	})

	t.Run("unknown command", func(t *testing.T) {
		var out, errOut bytes.Buffer
		assert.Equal(t, 1, run([]string{"dance"}, &out, &errOut))
		assert.Contains(t, errOut.String(), "Unknown command: dance")
	})

	t.Run("wipe needs confirmation", func(t *testing.T) {
		var out, errOut bytes.Buffer
		assert.Equal(t, 1, run([]string{"wipe"}, &out, &errOut))
		assert.Contains(t, errOut.String(), "--yes")
	})

	t.Run("migrate without action", func(t *testing.T) {
		var out, errOut bytes.Buffer
		assert.Equal(t, 1, run([]string{"migrate"}, &out, &errOut))
		assert.Contains(t, out.String(), "Database Migration Commands")
	})

	t.Run("health against test server", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ready", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		var out, errOut bytes.Buffer
		assert.Equal(t, 0, run([]string{"health", "--addr", srv.URL}, &out, &errOut))
		assert.Equal(t, "OK\n", out.String())
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("explicit missing file", func(t *testing.T) {
		err := loadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
		require.Error(t, err)
	})

	t.Run("explicit file", func(t *testing.T) {
		const key = "ROUNDTABLE_TEST_ENV_FILE_VALUE"
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv(key) })

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "from-file", os.Getenv(key))
	})

	t.Run("existing variables win", func(t *testing.T) {
		const key = "ROUNDTABLE_TEST_ENV_FILE_KEEP"
		t.Setenv(key, "from-env")
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "from-env", os.Getenv(key))
	})
}

func TestInitLogger(t *testing.T) {
	logger, err := initLogger(config.LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = initLogger(config.LogConfig{Level: "bogus", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
}
