package opstools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldan/opschat/pkg/engine"
	"github.com/aldan/opschat/pkg/toolregistry"
)

type stubEngine struct {
	answer *engine.Answer
	err    error

	lastRequest engine.Request
}

func (s *stubEngine) Provider() string { return "stub" }

func (s *stubEngine) Invoke(ctx context.Context, req engine.Request) (*engine.Answer, error) {
	s.lastRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return s.answer, nil
}

func newTestRegistry(t *testing.T) *toolregistry.Registry {
	t.Helper()
	return toolregistry.New(zerolog.Nop())
}

func TestRegister(t *testing.T) {
	t.Run("should register metrics tools without dashboard collaborators", func(t *testing.T) {
		registry := newTestRegistry(t)
		err := Register(registry, Options{
			Metrics: NewMetricsClient("http://metrics.local", 0),
		})

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"query_metrics", "service_health"}, registry.Names())
	})

	t.Run("should register generate_dashboard when engine and dashboard client are present", func(t *testing.T) {
		registry := newTestRegistry(t)
		err := Register(registry, Options{
			Metrics:        NewMetricsClient("http://metrics.local", 0),
			Dashboards:     NewDashboardClient("http://dash.local", 0),
			Engine:         &stubEngine{},
			DashboardModel: "gpt-4o",
		})

		require.NoError(t, err)
		assert.Contains(t, registry.Names(), "generate_dashboard")
	})

	t.Run("should require a metrics client", func(t *testing.T) {
		err := Register(newTestRegistry(t), Options{})
		assert.Error(t, err)
	})
}

func TestQueryMetricsTool(t *testing.T) {
	t.Run("should query the metrics service with scoping parameters", func(t *testing.T) {
		var gotQuery map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = map[string]string{
				"metric":  r.URL.Query().Get("metric"),
				"service": r.URL.Query().Get("service"),
				"window":  r.URL.Query().Get("window"),
			}
			w.Write([]byte(`{"series":[{"ts":1,"value":0.42}]}`))
		}))
		defer server.Close()

		registry := newTestRegistry(t)
		require.NoError(t, Register(registry, Options{
			Metrics: NewMetricsClient(server.URL, time.Second),
		}))

		result := registry.Execute(context.Background(), "query_metrics", map[string]interface{}{
			"metric":  "cpu_usage",
			"service": "checkout",
			"window":  "1h",
		}, time.Second)

		require.True(t, result.Success, "unexpected failure: %s", result.Error)
		assert.Contains(t, result.Output, "series")
		assert.Equal(t, "cpu_usage", gotQuery["metric"])
		assert.Equal(t, "checkout", gotQuery["service"])
		assert.Equal(t, "1h", gotQuery["window"])
	})

	t.Run("should default the window when omitted", func(t *testing.T) {
		var gotWindow string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotWindow = r.URL.Query().Get("window")
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		registry := newTestRegistry(t)
		require.NoError(t, Register(registry, Options{
			Metrics: NewMetricsClient(server.URL, time.Second),
		}))

		result := registry.Execute(context.Background(), "query_metrics", map[string]interface{}{
			"metric": "cpu_usage",
		}, time.Second)

		require.True(t, result.Success)
		assert.Equal(t, "15m", gotWindow)
	})

	t.Run("should capture collaborator failures as tool failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metric not found", http.StatusNotFound)
		}))
		defer server.Close()

		registry := newTestRegistry(t)
		require.NoError(t, Register(registry, Options{
			Metrics: NewMetricsClient(server.URL, time.Second),
		}))

		result := registry.Execute(context.Background(), "query_metrics", map[string]interface{}{
			"metric": "no_such_metric",
		}, time.Second)

		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "404")
	})
}

func TestServiceHealthTool(t *testing.T) {
	t.Run("should fetch health for the named service", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Write([]byte(`{"status":"healthy","error_rate":0.001}`))
		}))
		defer server.Close()

		registry := newTestRegistry(t)
		require.NoError(t, Register(registry, Options{
			Metrics: NewMetricsClient(server.URL, time.Second),
		}))

		result := registry.Execute(context.Background(), "service_health", map[string]interface{}{
			"service": "checkout",
		}, time.Second)

		require.True(t, result.Success)
		assert.Equal(t, "/api/v1/health/checkout", gotPath)
		assert.Contains(t, result.Output, "healthy")
	})
}

func TestGenerateDashboardTool(t *testing.T) {
	definition := `{"title":"Checkout","panels":[{"title":"CPU","metric":"cpu_usage","visualization":"line"}],"refresh_interval":"30s"}`

	t.Run("should generate a definition and publish it", func(t *testing.T) {
		var posted []byte
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			posted, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{"url":"/dashboards/d-42"}`))
		}))
		defer server.Close()

		eng := &stubEngine{answer: &engine.Answer{Text: definition}}
		registry := newTestRegistry(t)
		require.NoError(t, Register(registry, Options{
			Metrics:        NewMetricsClient(server.URL, time.Second),
			Dashboards:     NewDashboardClient(server.URL, time.Second),
			Engine:         eng,
			DashboardModel: "gpt-4o",
		}))

		result := registry.Execute(context.Background(), "generate_dashboard", map[string]interface{}{
			"title":   "Checkout",
			"metrics": []interface{}{"cpu_usage", "request_latency_p99"},
		}, 5*time.Second)

		require.True(t, result.Success, "unexpected failure: %s", result.Error)
		assert.Contains(t, result.Output, "/dashboards/d-42")
		assert.JSONEq(t, definition, string(posted))

		assert.True(t, eng.lastRequest.JSONMode, "dashboard generation must use structured output mode")
		assert.Equal(t, "gpt-4o", eng.lastRequest.Model)
	})

	t.Run("should fail when the engine emits invalid JSON", func(t *testing.T) {
		eng := &stubEngine{answer: &engine.Answer{Text: "here is your dashboard!"}}
		registry := newTestRegistry(t)
		require.NoError(t, Register(registry, Options{
			Metrics:        NewMetricsClient("http://metrics.local", time.Second),
			Dashboards:     NewDashboardClient("http://dash.local", time.Second),
			Engine:         eng,
			DashboardModel: "gpt-4o",
		}))

		result := registry.Execute(context.Background(), "generate_dashboard", map[string]interface{}{
			"title":   "Checkout",
			"metrics": []interface{}{"cpu_usage"},
		}, 5*time.Second)

		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "invalid JSON")
	})

	t.Run("should fail when the engine is unavailable", func(t *testing.T) {
		eng := &stubEngine{err: engine.ErrUnavailable}
		registry := newTestRegistry(t)
		require.NoError(t, Register(registry, Options{
			Metrics:        NewMetricsClient("http://metrics.local", time.Second),
			Dashboards:     NewDashboardClient("http://dash.local", time.Second),
			Engine:         eng,
			DashboardModel: "gpt-4o",
		}))

		result := registry.Execute(context.Background(), "generate_dashboard", map[string]interface{}{
			"title":   "Checkout",
			"metrics": []interface{}{"cpu_usage"},
		}, 5*time.Second)

		assert.False(t, result.Success)
	})

	t.Run("should require at least one metric", func(t *testing.T) {
		registry := newTestRegistry(t)
		require.NoError(t, Register(registry, Options{
			Metrics:        NewMetricsClient("http://metrics.local", time.Second),
			Dashboards:     NewDashboardClient("http://dash.local", time.Second),
			Engine:         &stubEngine{answer: &engine.Answer{Text: definition}},
			DashboardModel: "gpt-4o",
		}))

		result := registry.Execute(context.Background(), "generate_dashboard", map[string]interface{}{
			"title":   "Checkout",
			"metrics": []interface{}{},
		}, 5*time.Second)

		assert.False(t, result.Success)
	})
}

func TestDashboardClientCreate(t *testing.T) {
	t.Run("should surface non-2xx responses with a body snippet", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"duplicate title"}`, http.StatusConflict)
		}))
		defer server.Close()

		client := NewDashboardClient(server.URL, time.Second)
		payload, _ := json.Marshal(map[string]string{"title": "Checkout"})
		_, err := client.Create(context.Background(), payload)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "409")
		assert.Contains(t, err.Error(), "duplicate title")
	})
}
