package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldan/opschat/pkg/agent"
	"github.com/aldan/opschat/pkg/engine"
	"github.com/aldan/opschat/pkg/session"
)

func doRequest(t *testing.T, d *Daemon, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	d.server.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHTTPChatValidation(t *testing.T) {
	t.Run("should reject a missing message", func(t *testing.T) {
		d := setupDaemon(t)
		rec := doRequest(t, d, http.MethodPost, "/v1/chat", `{"session_id":"s1"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject an oversized message", func(t *testing.T) {
		d := setupDaemon(t)
		payload, _ := json.Marshal(map[string]string{"message": strings.Repeat("x", maxMessageChars+1)})
		rec := doRequest(t, d, http.MethodPost, "/v1/chat", string(payload))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		d := setupDaemon(t)
		rec := doRequest(t, d, http.MethodPost, "/v1/chat", "{not json")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should bound message length by characters, not bytes", func(t *testing.T) {
		d := setupDaemon(t)
		swapEngine(t, d, &stubEngine{text: "Все сервисы в норме."})

		// Multibyte runes: two bytes each, so the payload is well past
		// the bound in bytes but exactly at it in characters.
		payload, _ := json.Marshal(map[string]string{"message": strings.Repeat("я", maxMessageChars)})
		rec := doRequest(t, d, http.MethodPost, "/v1/chat", string(payload))
		assert.Equal(t, http.StatusOK, rec.Code)

		payload, _ = json.Marshal(map[string]string{"message": strings.Repeat("я", maxMessageChars+1)})
		rec = doRequest(t, d, http.MethodPost, "/v1/chat", string(payload))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// stubEngine answers every invocation with fixed text.
type stubEngine struct {
	text string
}

func (s *stubEngine) Provider() string { return "stub" }

func (s *stubEngine) Invoke(ctx context.Context, req engine.Request) (*engine.Answer, error) {
	return &engine.Answer{Text: s.text}, nil
}

// swapEngine rebuilds the orchestrator around a replacement engine.
func swapEngine(t *testing.T, d *Daemon, eng engine.Client) {
	t.Helper()

	orch, err := agent.New(agent.Config{
		Store:    d.store,
		Registry: d.registry,
		Engine:   eng,
		Queue:    d.queue,
		Cache:    d.cache,
		Logger:   d.logger.GetZerolog(),
		Model:    d.config.Agent.Model,
	})
	require.NoError(t, err)
	d.orchestrator = orch
}

func TestHTTPSessions(t *testing.T) {
	t.Run("should return 404 for an unknown session", func(t *testing.T) {
		d := setupDaemon(t)
		rec := doRequest(t, d, http.MethodGet, "/v1/sessions/nope", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should return stored messages", func(t *testing.T) {
		d := setupDaemon(t)
		ctx := context.Background()
		id, _, err := d.store.GetOrCreate(ctx, "")
		require.NoError(t, err)
		_, err = d.store.Append(ctx, id, session.Message{Role: session.RoleUser, Content: "hello"})
		require.NoError(t, err)

		rec := doRequest(t, d, http.MethodGet, "/v1/sessions/"+id, "")

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			SessionID string            `json:"session_id"`
			Messages  []session.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, id, body.SessionID)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "hello", body.Messages[0].Content)
	})
}

func TestHTTPHealthAndStatus(t *testing.T) {
	t.Run("should answer health checks", func(t *testing.T) {
		d := setupDaemon(t)
		rec := doRequest(t, d, http.MethodGet, "/healthz", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ok")
	})

	t.Run("should expose daemon status", func(t *testing.T) {
		d := setupDaemon(t)
		rec := doRequest(t, d, http.MethodGet, "/status", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "openai", body["provider"])
	})

	t.Run("should expose prometheus metrics", func(t *testing.T) {
		d := setupDaemon(t)
		rec := doRequest(t, d, http.MethodGet, "/metrics", "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should expose cache administration", func(t *testing.T) {
		d := setupDaemon(t)
		rec := doRequest(t, d, http.MethodGet, "/admin/cache/stats", "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
