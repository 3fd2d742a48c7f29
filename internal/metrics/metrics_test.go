package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRegistered(t *testing.T) {
	t.Run("should be safe to call repeatedly", func(t *testing.T) {
		assert.NotPanics(t, func() {
			EnsureRegistered()
			EnsureRegistered()
		})
	})
}

func TestRecordHelpers(t *testing.T) {
	t.Run("should not panic on any recorder", func(t *testing.T) {
		assert.NotPanics(t, func() {
			RecordTurn("chat", "final", 120*time.Millisecond, 2)
			RecordEngineCall("openai", "success", 80*time.Millisecond)
			RecordToolExecution("query_metrics", 10*time.Millisecond, true)
			RecordToolExecution("query_metrics", 10*time.Millisecond, false)
			RecordCacheOp("get", "miss")
			SetCacheEntries(3)
			RecordCacheEviction(1)
			SetActiveSessions(2)
			RecordSessionCreated()
			RecordSessionEvicted(true)
			SetQueueSize("session-abc", 1)
			RecordQueueWait("session-abc", time.Millisecond)
		})
	})
}

func TestHandler(t *testing.T) {
	t.Run("should serve scrapeable metrics", func(t *testing.T) {
		RecordTurn("chat", "final", time.Millisecond, 1)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/metrics", nil)
		Handler().ServeHTTP(rec, req)

		require.Equal(t, 200, rec.Code)
		assert.Contains(t, rec.Body.String(), "chat_turns_total")
	})
}
