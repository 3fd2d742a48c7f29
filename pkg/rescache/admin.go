package rescache

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// AdminHandler exposes the cache administration surface: stats, key
// listing, single-key delete, and prefix flush. It is mounted on the
// operational listener, separate from the chat path, and only ever
// operates on this subsystem's key namespace.
func AdminHandler(cache *Cache, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Warn().Err(err).Msg("Failed to encode admin response")
		}
	}

	mux.HandleFunc("GET /cache/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cache.Stats())
	})

	mux.HandleFunc("GET /cache/keys", func(w http.ResponseWriter, r *http.Request) {
		keys := cache.Keys(r.URL.Query().Get("prefix"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count": len(keys),
			"keys":  keys,
		})
	})

	mux.HandleFunc("DELETE /cache/keys", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key parameter is required"})
			return
		}
		if !strings.HasPrefix(key, KeyPrefix) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key is outside the response cache namespace"})
			return
		}

		deleted := cache.Delete(key)
		if !deleted {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	})

	mux.HandleFunc("POST /cache/flush", func(w http.ResponseWriter, r *http.Request) {
		removed := cache.Flush(r.URL.Query().Get("prefix"))
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	})

	return mux
}
