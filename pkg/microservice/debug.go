package microservice

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/rs/zerolog"
)

// CacheInspector is the part of *cache.QueryCache the debug routes use.
type CacheInspector interface {
	Entries() []cache.EntryInfo
	Invalidate(key cache.Key, exact bool)
}

// invalidateRequest is the body of POST /debug/cache/invalidate.
type invalidateRequest struct {
	Key   cache.Key `json:"key"`
	Exact bool      `json:"exact"`
}

// MountCacheDebug adds read-only cache inspection and a manual invalidation
// endpoint under /debug/cache.
func MountCacheDebug(r chi.Router, c CacheInspector, logger zerolog.Logger) {
	logger = logger.With().Str("component", "CacheDebug").Logger()

	r.Route("/debug/cache", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, c.Entries())
		})
		r.Post("/invalidate", func(w http.ResponseWriter, req *http.Request) {
			var body invalidateRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON body"})
				return
			}
			if len(body.Key) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "key is required"})
				return
			}
			c.Invalidate(body.Key, body.Exact)
			logger.Info().Str("key", body.Key.String()).Bool("exact", body.Exact).Msg("Invalidated via debug endpoint.")
			w.WriteHeader(http.StatusNoContent)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
