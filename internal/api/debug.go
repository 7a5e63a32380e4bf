package api

import (
	"net/http"
	"time"

	"routeopt/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	cfg := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"store": s.storeKind,
		"config": map[string]any{
			"port":                cfg.Port,
			"authMode":            cfg.Auth.Mode,
			"rateRps":             cfg.RateRPS,
			"rateBurst":           cfg.RateBurst,
			"maxConcurrentSolves": cfg.MaxConcurrentSolves,
			"matrixCacheSize":     cfg.MatrixCacheSize,
			"webhookMaxAttempts":  cfg.WebhookMaxAttempts,
			"hasDatabaseUrl":      cfg.DatabaseURL != "",
			"hasRedisUrl":         cfg.RedisURL != "",
		},
	})
}
