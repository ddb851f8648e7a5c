package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Owolabi16/flusk-notification-controller/internal/db"
	"github.com/Owolabi16/flusk-notification-controller/internal/watcher"
)

// GET /api/v1/notifications?namespace=production&limit=50
func (api *APIServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	namespace := r.URL.Query().Get("namespace")
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	notifications, err := api.archive.Recent(namespace, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	api.respondJSON(w, notifications)
}

// GET /api/v1/watchers
func (api *APIServer) handleWatchers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	statuses := make([]map[string]interface{}, 0, len(api.namespaces))
	for _, ns := range api.namespaces {
		entry := map[string]interface{}{
			"namespace": ns,
			"state":     api.watchdog.Status(ns, now),
		}
		if last, seen := api.health.LastEvent(ns); seen {
			entry["last_event"] = last
			entry["seconds_since_event"] = int(now.Sub(last).Seconds())
		}
		statuses = append(statuses, entry)
	}

	api.respondJSON(w, statuses)
}

// GET /api/v1/stats
func (api *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	stale := 0
	for _, ns := range api.namespaces {
		if api.watchdog.Status(ns, now) == watcher.StateStale {
			stale++
		}
	}

	stats := map[string]interface{}{
		"monitored_namespaces": len(api.namespaces),
		"processed_revisions":  api.ledger.Len(),
		"stale_watchers":       stale,
	}

	api.respondJSON(w, stats)
}

// GET /health
func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	}

	// Check database connection if the archive is backed by PostgreSQL
	if pgArchive, ok := api.archive.(*db.PostgresArchive); ok {
		if err := pgArchive.Ping(); err != nil {
			health["status"] = "unhealthy"
			health["database"] = "disconnected"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			health["database"] = "connected"
		}
	}

	api.respondJSON(w, health)
}

// GET /ready
func (api *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := map[string]interface{}{
		"ready":      true,
		"namespaces": api.namespaces,
	}
	api.respondJSON(w, ready)
}

func (api *APIServer) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.Debugf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (api *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
