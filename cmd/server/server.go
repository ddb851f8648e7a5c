package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Owolabi16/flusk-notification-controller/internal/history"
	"github.com/Owolabi16/flusk-notification-controller/internal/watcher"
)

// LedgerStats is the slice of the dedup ledger the API exposes.
type LedgerStats interface {
	Len() int
}

type APIServer struct {
	archive    history.Archive
	health     *watcher.Health
	watchdog   *watcher.Watchdog
	ledger     LedgerStats
	namespaces []string
	mux        *http.ServeMux
}

func NewAPIServer(archive history.Archive, health *watcher.Health, watchdog *watcher.Watchdog, ledger LedgerStats, namespaces []string) *APIServer {
	api := &APIServer{
		archive:    archive,
		health:     health,
		watchdog:   watchdog,
		ledger:     ledger,
		namespaces: namespaces,
		mux:        http.NewServeMux(),
	}
	api.registerRoutes()
	return api
}

func (api *APIServer) registerRoutes() {
	// Notification history
	api.mux.HandleFunc("/api/v1/notifications", api.handleNotifications)

	// Watcher liveness
	api.mux.HandleFunc("/api/v1/watchers", api.handleWatchers)

	// Dedup stats
	api.mux.HandleFunc("/api/v1/stats", api.handleStats)

	// Health check
	api.mux.HandleFunc("/health", api.handleHealth)
	api.mux.HandleFunc("/ready", api.handleReady)

	// Prometheus metrics
	api.mux.Handle("/metrics", promhttp.Handler())
}

func (api *APIServer) Start(addr string) error {
	logrus.Infof("Starting API server on %s", addr)

	handler := api.corsMiddleware(api.loggingMiddleware(api.mux))

	return http.ListenAndServe(addr, handler)
}
