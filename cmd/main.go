package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Owolabi16/flusk-notification-controller/cmd/server"
	"github.com/Owolabi16/flusk-notification-controller/internal/config"
	"github.com/Owolabi16/flusk-notification-controller/internal/db"
	"github.com/Owolabi16/flusk-notification-controller/internal/enrich"
	"github.com/Owolabi16/flusk-notification-controller/internal/history"
	"github.com/Owolabi16/flusk-notification-controller/internal/kube"
	"github.com/Owolabi16/flusk-notification-controller/internal/ledger"
	"github.com/Owolabi16/flusk-notification-controller/internal/notify"
	"github.com/Owolabi16/flusk-notification-controller/internal/watcher"
)

func main() {
	logrus.Info("Flusk Notification Controller - HelmRelease watcher + Slack notifier")

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("Unknown log level %q, using info", cfg.LogLevel)
	}

	clients, err := kube.NewClients()
	if err != nil {
		logrus.Fatalf("Failed to create Kubernetes clients: %v", err)
	}

	// Notification archive: PostgreSQL when configured and reachable,
	// in-memory otherwise. The dedup ledger stays in memory either way.
	var archive history.Archive = history.NewMemoryArchive()
	if cfg.DatabaseURL != "" {
		pgArchive, err := db.NewPostgresArchive(cfg.DatabaseURL)
		if err != nil {
			logrus.Errorf("Failed to connect to PostgreSQL: %v", err)
			logrus.Info("Falling back to in-memory notification history...")
		} else {
			logrus.Info("Connected to PostgreSQL")
			archive = pgArchive
			defer pgArchive.Close()
		}
	}

	led := ledger.NewMemoryLedger()
	health := watcher.NewHealth()
	notifier := notify.NewSlackNotifier(cfg.WebhookURL, cfg.DisplayCap)
	enricher := enrich.NewEnricher(clients.Typed)
	opener := watcher.NewHelmReleaseStream(clients.Dynamic, cfg.StreamTimeoutSeconds)

	deps := watcher.Deps{
		Opener:   opener,
		Ledger:   led,
		Enricher: enricher,
		Notifier: notifier,
		Archive:  archive,
		Health:   health,
	}

	watchers := make([]*watcher.Watcher, 0, len(cfg.Namespaces))
	for _, ns := range cfg.Namespaces {
		watchers = append(watchers, watcher.NewWatcher(ns, deps, cfg.ReconnectDelay))
	}

	watchdog := watcher.NewWatchdog(cfg.Namespaces, health, cfg.WatchdogPeriod, cfg.StalenessThreshold)
	supervisor := watcher.NewSupervisor(watchers, watchdog, cfg.RestartDelay)

	apiServer := server.NewAPIServer(archive, health, watchdog, led, cfg.Namespaces)
	go func() {
		if err := apiServer.Start(cfg.APIAddress); err != nil {
			logrus.Fatalf("API server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.Infof("Monitoring namespaces: %v", cfg.Namespaces)
	supervisor.Run(ctx)

	logrus.Info("Shutdown complete")
}
