package watcher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Owolabi16/flusk-notification-controller/internal/metrics"
)

// State summarizes how a namespace watcher looks to the watchdog.
type State string

const (
	// StateWaiting means no event has ever been seen for the namespace.
	StateWaiting State = "waiting"
	StateHealthy State = "healthy"
	StateStale   State = "stale"
)

// Watchdog periodically inspects every watcher's last-seen-event time and
// flags streams that look stuck. It is purely observational: the watchers own
// their reconnection loops, so the watchdog never restarts anything.
type Watchdog struct {
	namespaces []string
	health     *Health
	period     time.Duration
	staleness  time.Duration
}

func NewWatchdog(namespaces []string, health *Health, period, staleness time.Duration) *Watchdog {
	return &Watchdog{
		namespaces: namespaces,
		health:     health,
		period:     period,
		staleness:  staleness,
	}
}

func (d *Watchdog) Run(ctx context.Context) {
	logrus.Infof("Watchdog running every %s (staleness threshold %s)", d.period, d.staleness)

	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.check(time.Now())
		}
	}
}

// Status classifies one namespace at the given instant.
func (d *Watchdog) Status(namespace string, now time.Time) State {
	last, seen := d.health.LastEvent(namespace)
	if !seen {
		return StateWaiting
	}
	if now.Sub(last) > d.staleness {
		return StateStale
	}
	return StateHealthy
}

func (d *Watchdog) check(now time.Time) {
	stale := 0
	for _, ns := range d.namespaces {
		switch d.Status(ns, now) {
		case StateWaiting:
			logrus.Infof("Watchdog: no events seen yet in %s, waiting", ns)
		case StateStale:
			last, _ := d.health.LastEvent(ns)
			// The stream may be hung even though no reconnect failure was
			// observed: a silent drop looks exactly like a quiet namespace.
			logrus.Warnf("Watchdog: namespace %s is stale, last event %s ago", ns, now.Sub(last).Round(time.Second))
			stale++
		default:
			logrus.Debugf("Watchdog: namespace %s healthy", ns)
		}
	}
	metrics.StaleWatchers.Set(float64(stale))
}
