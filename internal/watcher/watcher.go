package watcher

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/Owolabi16/flusk-notification-controller/internal/enrich"
	"github.com/Owolabi16/flusk-notification-controller/internal/history"
	"github.com/Owolabi16/flusk-notification-controller/internal/ledger"
	"github.com/Owolabi16/flusk-notification-controller/internal/metrics"
	"github.com/Owolabi16/flusk-notification-controller/internal/notify"
	"github.com/Owolabi16/flusk-notification-controller/internal/release"
)

// Enricher supplies runtime metadata for a release. Implementations are
// best-effort and never fail the watcher.
type Enricher interface {
	ListServiceVersions(ctx context.Context, namespace, releaseName string) []enrich.ServiceVersion
	ListDependencies(ctx context.Context, namespace, releaseName string) []enrich.ChartDependency
	DeploymentStatus(ctx context.Context, namespace, releaseName string) enrich.DeploymentStatus
}

// Deps are the collaborators a namespace watcher acts through. Everything is
// an interface (or nil-able, for the archive) so tests can substitute fakes.
type Deps struct {
	Opener   StreamOpener
	Ledger   ledger.Ledger
	Enricher Enricher
	Notifier notify.Notifier
	Archive  history.Archive
	Health   *Health
}

// Watcher owns the watch stream of one namespace and runs the
// connect / stream / backoff loop until its context is cancelled.
type Watcher struct {
	namespace      string
	deps           Deps
	reconnectDelay time.Duration
}

func NewWatcher(namespace string, deps Deps, reconnectDelay time.Duration) *Watcher {
	return &Watcher{
		namespace:      namespace,
		deps:           deps,
		reconnectDelay: reconnectDelay,
	}
}

func (w *Watcher) Namespace() string {
	return w.namespace
}

// Run blocks until ctx is cancelled. Any stream failure leads back to a
// reconnect after a short fixed delay; there is no terminal error state.
func (w *Watcher) Run(ctx context.Context) {
	logrus.Infof("Watching HelmReleases in namespace %s", w.namespace)

	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := w.deps.Opener.Open(ctx, w.namespace)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isExpired(err) {
				// Expected and frequent: the server forgets old resource
				// versions, the next open starts fresh.
				logrus.Infof("Watch for %s expired, reconnecting: %v", w.namespace, err)
				metrics.WatchReconnects.WithLabelValues(w.namespace, "expired").Inc()
			} else {
				logrus.Errorf("Failed to open watch for %s: %v", w.namespace, err)
				metrics.WatchReconnects.WithLabelValues(w.namespace, "error").Inc()
			}
			if !w.pause(ctx) {
				return
			}
			continue
		}

		reason := w.consume(ctx, stream)
		if ctx.Err() != nil {
			return
		}
		metrics.WatchReconnects.WithLabelValues(w.namespace, reason).Inc()
		if !w.pause(ctx) {
			return
		}
	}
}

// consume drains one stream until it closes or errors, returning the reason
// the stream ended.
func (w *Watcher) consume(ctx context.Context, stream watch.Interface) string {
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case event, ok := <-stream.ResultChan():
			if !ok {
				// Quiet closure from the bounded server-side timeout is the
				// normal path.
				logrus.Debugf("Watch stream for %s closed, reconnecting", w.namespace)
				return "timeout"
			}

			w.deps.Health.Touch(w.namespace)
			metrics.EventsReceived.WithLabelValues(w.namespace).Inc()
			metrics.LastEventTimestamp.WithLabelValues(w.namespace).SetToCurrentTime()

			if event.Type == watch.Error {
				if isExpiredStatus(event.Object) {
					logrus.Infof("Watch for %s expired (resource version too old)", w.namespace)
					return "expired"
				}
				logrus.Errorf("Watch error in %s: %v", w.namespace, event.Object)
				return "error"
			}

			w.handleEvent(ctx, event.Object)
		}
	}
}

// handleEvent processes one stream event. A malformed payload or a panic is
// logged and the stream moves on; a single bad event never terminates the
// watcher.
func (w *Watcher) handleEvent(ctx context.Context, obj runtime.Object) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Recovered while processing event in %s: %v", w.namespace, r)
		}
	}()

	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		logrus.Warnf("Unexpected object type %T in %s watch stream", obj, w.namespace)
		return
	}

	snap := release.Extract(u.Object)
	if snap.Namespace == "" {
		snap.Namespace = w.namespace
	}
	if snap.Ready != release.ReadyTrue {
		return
	}

	key := snap.Key()
	if !w.deps.Ledger.ShouldProcess(key) {
		return
	}

	logrus.Infof("New deployment detected: %s in %s (revision %q)", snap.Name, snap.Namespace, snap.Revision)

	msg := notify.Message{
		Release:      snap,
		Services:     w.deps.Enricher.ListServiceVersions(ctx, snap.Namespace, snap.Name),
		Dependencies: w.deps.Enricher.ListDependencies(ctx, snap.Namespace, snap.Name),
		Deployment:   w.deps.Enricher.DeploymentStatus(ctx, snap.Namespace, snap.Name),
		Timestamp:    time.Now().UTC(),
	}

	err := w.deps.Notifier.Notify(ctx, msg)
	if err != nil {
		// The revision is still marked processed: retrying against a
		// persistently failing webhook would only storm it.
		logrus.Errorf("Failed to send notification for %s: %v", key, err)
		metrics.NotificationsFailed.WithLabelValues(snap.Namespace).Inc()
	} else {
		logrus.Infof("Sent notification for %s in %s", snap.Name, snap.Namespace)
		metrics.NotificationsSent.WithLabelValues(snap.Namespace).Inc()
	}
	w.deps.Ledger.MarkProcessed(key)

	if w.deps.Archive != nil {
		entry := history.Notification{
			Namespace:    snap.Namespace,
			Release:      snap.Name,
			Revision:     snap.Revision,
			ChartVersion: snap.ChartVersion,
			AppVersion:   snap.AppVersion,
			Delivered:    err == nil,
			SentAt:       msg.Timestamp,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if aerr := w.deps.Archive.Record(entry); aerr != nil {
			logrus.Warnf("Failed to archive notification for %s: %v", key, aerr)
		}
	}
}

// pause waits out the reconnect delay, returning false if the context ended
// first.
func (w *Watcher) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(w.reconnectDelay):
		return true
	}
}

func isExpired(err error) bool {
	return apierrors.IsResourceExpired(err) || apierrors.IsGone(err)
}

func isExpiredStatus(obj runtime.Object) bool {
	status, ok := obj.(*metav1.Status)
	if !ok {
		return false
	}
	return status.Reason == metav1.StatusReasonExpired ||
		status.Reason == metav1.StatusReasonGone ||
		status.Code == http.StatusGone
}
