package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/Owolabi16/flusk-notification-controller/internal/enrich"
	"github.com/Owolabi16/flusk-notification-controller/internal/history"
	"github.com/Owolabi16/flusk-notification-controller/internal/ledger"
	"github.com/Owolabi16/flusk-notification-controller/internal/notify"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (n *fakeNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *fakeNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.messages...)
}

type fakeEnricher struct{}

func (fakeEnricher) ListServiceVersions(_ context.Context, _, releaseName string) []enrich.ServiceVersion {
	return []enrich.ServiceVersion{{Name: releaseName, Image: "registry/" + releaseName, Tag: "1.0.0"}}
}

func (fakeEnricher) ListDependencies(_ context.Context, _, _ string) []enrich.ChartDependency {
	return []enrich.ChartDependency{{Name: "postgresql", Version: "12.5.8"}}
}

func (fakeEnricher) DeploymentStatus(_ context.Context, _, _ string) enrich.DeploymentStatus {
	return enrich.DeploymentStatus{Found: true, Replicas: 2, ReadyReplicas: 2}
}

type fixture struct {
	watcher  *Watcher
	notifier *fakeNotifier
	ledger   *ledger.MemoryLedger
	archive  *history.MemoryArchive
	health   *Health
}

func newFixture(namespace string) *fixture {
	f := &fixture{
		notifier: &fakeNotifier{},
		ledger:   ledger.NewMemoryLedger(),
		archive:  history.NewMemoryArchive(),
		health:   NewHealth(),
	}
	f.watcher = NewWatcher(namespace, Deps{
		Ledger:   f.ledger,
		Enricher: fakeEnricher{},
		Notifier: f.notifier,
		Archive:  f.archive,
		Health:   f.health,
	}, time.Millisecond)
	return f
}

func helmReleaseEvent(name, namespace, revision, ready string) watch.Event {
	status := map[string]interface{}{
		"lastAppliedRevision": revision,
	}
	if ready != "" {
		status["conditions"] = []interface{}{
			map[string]interface{}{"type": "Ready", "status": ready},
		}
	}
	return watch.Event{
		Type: watch.Modified,
		Object: &unstructured.Unstructured{Object: map[string]interface{}{
			"apiVersion": "helm.toolkit.fluxcd.io/v2beta1",
			"kind":       "HelmRelease",
			"metadata": map[string]interface{}{
				"name":      name,
				"namespace": namespace,
			},
			"spec": map[string]interface{}{
				"chart": map[string]interface{}{
					"spec": map[string]interface{}{"version": "1.2.3"},
				},
			},
			"status": status,
		}},
	}
}

// drain feeds the buffered events through one consume pass.
func drain(t *testing.T, f *fixture, events ...watch.Event) string {
	t.Helper()
	stream := watch.NewFakeWithChanSize(len(events)+1, false)
	for _, ev := range events {
		stream.Action(ev.Type, ev.Object)
	}
	stream.Stop()
	return f.watcher.consume(context.Background(), stream)
}

func TestWatcher_NotifiesExactlyOncePerRevision(t *testing.T) {
	f := newFixture("production")

	reason := drain(t, f,
		helmReleaseEvent("checkout", "production", "7", ""),
		helmReleaseEvent("checkout", "production", "7", "True"),
		helmReleaseEvent("checkout", "production", "7", "True"),
		helmReleaseEvent("checkout", "production", "8", "True"),
		helmReleaseEvent("checkout", "production", "8", "True"),
	)

	if reason != "timeout" {
		t.Errorf("Expected quiet closure to report timeout, got %q", reason)
	}

	sent := f.notifier.sent()
	if len(sent) != 2 {
		t.Fatalf("Expected exactly 2 notifications, got %d", len(sent))
	}
	if sent[0].Release.Revision != "7" || sent[1].Release.Revision != "8" {
		t.Errorf("Unexpected revisions: %q, %q", sent[0].Release.Revision, sent[1].Release.Revision)
	}
	if len(sent[0].Services) != 1 || sent[0].Services[0].Name != "checkout" {
		t.Errorf("Expected enrichment on the message, got %+v", sent[0].Services)
	}
}

func TestWatcher_NeverNotifiesWithoutReadyCondition(t *testing.T) {
	f := newFixture("production")

	drain(t, f,
		helmReleaseEvent("checkout", "production", "7", ""),
		helmReleaseEvent("checkout", "production", "7", "False"),
	)

	if got := len(f.notifier.sent()); got != 0 {
		t.Errorf("Expected no notifications, got %d", got)
	}
	if !f.ledger.ShouldProcess("production/checkout/7") {
		t.Error("Non-ready events must not consume the dedup key")
	}
}

func TestWatcher_DeliveryFailureStillMarksProcessed(t *testing.T) {
	f := newFixture("production")
	f.notifier.err = errors.New("webhook returned 500")

	drain(t, f, helmReleaseEvent("checkout", "production", "7", "True"))
	drain(t, f, helmReleaseEvent("checkout", "production", "7", "True"))

	if got := len(f.notifier.sent()); got != 1 {
		t.Fatalf("Expected a single delivery attempt, got %d", got)
	}
	if f.ledger.ShouldProcess("production/checkout/7") {
		t.Error("Failed delivery must still mark the revision processed")
	}

	archived, err := f.archive.Recent("production", 10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(archived) != 1 || archived[0].Delivered || archived[0].Error == "" {
		t.Errorf("Expected one failed archive entry, got %+v", archived)
	}
}

func TestWatcher_HealthTouchedPerEvent(t *testing.T) {
	f := newFixture("staging")

	if _, seen := f.health.LastEvent("staging"); seen {
		t.Fatal("Expected no health entry before events")
	}

	drain(t, f, helmReleaseEvent("api", "staging", "1", "False"))

	if _, seen := f.health.LastEvent("staging"); !seen {
		t.Error("Expected health timestamp after an event, ready or not")
	}
}

func TestWatcher_ExpiredStatusEndsStream(t *testing.T) {
	f := newFixture("production")

	reason := drain(t, f, watch.Event{
		Type:   watch.Error,
		Object: &metav1.Status{Reason: metav1.StatusReasonExpired, Code: 410},
	})
	if reason != "expired" {
		t.Errorf("Expected expired, got %q", reason)
	}

	reason = drain(t, f, watch.Event{
		Type:   watch.Error,
		Object: &metav1.Status{Reason: metav1.StatusReasonInternalError, Code: 500},
	})
	if reason != "error" {
		t.Errorf("Expected error, got %q", reason)
	}
}

func TestWatcher_MalformedEventDoesNotStopStream(t *testing.T) {
	f := newFixture("production")

	drain(t, f,
		watch.Event{Type: watch.Modified, Object: &metav1.Status{}}, // wrong type
		helmReleaseEvent("checkout", "production", "7", "True"),
	)

	if got := len(f.notifier.sent()); got != 1 {
		t.Errorf("Expected the stream to survive a malformed event, got %d notifications", got)
	}
}

type blockingOpener struct{}

func (blockingOpener) Open(ctx context.Context, _ string) (watch.Interface, error) {
	stream := watch.NewFake()
	go func() {
		<-ctx.Done()
		stream.Stop()
	}()
	return stream, nil
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	f := newFixture("production")
	f.watcher.deps.Opener = blockingOpener{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.watcher.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
