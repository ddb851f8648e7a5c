package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Owolabi16/flusk-notification-controller/internal/enrich"
	"github.com/Owolabi16/flusk-notification-controller/internal/release"
)

func testMessage() Message {
	return Message{
		Release: release.Snapshot{
			Namespace:    "production",
			Name:         "checkout",
			ChartVersion: "1.2.3",
			AppVersion:   "2.0.1",
			Revision:     "7",
			Ready:        release.ReadyTrue,
		},
		Services: []enrich.ServiceVersion{
			{Name: "checkout", Image: "registry/team/checkout", Tag: "2.0.1"},
		},
		Dependencies: []enrich.ChartDependency{
			{Name: "postgresql", Version: "12.5.8"},
		},
		Deployment: enrich.DeploymentStatus{Found: true, Replicas: 3, ReadyReplicas: 3},
		Timestamp:  time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestSlackNotifier_Notify(t *testing.T) {
	var received map[string]interface{}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, 15)
	require.NoError(t, n.Notify(context.Background(), testMessage()))
	require.Equal(t, 1, calls)

	raw, err := json.Marshal(received)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "Deployment to PRODUCTION - Successful")
	assert.Contains(t, body, "`7`")
	assert.Contains(t, body, "postgresql")
	assert.Contains(t, body, "registry/team/checkout:2.0.1")
	assert.Contains(t, body, "*Replicas:* 3/3")
	assert.Contains(t, body, "2024-05-01 12:30:00 UTC")
}

func TestSlackNotifier_NonOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, 15)
	err := n.Notify(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSlackNotifier_FailedReleaseHeader(t *testing.T) {
	msg := testMessage()
	msg.Release.Ready = release.ReadyFalse

	n := NewSlackNotifier("http://unused", 15)
	raw, err := json.Marshal(n.buildPayload(msg))
	require.NoError(t, err)

	assert.Contains(t, string(raw), "Deployment to PRODUCTION - Failed")
	assert.Contains(t, string(raw), "❌")
}

func TestSlackNotifier_EmptyRevisionDisplaysUnknown(t *testing.T) {
	msg := testMessage()
	msg.Release.Revision = ""

	n := NewSlackNotifier("http://unused", 15)
	raw, err := json.Marshal(n.buildPayload(msg))
	require.NoError(t, err)

	assert.Contains(t, string(raw), "*Helm Revision:*\\n`unknown`")
}

func TestSlackNotifier_ServiceDisplayCap(t *testing.T) {
	msg := testMessage()
	msg.Services = nil
	for i := 0; i < 20; i++ {
		msg.Services = append(msg.Services, enrich.ServiceVersion{
			Name:  fmt.Sprintf("svc-%02d", i),
			Image: fmt.Sprintf("registry/svc-%02d", i),
			Tag:   "1.0.0",
		})
	}

	n := NewSlackNotifier("http://unused", 15)
	text := n.formatServices(msg.Services)

	assert.Equal(t, 15, strings.Count(text, "•"))
	assert.Contains(t, text, "+5 more")
}
