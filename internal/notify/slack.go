package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Owolabi16/flusk-notification-controller/internal/enrich"
	"github.com/Owolabi16/flusk-notification-controller/internal/release"
)

// Message is the enriched payload for one deployment notification.
type Message struct {
	Release      release.Snapshot
	Services     []enrich.ServiceVersion
	Dependencies []enrich.ChartDependency
	Deployment   enrich.DeploymentStatus
	Timestamp    time.Time
}

// Notifier delivers one deployment notification.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// SlackNotifier posts Block Kit messages to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	displayCap int
}

func NewSlackNotifier(webhookURL string, displayCap int) *SlackNotifier {
	if displayCap <= 0 {
		displayCap = 15
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		displayCap: displayCap,
	}
}

// Notify sends a single webhook POST. A non-2xx response is an error; the
// caller decides whether that matters (the watcher only logs it).
func (n *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(n.buildPayload(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (n *SlackNotifier) buildPayload(msg Message) map[string]interface{} {
	snap := msg.Release
	environment := strings.ToUpper(snap.Namespace)

	statusEmoji := "❌"
	statusText := "Failed"
	if snap.Ready == release.ReadyTrue {
		statusEmoji = "✅"
		statusText = "Successful"
	}

	revision := snap.Revision
	if revision == "" {
		revision = "unknown"
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  fmt.Sprintf("%s Deployment to %s - %s", statusEmoji, environment, statusText),
				"emoji": true,
			},
		},
		{
			"type": "section",
			"fields": []map[string]interface{}{
				mrkdwn("*Release Name:*\n`" + snap.Name + "`"),
				mrkdwn("*Namespace:*\n`" + snap.Namespace + "`"),
				mrkdwn("*Helm Chart Version:*\n`" + snap.ChartVersion + "`"),
				mrkdwn("*App Version:*\n`" + snap.AppVersion + "`"),
				mrkdwn("*Helm Revision:*\n`" + revision + "`"),
				mrkdwn(fmt.Sprintf("*Status:*\n%s %s", statusEmoji, statusText)),
			},
		},
	}

	if len(msg.Dependencies) > 0 {
		var deps strings.Builder
		for _, dep := range msg.Dependencies {
			fmt.Fprintf(&deps, "  • `%s`: `%s`\n", dep.Name, dep.Version)
		}
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": mrkdwn("*Chart Dependencies:*\n" + strings.TrimRight(deps.String(), "\n")),
		})
	}

	if len(msg.Services) > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": mrkdwn("*Service Versions (Docker Images):*\n" + n.formatServices(msg.Services)),
		})
	}

	if msg.Deployment.Found {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": mrkdwn(fmt.Sprintf("*Replicas:* %d/%d", msg.Deployment.ReadyReplicas, msg.Deployment.Replicas)),
		})
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "context",
		"elements": []map[string]interface{}{
			mrkdwn("Deployed at " + msg.Timestamp.UTC().Format("2006-01-02 15:04:05") + " UTC"),
		},
	})

	return map[string]interface{}{"blocks": blocks}
}

// formatServices renders the service list up to the display cap, with a
// "+N more" suffix for the remainder.
func (n *SlackNotifier) formatServices(services []enrich.ServiceVersion) string {
	var out strings.Builder
	shown := services
	if len(shown) > n.displayCap {
		shown = shown[:n.displayCap]
	}
	for i, sv := range shown {
		if i > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "  • `%s`: `%s:%s`", sv.Name, sv.Image, sv.Tag)
	}
	if remainder := len(services) - len(shown); remainder > 0 {
		fmt.Fprintf(&out, "\n  _+%d more_", remainder)
	}
	return out.String()
}

func mrkdwn(text string) map[string]interface{} {
	return map[string]interface{}{"type": "mrkdwn", "text": text}
}
