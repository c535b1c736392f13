package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// SlackWebhook posts events to a Slack incoming-webhook URL, one message per
// event. Delivery is best effort; the pipeline never waits on Slack beyond
// the request timeout.
type SlackWebhook struct {
	WebhookURL string
	Channel    string
	Client     *http.Client
}

func NewSlackWebhook(webhookURL, channel string) *SlackWebhook {
	return &SlackWebhook{
		WebhookURL: webhookURL,
		Channel:    channel,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

var slackTitles = map[Kind]string{
	KindOnboardingApproved:          "Onboarding request approved",
	KindOnboardingRejected:          "Onboarding request rejected",
	KindTemplateGenerationStarted:   "Template generation started",
	KindTemplateGenerationCompleted: "Template generation completed",
	KindDeploymentStarted:           "Deployment started",
	KindDeploymentCompleted:         "Deployment completed",
	KindDeploymentFailed:            "Deployment failed",
	KindProvisioningCompleted:       "Environment provisioned",
	KindProvisioningFailed:          "Provisioning failed",
}

func (s *SlackWebhook) Dispatch(ctx context.Context, event Event) error {
	title, ok := slackTitles[event.Kind]
	if !ok {
		title = string(event.Kind)
	}

	text := fmt.Sprintf("*%s*\nMission: %s\nRequest: %s", title, event.Mission, event.RequestID)
	for _, key := range sortedKeys(event.Detail) {
		text += fmt.Sprintf("\n%s: %s", key, event.Detail[key])
	}

	payload, err := json.Marshal(map[string]string{
		"channel": s.Channel,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
