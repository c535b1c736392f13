package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackWebhookDispatch(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook := NewSlackWebhook(server.URL, "#mission-onboarding")
	err := webhook.Dispatch(context.Background(), Event{
		Kind:      KindDeploymentCompleted,
		Mission:   "Skyhawk",
		RequestID: "req-1",
		Detail:    map[string]string{"deployment_id": "deploy-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "#mission-onboarding", received["channel"])
	assert.Contains(t, received["text"], "Deployment completed")
	assert.Contains(t, received["text"], "Skyhawk")
	assert.Contains(t, received["text"], "deploy-1")
}

func TestSlackWebhookNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	webhook := NewSlackWebhook(server.URL, "#ch")
	err := webhook.Dispatch(context.Background(), Event{Kind: KindProvisioningFailed})
	assert.Error(t, err)
}
