package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/api/http/dto"
)

func completeDraftFields() map[string]any {
	return map[string]any{
		"mission_name":           "Skyhawk Analytics",
		"mission_owner":          "Dana Mercer",
		"owner_email":            "dana.mercer@example.mil",
		"subscription_id":        "7b4e9c1a-22fd-4cde-9a31-55f0cbb6e1db",
		"environment":            "prod",
		"region":                 "usgovvirginia",
		"vnet_cidr":              "10.40.0.0/16",
		"requested_services":     "aks, postgresql",
		"classification_level":   "IL5",
		"compliance_frameworks":  "IL5; FedRAMP High",
		"estimated_users":        1200,
		"business_justification": "Consolidate mission analytics workloads on approved infrastructure",
	}
}

func loginAs(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()
	rr := doJSON(router, "POST", "/auth/login", dto.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rr.Code, "login as %s failed: %s", username, rr.Body.String())

	var resp dto.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

func registerAndLogin(t *testing.T, router *gin.Engine, username string) string {
	t.Helper()
	rr := doJSON(router, "POST", "/auth/register", dto.RegisterRequest{Username: username, Password: "password123"})
	require.Equal(t, http.StatusCreated, rr.Code)
	return loginAs(t, router, username, "password123")
}

// TestOnboardingLifecycle walks one request from empty draft through
// submission, review, approval and asynchronous provisioning.
func TestOnboardingLifecycle(t *testing.T, router *gin.Engine) {
	requesterToken := registerAndLogin(t, router, "mission-owner-1")
	reviewerToken := loginAs(t, router, "reviewer", "changeme")

	// Create a sparse draft.
	rr := doJSONWithAuth(router, "POST", "/requests", dto.DraftRequest{Fields: map[string]any{
		"mission_name":  "Skyhawk Analytics",
		"mission_owner": "Dana Mercer",
	}}, requesterToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created dto.RequestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "draft", created.Status)
	requestPath := "/requests/" + created.ID

	// Progress reflects the incomplete draft.
	rr = doJSONWithAuth(router, "GET", requestPath+"/progress", nil, requesterToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var progress dto.ProgressResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &progress))
	assert.Less(t, progress.PercentComplete, 100)
	assert.NotEmpty(t, progress.MissingFields)

	// Submitting an incomplete draft is refused with field errors.
	rr = doJSONWithAuth(router, "POST", requestPath+"/submit", nil, requesterToken)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var failure dto.ValidationFailureResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &failure))
	assert.NotEmpty(t, failure.Fields)

	// Fill in the rest and submit.
	rr = doJSONWithAuth(router, "PATCH", requestPath, dto.DraftRequest{Fields: completeDraftFields()}, requesterToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSONWithAuth(router, "POST", requestPath+"/submit", nil, requesterToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var submitted dto.RequestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitted))
	assert.Equal(t, "pending_review", submitted.Status)
	assert.NotNil(t, submitted.SubmittedAt)

	// Editing after submission is refused.
	rr = doJSONWithAuth(router, "PATCH", requestPath, dto.DraftRequest{Fields: map[string]any{
		"mission_name": "Renamed",
	}}, requesterToken)
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Review decisions need the reviewer role.
	rr = doJSONWithAuth(router, "POST", requestPath+"/approve", dto.ApproveRequest{}, requesterToken)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSONWithAuth(router, "POST", requestPath+"/review", nil, reviewerToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSONWithAuth(router, "POST", requestPath+"/approve", dto.ApproveRequest{Comments: "cleared for prod"}, reviewerToken)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var approved dto.ApproveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &approved))
	require.NotEmpty(t, approved.JobID)
	// The response carries the approval snapshot; the pipeline advances the
	// stored request asynchronously, so live state comes from the job.
	assert.Equal(t, "approved", approved.Request.Status)

	// Approving twice is refused.
	rr = doJSONWithAuth(router, "POST", requestPath+"/approve", dto.ApproveRequest{}, reviewerToken)
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Poll the job until the pipeline finishes.
	jobPath := "/jobs/" + approved.JobID
	require.Eventually(t, func() bool {
		rr := doJSONWithAuth(router, "GET", jobPath, nil, requesterToken)
		if rr.Code != http.StatusOK {
			return false
		}
		var job dto.JobStatusResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.Status == "succeeded"
	}, 15*time.Second, 100*time.Millisecond, "provisioning job did not finish")

	rr = doJSONWithAuth(router, "GET", jobPath, nil, requesterToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var job dto.JobStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.Equal(t, 100, job.PercentComplete)
	assert.NotEmpty(t, job.ProvisionedResources["EnvironmentName"])
	assert.NotEmpty(t, job.ProvisionedResources["DeploymentId"])

	rr = doJSONWithAuth(router, "GET", requestPath, nil, requesterToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var final dto.RequestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &final))
	assert.Equal(t, "completed", final.Status)
	assert.NotNil(t, final.CompletedAt)
	assert.NotEmpty(t, final.ProvisionedResources)

	// The history records every hop.
	rr = doJSONWithAuth(router, "GET", requestPath+"/history", nil, requesterToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var history dto.HistoryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	statuses := make([]string, 0, len(history.Entries))
	for _, entry := range history.Entries {
		statuses = append(statuses, entry.ToStatus)
	}
	assert.Contains(t, statuses, "pending_review")
	assert.Contains(t, statuses, "approved")
	assert.Contains(t, statuses, "provisioning")
	assert.Contains(t, statuses, "completed")
}

func TestRejectFlow(t *testing.T, router *gin.Engine) {
	requesterToken := registerAndLogin(t, router, "mission-owner-2")
	reviewerToken := loginAs(t, router, "reviewer", "changeme")

	rr := doJSONWithAuth(router, "POST", "/requests", dto.DraftRequest{Fields: completeDraftFields()}, requesterToken)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created dto.RequestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	requestPath := "/requests/" + created.ID

	rr = doJSONWithAuth(router, "POST", requestPath+"/submit", nil, requesterToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// A reason is mandatory.
	rr = doJSONWithAuth(router, "POST", requestPath+"/reject", dto.RejectRequest{}, reviewerToken)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSONWithAuth(router, "POST", requestPath+"/reject", dto.RejectRequest{Reason: "missing ATO evidence"}, reviewerToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rejected dto.RequestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rejected))
	assert.Equal(t, "rejected", rejected.Status)
	assert.Equal(t, "missing ATO evidence", rejected.RejectionReason)

	// Terminal; further decisions are refused.
	rr = doJSONWithAuth(router, "POST", requestPath+"/approve", dto.ApproveRequest{}, reviewerToken)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCancelFlow(t *testing.T, router *gin.Engine) {
	requesterToken := registerAndLogin(t, router, "mission-owner-3")

	rr := doJSONWithAuth(router, "POST", "/requests", dto.DraftRequest{Fields: map[string]any{
		"mission_name": "Shortlived",
	}}, requesterToken)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created dto.RequestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = doJSONWithAuth(router, "POST", fmt.Sprintf("/requests/%s/cancel", created.ID), nil, requesterToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var cancelled dto.RequestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cancelled))
	assert.Equal(t, "cancelled", cancelled.Status)

	rr = doJSONWithAuth(router, "POST", fmt.Sprintf("/requests/%s/cancel", created.ID), nil, requesterToken)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestStats(t *testing.T, router *gin.Engine, opsKey string) {
	t.Run("requires api key", func(t *testing.T) {
		rr := doJSON(router, "GET", "/stats", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("counts by status", func(t *testing.T) {
		rr := doWithAPIKey(router, "GET", "/stats", opsKey)
		require.Equal(t, http.StatusOK, rr.Code)

		var stats dto.StatsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
		assert.GreaterOrEqual(t, stats.Total, 1)
	})
}
