package onboarding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/notify"
)

type fakeProvisioner struct {
	mu    sync.Mutex
	jobID string
	err   error
	calls int
}

func (f *fakeProvisioner) Enqueue(ctx context.Context, requestID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.jobID, f.err
}

func newTestService() (*Service, *MemStore, *fakeProvisioner) {
	store := NewMemStore()
	provisioner := &fakeProvisioner{jobID: "job-1"}
	svc := NewService(store, NewValidator(), provisioner, notify.Log{})
	return svc, store, provisioner
}

func completePatch() DraftPatch {
	return PatchFromFields(map[string]any{
		"mission_name":           "Skyhawk Analytics",
		"mission_owner":          "Dana Mercer",
		"owner_email":            "dana.mercer@example.mil",
		"subscription_id":        "7b4e9c1a-22fd-4cde-9a31-55f0cbb6e1db",
		"environment":            "prod",
		"region":                 "usgovvirginia",
		"vnet_cidr":              "10.40.0.0/16",
		"requested_services":     "aks, postgresql",
		"classification_level":   "IL5",
		"compliance_frameworks":  "IL5",
		"estimated_users":        1200,
		"business_justification": "Consolidate mission analytics workloads",
	})
}

func TestCreateDraft(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, PatchFromFields(map[string]any{"mission_name": "Skyhawk"}), "dana")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusDraft, r.Status)
	assert.Equal(t, "Skyhawk", r.MissionName)
	assert.False(t, r.CreatedAt.IsZero())

	history, err := store.History(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StatusDraft, history[0].ToStatus)
}

func TestUpdateDraftRefusedAfterSubmit(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)

	_, _, err = svc.Submit(ctx, r.ID)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(ctx, r.ID, PatchFromFields(map[string]any{"mission_name": "Renamed"}))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Skyhawk Analytics", got.MissionName)
}

func TestSubmitIncompleteStaysDraft(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, PatchFromFields(map[string]any{"mission_name": "Skyhawk"}), "dana")
	require.NoError(t, err)

	_, fieldErrs, err := svc.Submit(ctx, r.ID)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.NotEmpty(t, fieldErrs)

	got, err := svc.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Nil(t, got.SubmittedAt)
}

func TestSubmitCompleteDraft(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)

	submitted, fieldErrs, err := svc.Submit(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
	assert.Equal(t, StatusPendingReview, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)

	// Submitting again is a state conflict, not a validation error.
	_, _, err = svc.Submit(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApproveAfterReview(t *testing.T) {
	svc, store, provisioner := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, r.ID)
	require.NoError(t, err)

	underReview, err := svc.BeginReview(ctx, r.ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, underReview.Status)
	require.NotNil(t, underReview.ReviewedAt)

	approved, jobID, err := svc.Approve(ctx, r.ID, "reviewer", "cleared")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, "reviewer", approved.ApprovedBy)
	assert.Equal(t, "cleared", approved.ApprovalComments)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, 1, provisioner.calls)

	history, err := store.History(ctx, r.ID)
	require.NoError(t, err)
	var approvedEntry *HistoryEntry
	for i := range history {
		if history[i].ToStatus == StatusApproved {
			approvedEntry = &history[i]
		}
	}
	require.NotNil(t, approvedEntry)
	assert.Equal(t, StatusUnderReview, approvedEntry.FromStatus)
	assert.Equal(t, "reviewer", approvedEntry.Actor)
}

func TestApproveDirectlyFromPendingReview(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, r.ID)
	require.NoError(t, err)

	approved, _, err := svc.Approve(ctx, r.ID, "reviewer", "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	// The skipped review step still gets a review timestamp.
	assert.NotNil(t, approved.ReviewedAt)
}

// handoffProvisioner advances the request the way the real pipeline does,
// so tests can pin what Approve returns once the handoff has happened.
type handoffProvisioner struct {
	store Store
	jobID string
}

func (p *handoffProvisioner) Enqueue(ctx context.Context, requestID string) (string, error) {
	_, err := p.store.Transition(ctx, requestID, []Status{StatusApproved}, func(r *Request) error {
		r.Status = StatusProvisioning
		r.ProvisioningJobID = p.jobID
		return nil
	})
	return p.jobID, err
}

func TestApproveReturnsApprovalSnapshot(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, NewValidator(), &handoffProvisioner{store: store, jobID: "job-7"}, notify.Log{})
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, r.ID)
	require.NoError(t, err)

	approved, jobID, err := svc.Approve(ctx, r.ID, "reviewer", "")
	require.NoError(t, err)
	assert.Equal(t, "job-7", jobID)

	// Approve reports the approval itself even though the pipeline has
	// already taken over; callers follow the job id for live state.
	assert.Equal(t, StatusApproved, approved.Status)

	got, err := svc.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProvisioning, got.Status)
	assert.Equal(t, "job-7", got.ProvisioningJobID)
}

func TestApproveDraftRefused(t *testing.T) {
	svc, _, provisioner := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)

	_, _, err = svc.Approve(ctx, r.ID, "reviewer", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, provisioner.calls)
}

func TestApproveEnqueueFailureKeepsRequestApproved(t *testing.T) {
	svc, _, provisioner := newTestService()
	provisioner.err = errors.New("queue full")
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, r.ID)
	require.NoError(t, err)

	approved, jobID, err := svc.Approve(ctx, r.ID, "reviewer", "")
	assert.Error(t, err)
	assert.Empty(t, jobID)
	require.NotNil(t, approved)
	assert.Equal(t, StatusApproved, approved.Status)

	got, err := svc.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestConcurrentApprovalSingleWinner(t *testing.T) {
	svc, _, provisioner := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, r.ID)
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Approve(ctx, r.ID, "reviewer", "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, provisioner.calls)
}

func TestReject(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, r.ID)
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, r.ID, "reviewer", "missing ATO evidence")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "missing ATO evidence", rejected.RejectionReason)
	require.NotNil(t, rejected.RejectedAt)
	assert.True(t, rejected.Status.IsTerminal())

	// Terminal states accept no further decisions.
	_, _, err = svc.Approve(ctx, r.ID, "reviewer", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelScopedToPreApprovalStates(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, r.ID, "dana")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// A second request is approved, after which cancellation is refused.
	r2, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, r2.ID)
	require.NoError(t, err)
	_, _, err = svc.Approve(ctx, r2.ID, "reviewer", "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, r2.ID, "dana")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetRequestNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.GetRequest(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetHistory(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPendingRequests(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, second.ID)
	require.NoError(t, err)
	_, err = svc.BeginReview(ctx, second.ID, "reviewer")
	require.NoError(t, err)

	// Still-draft requests are not pending.
	_, err = svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)

	pending, err := svc.GetPendingRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestGetStats(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, r.ID)
	require.NoError(t, err)

	_, err = svc.CreateDraft(ctx, completePatch(), "dana")
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[StatusDraft])
	assert.Equal(t, 1, stats.ByStatus[StatusPendingReview])
}
