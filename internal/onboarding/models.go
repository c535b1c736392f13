package onboarding

import (
	"time"
)

// Status is the lifecycle state of an onboarding request.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusUnderReview   Status = "under_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusProvisioning  Status = "provisioning"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
// Terminal rows are kept for audit and history queries, never deleted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Request is a mission onboarding request. Content fields are mutable only
// while the request is in draft; every later transition is append-only.
type Request struct {
	ID     string
	Status Status

	// Content fields, frozen at submission.
	MissionName           string   `validate:"required,notplaceholder"`
	MissionOwner          string   `validate:"required,notplaceholder"`
	OwnerEmail            string   `validate:"required,email"`
	SubscriptionID        string   `validate:"required,notplaceholder"`
	Environment           string   `validate:"required,oneof=dev staging prod"`
	Region                string   `validate:"required,notplaceholder"`
	VNetCIDR              string   `validate:"required,cidrv4"`
	RequestedServices     []string `validate:"required,min=1"`
	ClassificationLevel   string   `validate:"required,notplaceholder"`
	ComplianceFrameworks  []string
	EstimatedUsers        int
	BusinessJustification string `validate:"required,notplaceholder"`

	// Timestamps, each stamped exactly once by the transition that causes it.
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	SubmittedAt   *time.Time
	ReviewedAt    *time.Time
	ApprovedAt    *time.Time
	RejectedAt    *time.Time
	ProvisionedAt *time.Time
	CompletedAt   *time.Time

	// Approval metadata, written only by the approve/reject transition.
	ApprovedBy       string
	RejectedBy       string
	ApprovalComments string
	RejectionReason  string

	// Provisioning metadata, written only by the orchestrator.
	ProvisioningJobID    string
	ProvisionedResources map[string]string
	ProvisioningError    string
}

// AddResource appends one artifact reference discovered during provisioning.
// The map is append-only and written only from the pipeline goroutine.
func (r *Request) AddResource(key, value string) {
	if r.ProvisionedResources == nil {
		r.ProvisionedResources = make(map[string]string)
	}
	r.ProvisionedResources[key] = value
}

// HistoryEntry is one persisted lifecycle transition, kept per request for
// audit queries and as provenance for the template-audit pipeline stage.
type HistoryEntry struct {
	ID         string
	RequestID  string
	FromStatus Status
	ToStatus   Status
	Actor      string
	Note       string
	OccurredAt time.Time
}

// Stats summarizes the request population for the reporting endpoint.
type Stats struct {
	Total    int
	ByStatus map[Status]int
}
