package dto

import "time"

// DraftRequest is the loosely-typed body for draft creation and updates.
// Fields is a sparse field->value map straight from the UI form; unknown
// keys are ignored with a warning and list fields may arrive as delimited
// strings.
type DraftRequest struct {
	Fields map[string]any `json:"fields" binding:"required"`
}

type ApproveRequest struct {
	Comments string `json:"comments"`
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type RequestResponse struct {
	ID                    string            `json:"id"`
	Status                string            `json:"status"`
	MissionName           string            `json:"mission_name,omitempty"`
	MissionOwner          string            `json:"mission_owner,omitempty"`
	OwnerEmail            string            `json:"owner_email,omitempty"`
	SubscriptionID        string            `json:"subscription_id,omitempty"`
	Environment           string            `json:"environment,omitempty"`
	Region                string            `json:"region,omitempty"`
	VNetCIDR              string            `json:"vnet_cidr,omitempty"`
	RequestedServices     []string          `json:"requested_services,omitempty"`
	ClassificationLevel   string            `json:"classification_level,omitempty"`
	ComplianceFrameworks  []string          `json:"compliance_frameworks,omitempty"`
	EstimatedUsers        int               `json:"estimated_users,omitempty"`
	BusinessJustification string            `json:"business_justification,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	LastUpdatedAt         time.Time         `json:"last_updated_at"`
	SubmittedAt           *time.Time        `json:"submitted_at,omitempty"`
	ReviewedAt            *time.Time        `json:"reviewed_at,omitempty"`
	ApprovedAt            *time.Time        `json:"approved_at,omitempty"`
	RejectedAt            *time.Time        `json:"rejected_at,omitempty"`
	ProvisionedAt         *time.Time        `json:"provisioned_at,omitempty"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
	ApprovedBy            string            `json:"approved_by,omitempty"`
	RejectedBy            string            `json:"rejected_by,omitempty"`
	ApprovalComments      string            `json:"approval_comments,omitempty"`
	RejectionReason       string            `json:"rejection_reason,omitempty"`
	ProvisioningJobID     string            `json:"provisioning_job_id,omitempty"`
	ProvisionedResources  map[string]string `json:"provisioned_resources,omitempty"`
	ProvisioningError     string            `json:"provisioning_error,omitempty"`
}

type ListRequestsResponse struct {
	Requests []RequestResponse `json:"requests"`
}

type FieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationFailureResponse struct {
	Error  string               `json:"error"`
	Fields []FieldErrorResponse `json:"fields"`
}

type ApproveResponse struct {
	Request RequestResponse `json:"request"`
	JobID   string          `json:"job_id"`
}

type ProgressResponse struct {
	PercentComplete int      `json:"percent_complete"`
	CurrentPhase    string   `json:"current_phase"`
	MissingFields   []string `json:"missing_fields,omitempty"`
}

type HistoryEntryResponse struct {
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type HistoryResponse struct {
	RequestID string                 `json:"request_id"`
	Entries   []HistoryEntryResponse `json:"entries"`
}

type StatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
