package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestColumns = `id, status, mission_name, mission_owner, owner_email, subscription_id,
	environment, region, vnet_cidr, requested_services, classification_level,
	compliance_frameworks, estimated_users, business_justification,
	created_at, last_updated_at, submitted_at, reviewed_at, approved_at, rejected_at,
	provisioned_at, completed_at, approved_by, rejected_by, approval_comments,
	rejection_reason, provisioning_job_id, provisioned_resources, provisioning_error`

// PostgresStore is the production Store backed by pgx. Transition runs inside
// a transaction with a row-level lock, so the status guard and the mutation
// commit as one atomic step.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, r *Request) error {
	resources, err := json.Marshal(r.ProvisionedResources)
	if err != nil {
		return fmt.Errorf("marshal provisioned resources: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO onboarding_requests (
			id, status, mission_name, mission_owner, owner_email, subscription_id,
			environment, region, vnet_cidr, requested_services, classification_level,
			compliance_frameworks, estimated_users, business_justification,
			created_at, last_updated_at, provisioned_resources
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		r.ID, r.Status, r.MissionName, r.MissionOwner, r.OwnerEmail, r.SubscriptionID,
		r.Environment, r.Region, r.VNetCIDR, r.RequestedServices, r.ClassificationLevel,
		r.ComplianceFrameworks, r.EstimatedUsers, r.BusinessJustification,
		r.CreatedAt, r.LastUpdatedAt, resources)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM onboarding_requests WHERE id = $1`, id)

	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...Status) ([]Request, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM onboarding_requests
		 WHERE status = ANY($1) ORDER BY created_at`, names)
	if err != nil {
		return nil, fmt.Errorf("query requests by status: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerEmail string) ([]Request, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM onboarding_requests
		 WHERE owner_email = $1 ORDER BY created_at`, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("query requests by owner: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM onboarding_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[Status(status)] = int(count)
	}
	return counts, rows.Err()
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from []Status, fn func(*Request) error) (*Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM onboarding_requests WHERE id = $1 FOR UPDATE`, id)
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock request: %w", err)
	}

	if !statusIn(r.Status, from) {
		return nil, ErrInvalidTransition
	}

	if err := fn(r); err != nil {
		return nil, err
	}
	r.LastUpdatedAt = time.Now().UTC()

	resources, err := json.Marshal(r.ProvisionedResources)
	if err != nil {
		return nil, fmt.Errorf("marshal provisioned resources: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE onboarding_requests SET
			status = $2, mission_name = $3, mission_owner = $4, owner_email = $5,
			subscription_id = $6, environment = $7, region = $8, vnet_cidr = $9,
			requested_services = $10, classification_level = $11, compliance_frameworks = $12,
			estimated_users = $13, business_justification = $14, last_updated_at = $15,
			submitted_at = $16, reviewed_at = $17, approved_at = $18, rejected_at = $19,
			provisioned_at = $20, completed_at = $21, approved_by = $22, rejected_by = $23,
			approval_comments = $24, rejection_reason = $25, provisioning_job_id = $26,
			provisioned_resources = $27, provisioning_error = $28
		WHERE id = $1`,
		r.ID, r.Status, r.MissionName, r.MissionOwner, r.OwnerEmail,
		r.SubscriptionID, r.Environment, r.Region, r.VNetCIDR,
		r.RequestedServices, r.ClassificationLevel, r.ComplianceFrameworks,
		r.EstimatedUsers, r.BusinessJustification, r.LastUpdatedAt,
		r.SubmittedAt, r.ReviewedAt, r.ApprovedAt, r.RejectedAt,
		r.ProvisionedAt, r.CompletedAt, r.ApprovedBy, r.RejectedBy,
		r.ApprovalComments, r.RejectionReason, r.ProvisioningJobID,
		resources, r.ProvisioningError)
	if err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO request_history (id, request_id, from_status, to_status, actor, note, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.RequestID, entry.FromStatus, entry.ToStatus,
		entry.Actor, entry.Note, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, requestID string) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, from_status, to_status, actor, note, occurred_at
		FROM request_history WHERE request_id = $1 ORDER BY occurred_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var from, to string
		if err := rows.Scan(&entry.ID, &entry.RequestID, &from, &to,
			&entry.Actor, &entry.Note, &entry.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.FromStatus = Status(from)
		entry.ToStatus = Status(to)
		result = append(result, entry)
	}
	return result, rows.Err()
}

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	var status string
	var submittedAt, reviewedAt, approvedAt, rejectedAt, provisionedAt, completedAt pgtype.Timestamptz
	var approvedBy, rejectedBy, approvalComments, rejectionReason, jobID, provError pgtype.Text
	var resources []byte

	err := row.Scan(
		&r.ID, &status, &r.MissionName, &r.MissionOwner, &r.OwnerEmail, &r.SubscriptionID,
		&r.Environment, &r.Region, &r.VNetCIDR, &r.RequestedServices, &r.ClassificationLevel,
		&r.ComplianceFrameworks, &r.EstimatedUsers, &r.BusinessJustification,
		&r.CreatedAt, &r.LastUpdatedAt, &submittedAt, &reviewedAt, &approvedAt, &rejectedAt,
		&provisionedAt, &completedAt, &approvedBy, &rejectedBy, &approvalComments,
		&rejectionReason, &jobID, &resources, &provError)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.SubmittedAt = timestampPtr(submittedAt)
	r.ReviewedAt = timestampPtr(reviewedAt)
	r.ApprovedAt = timestampPtr(approvedAt)
	r.RejectedAt = timestampPtr(rejectedAt)
	r.ProvisionedAt = timestampPtr(provisionedAt)
	r.CompletedAt = timestampPtr(completedAt)
	r.ApprovedBy = approvedBy.String
	r.RejectedBy = rejectedBy.String
	r.ApprovalComments = approvalComments.String
	r.RejectionReason = rejectionReason.String
	r.ProvisioningJobID = jobID.String
	r.ProvisioningError = provError.String

	if len(resources) > 0 {
		if err := json.Unmarshal(resources, &r.ProvisionedResources); err != nil {
			return nil, fmt.Errorf("unmarshal provisioned resources: %w", err)
		}
	}
	return &r, nil
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	var result []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func timestampPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
