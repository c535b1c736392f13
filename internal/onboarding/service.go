package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/notify"
)

var ErrValidationFailed = errors.New("request validation failed")

// Provisioner hands an approved request to the background pipeline and
// returns the job id correlating that provisioning attempt. Implemented by
// the orchestrator; the interface lives here so the lifecycle service does
// not depend on pipeline internals.
type Provisioner interface {
	Enqueue(ctx context.Context, requestID string) (jobID string, err error)
}

// Service owns the lifecycle state machine. Every transition is one atomic
// compare-and-set through the store; only Approve hands work to a background
// job, everything else completes on the caller's goroutine.
type Service struct {
	store       Store
	validator   *Validator
	provisioner Provisioner
	dispatcher  notify.Dispatcher
}

func NewService(store Store, validator *Validator, provisioner Provisioner, dispatcher notify.Dispatcher) *Service {
	return &Service{
		store:       store,
		validator:   validator,
		provisioner: provisioner,
		dispatcher:  dispatcher,
	}
}

// CreateDraft creates a new request in draft state. The id is generated here
// and immutable afterwards.
func (s *Service) CreateDraft(ctx context.Context, patch DraftPatch, requestedBy string) (*Request, error) {
	now := time.Now().UTC()
	r := &Request{
		ID:            uuid.NewString(),
		Status:        StatusDraft,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	patch.apply(r)

	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	s.recordHistory(ctx, r.ID, "", StatusDraft, requestedBy, "draft created")
	slog.Info("Onboarding draft created", "request_id", r.ID, "mission", r.MissionName, "requested_by", requestedBy)
	return r, nil
}

// UpdateDraft applies a sparse patch to a draft. Requests in any other state
// are immutable; the call fails with ErrInvalidTransition and changes nothing.
func (s *Service) UpdateDraft(ctx context.Context, id string, patch DraftPatch) (*Request, error) {
	r, err := s.store.Transition(ctx, id, []Status{StatusDraft}, func(r *Request) error {
		patch.apply(r)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			slog.Warn("Draft update refused, request is not in draft", "request_id", id)
		}
		return nil, err
	}
	return r, nil
}

// Submit freezes the draft and moves it to pending review. The validator is
// a hard gate: an incomplete request is refused with the field errors and no
// state change.
func (s *Service) Submit(ctx context.Context, id string) (*Request, []FieldError, error) {
	var fieldErrs []FieldError
	r, err := s.store.Transition(ctx, id, []Status{StatusDraft}, func(r *Request) error {
		ok, errs := s.validator.Validate(r)
		if !ok {
			fieldErrs = errs
			return ErrValidationFailed
		}
		now := time.Now().UTC()
		r.Status = StatusPendingReview
		r.SubmittedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrValidationFailed) {
			slog.Warn("Submission refused, validation failed", "request_id", id, "violations", len(fieldErrs))
			return nil, fieldErrs, err
		}
		return nil, nil, err
	}

	s.recordHistory(ctx, id, StatusDraft, StatusPendingReview, r.OwnerEmail, "submitted for review")
	slog.Info("Onboarding request submitted", "request_id", id, "mission", r.MissionName)
	return r, nil, nil
}

// BeginReview claims a pending request for a reviewer.
func (s *Service) BeginReview(ctx context.Context, id, reviewer string) (*Request, error) {
	r, err := s.store.Transition(ctx, id, []Status{StatusPendingReview}, func(r *Request) error {
		now := time.Now().UTC()
		r.Status = StatusUnderReview
		r.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordHistory(ctx, id, StatusPendingReview, StatusUnderReview, reviewer, "review started")
	slog.Info("Onboarding request under review", "request_id", id, "reviewer", reviewer)
	return r, nil
}

// Approve moves a reviewed request to approved and hands it to the
// provisioning pipeline. It returns the job id immediately; callers poll the
// job status instead of awaiting completion. The returned request is the
// approval snapshot: the pipeline advances the stored request to
// provisioning and beyond on its own schedule, so the live state is always
// read through the job, never from this return value. The status guard runs
// as a compare-and-set, so concurrent approvals launch at most one pipeline.
func (s *Service) Approve(ctx context.Context, id, approver, comments string) (*Request, string, error) {
	var prev Status
	r, err := s.store.Transition(ctx, id, []Status{StatusPendingReview, StatusUnderReview}, func(r *Request) error {
		prev = r.Status
		now := time.Now().UTC()
		r.Status = StatusApproved
		r.ApprovedAt = &now
		r.ApprovedBy = approver
		r.ApprovalComments = comments
		if r.ReviewedAt == nil {
			r.ReviewedAt = &now
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			slog.Warn("Approval refused", "request_id", id, "approver", approver)
		}
		return nil, "", err
	}

	s.recordHistory(ctx, id, prev, StatusApproved, approver, comments)
	s.notify(ctx, notify.KindOnboardingApproved, r, map[string]string{
		"approved_by": approver,
	})

	jobID, err := s.provisioner.Enqueue(ctx, id)
	if err != nil {
		// The request stays approved; a restart or manual re-enqueue picks
		// it up rather than silently stranding it.
		slog.Error("Failed to enqueue provisioning job", "request_id", id, "error", err)
		return r, "", fmt.Errorf("enqueue provisioning: %w", err)
	}

	slog.Info("Onboarding request approved", "request_id", id, "approver", approver, "job_id", jobID)
	return r, jobID, nil
}

// Reject ends the review with a rejection. Terminal.
func (s *Service) Reject(ctx context.Context, id, reviewer, reason string) (*Request, error) {
	var prev Status
	r, err := s.store.Transition(ctx, id, []Status{StatusPendingReview, StatusUnderReview}, func(r *Request) error {
		prev = r.Status
		now := time.Now().UTC()
		r.Status = StatusRejected
		r.RejectedAt = &now
		r.RejectedBy = reviewer
		r.RejectionReason = reason
		if r.ReviewedAt == nil {
			r.ReviewedAt = &now
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			slog.Warn("Rejection refused", "request_id", id, "reviewer", reviewer)
		}
		return nil, err
	}

	s.recordHistory(ctx, id, prev, StatusRejected, reviewer, reason)
	s.notify(ctx, notify.KindOnboardingRejected, r, map[string]string{
		"rejected_by": reviewer,
		"reason":      reason,
	})

	slog.Info("Onboarding request rejected", "request_id", id, "reviewer", reviewer)
	return r, nil
}

// Cancel withdraws a request before provisioning starts. Once approval has
// handed the request to the pipeline, cancellation is no longer meaningful
// and is refused.
func (s *Service) Cancel(ctx context.Context, id, actor string) (*Request, error) {
	var prev Status
	r, err := s.store.Transition(ctx, id, []Status{StatusDraft, StatusPendingReview, StatusUnderReview}, func(r *Request) error {
		prev = r.Status
		r.Status = StatusCancelled
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			slog.Warn("Cancellation refused", "request_id", id, "actor", actor)
		}
		return nil, err
	}

	s.recordHistory(ctx, id, prev, StatusCancelled, actor, "request cancelled")
	slog.Info("Onboarding request cancelled", "request_id", id, "actor", actor)
	return r, nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (*Request, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetPendingRequests(ctx context.Context) ([]Request, error) {
	return s.store.ListByStatus(ctx, StatusPendingReview, StatusUnderReview)
}

func (s *Service) GetRequestsByOwner(ctx context.Context, ownerEmail string) ([]Request, error) {
	return s.store.ListByOwner(ctx, ownerEmail)
}

func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	stats := &Stats{ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *Service) GetHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// Progress is the adapter-facing completion report for UI rendering.
func (s *Service) Progress(ctx context.Context, id string) (*Progress, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p := s.validator.Progress(r)
	return &p, nil
}

func (s *Service) recordHistory(ctx context.Context, id string, from, to Status, actor, note string) {
	entry := HistoryEntry{
		RequestID:  id,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		slog.Error("Failed to record history entry", "request_id", id, "to_status", to, "error", err)
	}
}

// notify dispatches a lifecycle notification. Dispatch failures are logged
// and never affect request state.
func (s *Service) notify(ctx context.Context, kind notify.Kind, r *Request, detail map[string]string) {
	event := notify.Event{
		Kind:      kind,
		Mission:   r.MissionName,
		RequestID: r.ID,
		Detail:    detail,
	}
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		slog.Warn("Notification dispatch failed", "kind", kind, "request_id", r.ID, "error", err)
	}
}
