package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/environment"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/notify"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/onboarding"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/template"
)

// Pipeline stage labels, reported in failure notifications and stored in
// the provisioning error.
const (
	stageTemplateGeneration = "Template Generation"
	stageTemplateAudit      = "Template Audit"
	stagePreDeployment      = "Pre-Deployment Validation"
	stageResultRecording    = "Result Recording"

	orchestratorActor = "provisioning-orchestrator"

	defaultWorkers    = 2
	defaultQueueDepth = 64
)

var (
	// ErrShuttingDown is returned when work arrives after Stop.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
	// ErrQueueFull is returned instead of blocking the caller when every
	// queue slot is taken.
	ErrQueueFull = errors.New("provisioning queue is full")
)

// Service drives the five-stage provisioning pipeline. Approve hands a
// request over via Enqueue and returns immediately; a worker pool executes
// the stages strictly in order, persisting progress after every stage so a
// restart can recover by job id.
type Service struct {
	store        onboarding.Store
	jobs         JobStore
	templates    template.Engine
	environments environment.Engine
	dispatcher   notify.Dispatcher

	queue   chan string
	workers int
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewService(store onboarding.Store, jobs JobStore, templates template.Engine, environments environment.Engine, dispatcher notify.Dispatcher) *Service {
	return &Service{
		store:        store,
		jobs:         jobs,
		templates:    templates,
		environments: environments,
		dispatcher:   dispatcher,
		queue:        make(chan string, defaultQueueDepth),
		workers:      defaultWorkers,
	}
}

// Start launches the worker pool. Each worker logs pipeline errors after
// the failure side effects have been persisted, so host-level logging still
// sees every failed run.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for jobID := range s.queue {
				if err := s.runJob(ctx, jobID); err != nil {
					slog.Error("Provisioning job failed", "job_id", jobID, "error", err)
				}
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// schedule hands a job id to the worker pool without blocking the caller.
// The closed flag shares a lock with Stop: a bare send after the queue is
// closed would panic, and a blocking send on a full queue would pin the
// approver's request.
func (s *Service) schedule(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShuttingDown
	}
	select {
	case s.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Enqueue creates a durable job record, advances the request from approved
// to provisioning with the job id stamped, and schedules the pipeline. The
// job id is returned to the approver immediately.
func (s *Service) Enqueue(ctx context.Context, requestID string) (string, error) {
	if s.draining() {
		// Refused before anything is written, so the request stays approved
		// and a later approval cycle can retry.
		return "", ErrShuttingDown
	}

	job := &Job{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Status:    JobQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job record: %w", err)
	}

	_, err := s.store.Transition(ctx, requestID, []onboarding.Status{onboarding.StatusApproved}, func(r *onboarding.Request) error {
		r.Status = onboarding.StatusProvisioning
		r.ProvisioningJobID = job.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("advance request to provisioning: %w", err)
	}
	s.recordHistory(ctx, requestID, onboarding.StatusApproved, onboarding.StatusProvisioning, "provisioning started, job "+job.ID)

	if err := s.schedule(job.ID); err != nil {
		// The job record is already durable and queued; Recover re-enqueues
		// it on the next start.
		return "", fmt.Errorf("schedule job %s: %w", job.ID, err)
	}
	slog.Info("Provisioning job enqueued", "job_id", job.ID, "request_id", requestID)
	return job.ID, nil
}

// Recover re-enqueues jobs that were queued or running when the process
// last stopped. The pipeline is re-entrant by job id: stages re-run from
// the beginning against the still-provisioning request.
func (s *Service) Recover(ctx context.Context) error {
	unfinished, err := s.jobs.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished jobs: %w", err)
	}

	for _, job := range unfinished {
		slog.Info("Recovering interrupted provisioning job", "job_id", job.ID, "request_id", job.RequestID, "status", job.Status)
		if err := s.schedule(job.ID); err != nil {
			return fmt.Errorf("re-enqueue job %s: %w", job.ID, err)
		}
	}
	return nil
}

// JobView is the pollable status record keyed by job id.
type JobView struct {
	JobID                string
	RequestID            string
	Status               JobStatus
	PercentComplete      int
	CurrentStep          string
	ProvisionedResources map[string]string
	ErrorMessage         string
}

// Status returns the current state of one provisioning attempt, merged
// with the resources recorded on the request so far.
func (s *Service) Status(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobView{
		JobID:           job.ID,
		RequestID:       job.RequestID,
		Status:          job.Status,
		PercentComplete: job.PercentComplete,
		CurrentStep:     job.CurrentStep,
		ErrorMessage:    job.Error,
	}

	r, err := s.store.Get(ctx, job.RequestID)
	if err == nil {
		view.ProvisionedResources = r.ProvisionedResources
		if view.ErrorMessage == "" {
			view.ErrorMessage = r.ProvisioningError
		}
	}
	return view, nil
}

// runJob executes the five stages for one job. Any stage failure aborts the
// rest, routes through failJob and is returned to the worker loop.
func (s *Service) runJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	r, err := s.store.Get(ctx, job.RequestID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", job.RequestID, err)
	}
	if r.Status != onboarding.StatusProvisioning {
		// A recovered job whose request already reached a terminal state.
		slog.Warn("Skipping job, request is not provisioning", "job_id", jobID, "request_id", r.ID, "status", r.Status)
		s.finishJob(ctx, job, JobFailed, "request left provisioning state")
		return nil
	}

	started := time.Now().UTC()
	job.Status = JobRunning
	job.StartedAt = &started
	s.updateJob(ctx, job, 10, stageTemplateGeneration)

	// Stage 1: template generation.
	s.notify(ctx, notify.KindTemplateGenerationStarted, r, map[string]string{"engine": s.templates.Name()})

	spec, err := template.BuildInfraSpec(r)
	if err != nil {
		return s.failJob(ctx, job, r, stageTemplateGeneration, err)
	}
	gen, err := s.templates.Generate(ctx, spec)
	if err == nil && !gen.Success {
		err = fmt.Errorf("template engine reported failure: %s", gen.ErrorMessage)
	}
	if err != nil {
		return s.failJob(ctx, job, r, stageTemplateGeneration, err)
	}

	s.notify(ctx, notify.KindTemplateGenerationCompleted, r, map[string]string{
		"files":   strconv.Itoa(len(gen.Files)),
		"summary": gen.Summary,
	})
	s.updateJob(ctx, job, 30, stageTemplateAudit)

	// Stage 2: audit the generated artifact. The artifact itself is
	// deliberately not persisted; the history entry is the provenance.
	auditID := uuid.NewString()
	auditNote := fmt.Sprintf("template audit %s: %d files, components: %v", auditID, len(gen.Files), gen.GeneratedComponents)
	if err := s.store.AppendHistory(ctx, onboarding.HistoryEntry{
		RequestID:  r.ID,
		FromStatus: onboarding.StatusProvisioning,
		ToStatus:   onboarding.StatusProvisioning,
		Actor:      orchestratorActor,
		Note:       auditNote,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return s.failJob(ctx, job, r, stageTemplateAudit, fmt.Errorf("record audit entry: %w", err))
	}
	if err := s.appendResources(ctx, r.ID, map[string]string{
		"TemplateAuditId":    auditID,
		"TemplateNotStored":  "true",
		"GeneratedFileCount": strconv.Itoa(len(gen.Files)),
	}); err != nil {
		return s.failJob(ctx, job, r, stageTemplateAudit, err)
	}
	s.updateJob(ctx, job, 45, stagePreDeployment)

	// Stage 3: pre-deployment validation.
	if err := preflightCheck(r, spec, gen); err != nil {
		return s.failJob(ctx, job, r, stagePreDeployment, err)
	}
	s.updateJob(ctx, job, 60, s.environments.Name())

	// Stage 4: deployment. Artifact contents flow directly from stage 1;
	// there is no stored-template reference.
	s.notify(ctx, notify.KindDeploymentStarted, r, map[string]string{
		"resource_group": spec.ResourceGroup,
		"region":         spec.Region,
	})

	envName := strings.TrimPrefix(spec.ResourceGroup, "rg-")
	result, err := s.environments.CreateEnvironment(ctx, environment.CreateEnvironmentRequest{
		Name:            envName,
		ResourceGroup:   spec.ResourceGroup,
		Location:        spec.Region,
		SubscriptionID:  spec.SubscriptionID,
		TemplateContent: gen.Files[template.EntryPointFile],
		TemplateFiles:   gen.Files,
		TemplateParameters: map[string]string{
			"replicas":   strconv.Itoa(spec.Replicas),
			"tlsVersion": spec.Security.TLSVersion,
		},
		Tags: spec.Tags,
	})
	if err == nil && !result.Success {
		err = fmt.Errorf("environment engine reported failure: %s", result.ErrorMessage)
	}
	if err != nil {
		s.notify(ctx, notify.KindDeploymentFailed, r, map[string]string{
			"stage": s.environments.Name(),
			"error": err.Error(),
		})
		return s.failJob(ctx, job, r, s.environments.Name(), err)
	}

	deployed := map[string]string{
		"EnvironmentName":  envName,
		"EnvironmentId":    result.EnvironmentID,
		"DeploymentId":     result.DeploymentID,
		"DeploymentMethod": s.environments.Name(),
	}
	if result.ResourceGroup != "" {
		deployed["ResourceGroup"] = result.ResourceGroup
	}
	for i, resource := range result.CreatedResources {
		deployed[fmt.Sprintf("Resource%d", i+1)] = resource
	}
	if err := s.appendResources(ctx, r.ID, deployed); err != nil {
		return s.failJob(ctx, job, r, stageResultRecording, err)
	}

	s.notify(ctx, notify.KindDeploymentCompleted, r, map[string]string{
		"environment_id": result.EnvironmentID,
		"deployment_id":  result.DeploymentID,
		"resources":      strconv.Itoa(len(result.CreatedResources)),
	})
	s.updateJob(ctx, job, 90, stageResultRecording)

	// Stage 5: result recording.
	now := time.Now().UTC()
	_, err = s.store.Transition(ctx, r.ID, []onboarding.Status{onboarding.StatusProvisioning}, func(r *onboarding.Request) error {
		r.Status = onboarding.StatusCompleted
		r.ProvisionedAt = &now
		r.CompletedAt = &now
		return nil
	})
	if err != nil {
		return s.failJob(ctx, job, r, stageResultRecording, err)
	}
	s.recordHistory(ctx, r.ID, onboarding.StatusProvisioning, onboarding.StatusCompleted, "environment provisioned")

	s.finishJob(ctx, job, JobSucceeded, "")
	elapsed := time.Since(started).Round(time.Second)
	s.notify(ctx, notify.KindProvisioningCompleted, r, map[string]string{
		"resources": strconv.Itoa(len(result.CreatedResources)),
		"duration":  elapsed.String(),
	})

	slog.Info("Provisioning completed",
		"job_id", job.ID, "request_id", r.ID,
		"resources", len(result.CreatedResources), "duration", elapsed)
	return nil
}

// failJob applies the single failure policy for every stage: log with stage
// context, move the request to failed with the stored error, announce the
// failure, mark the job, and hand the error back to the worker loop. No
// compensating rollback of already-created cloud resources is attempted.
func (s *Service) failJob(ctx context.Context, job *Job, r *onboarding.Request, stage string, cause error) error {
	slog.Error("Pipeline stage failed", "job_id", job.ID, "request_id", r.ID, "stage", stage, "error", cause)

	stored := fmt.Sprintf("%s: %s", stage, cause.Error())
	_, err := s.store.Transition(ctx, r.ID, []onboarding.Status{onboarding.StatusProvisioning}, func(r *onboarding.Request) error {
		r.Status = onboarding.StatusFailed
		r.ProvisioningError = stored
		return nil
	})
	if err != nil {
		slog.Error("Failed to persist failure status", "request_id", r.ID, "error", err)
	} else {
		s.recordHistory(ctx, r.ID, onboarding.StatusProvisioning, onboarding.StatusFailed, stored)
	}

	s.notify(ctx, notify.KindProvisioningFailed, r, map[string]string{
		"stage":              stage,
		"error":              cause.Error(),
		"rollback_performed": "false",
	})

	s.finishJob(ctx, job, JobFailed, stored)
	return fmt.Errorf("stage %s: %w", stage, cause)
}

func (s *Service) appendResources(ctx context.Context, requestID string, resources map[string]string) error {
	_, err := s.store.Transition(ctx, requestID, []onboarding.Status{onboarding.StatusProvisioning}, func(r *onboarding.Request) error {
		for k, v := range resources {
			r.AddResource(k, v)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record provisioned resources: %w", err)
	}
	return nil
}

func (s *Service) updateJob(ctx context.Context, job *Job, percent int, step string) {
	job.PercentComplete = percent
	job.CurrentStep = step
	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("Failed to update job progress", "job_id", job.ID, "error", err)
	}
}

func (s *Service) finishJob(ctx context.Context, job *Job, status JobStatus, errMsg string) {
	now := time.Now().UTC()
	job.Status = status
	job.FinishedAt = &now
	job.Error = errMsg
	if status == JobSucceeded {
		job.PercentComplete = 100
		job.CurrentStep = "Completed"
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("Failed to finalize job", "job_id", job.ID, "error", err)
	}
}

func (s *Service) recordHistory(ctx context.Context, requestID string, from, to onboarding.Status, note string) {
	err := s.store.AppendHistory(ctx, onboarding.HistoryEntry{
		RequestID:  requestID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      orchestratorActor,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to record history entry", "request_id", requestID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, kind notify.Kind, r *onboarding.Request, detail map[string]string) {
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
