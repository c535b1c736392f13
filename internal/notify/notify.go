// Package notify is the fire-and-forget side channel announcing lifecycle
// changes and pipeline milestones. Dispatch failures must never affect
// request state; call sites log and continue.
package notify

import (
	"context"
	"log/slog"
)

// Kind identifies the lifecycle or pipeline event being announced.
type Kind string

const (
	KindOnboardingApproved          Kind = "onboarding_approved"
	KindOnboardingRejected          Kind = "onboarding_rejected"
	KindTemplateGenerationStarted   Kind = "template_generation_started"
	KindTemplateGenerationCompleted Kind = "template_generation_completed"
	KindDeploymentStarted           Kind = "deployment_started"
	KindDeploymentCompleted         Kind = "deployment_completed"
	KindDeploymentFailed            Kind = "deployment_failed"
	KindProvisioningCompleted       Kind = "provisioning_completed"
	KindProvisioningFailed          Kind = "provisioning_failed"
)

// Event carries the mission name, request id and stage-specific detail for
// one announcement.
type Event struct {
	Kind      Kind
	Mission   string
	RequestID string
	Detail    map[string]string
}

// Dispatcher delivers events to humans or teams. Implementations are
// external delivery mechanisms (Slack, email, chat plugins); the Log and
// Multi dispatchers here cover development and fan-out.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// Log writes every event to the structured log. Used in development and as
// a safety net behind real channels.
type Log struct{}

func (Log) Dispatch(ctx context.Context, event Event) error {
	attrs := []any{"kind", event.Kind, "mission", event.Mission, "request_id", event.RequestID}
	for k, v := range event.Detail {
		attrs = append(attrs, k, v)
	}
	slog.Info("Notification", attrs...)
	return nil
}

// Multi fans one event out to several dispatchers. A failing channel does
// not stop the others; the first error is returned for logging.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, event Event) error {
	var first error
	for _, d := range m {
		if err := d.Dispatch(ctx, event); err != nil {
			slog.Warn("Notification channel failed", "kind", event.Kind, "request_id", event.RequestID, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
