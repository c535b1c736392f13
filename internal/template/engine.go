// Package template turns an onboarding request into an infrastructure
// specification and renders it into deployable artifacts.
package template

import "context"

// GenerateResult is the outcome of one template generation. Files hold the
// rendered artifact contents in memory; the pipeline hands them straight to
// the environment engine without a storage round trip.
type GenerateResult struct {
	Success             bool
	Files               map[string]string
	GeneratedComponents []string
	Summary             string
	ErrorMessage        string
}

// Engine renders an InfraSpec into artifact files. The built-in Bicep
// engine covers development; external generation services implement the
// same contract.
type Engine interface {
	Name() string

	// Generate renders the artifact set. The context is advisory and is
	// propagated to remote engines; the pipeline does not abort between
	// stages on cancellation.
	Generate(ctx context.Context, spec InfraSpec) (GenerateResult, error)
}
