// Package environment defines the contract for materializing generated
// artifacts as cloud resources. The real deployer lives outside this
// service; DryRun stands in for development and tests.
package environment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateEnvironmentRequest carries the artifact set and placement for one
// deployment. TemplateContent and TemplateFiles hold the artifact bytes
// directly; nothing references stored templates.
type CreateEnvironmentRequest struct {
	Name               string
	ResourceGroup      string
	Location           string
	SubscriptionID     string
	TemplateContent    string
	TemplateFiles      map[string]string
	TemplateParameters map[string]string
	Tags               map[string]string
}

// CreateEnvironmentResult reports what the engine created. ErrorMessage is
// set when Success is false.
type CreateEnvironmentResult struct {
	Success          bool
	ResourceGroup    string
	EnvironmentID    string
	DeploymentID     string
	CreatedResources []string
	ErrorMessage     string
}

// Engine deploys an artifact set. Name is used as the stage label when a
// deployment failure is reported.
type Engine interface {
	Name() string
	CreateEnvironment(ctx context.Context, req CreateEnvironmentRequest) (CreateEnvironmentResult, error)
}

// DryRun fabricates deterministic-looking deployment results without
// touching any cloud API. Used in development mode.
type DryRun struct{}

func NewDryRun() *DryRun {
	return &DryRun{}
}

func (e *DryRun) Name() string {
	return "DryRun Environment Engine"
}

func (e *DryRun) CreateEnvironment(ctx context.Context, req CreateEnvironmentRequest) (CreateEnvironmentResult, error) {
	resources := []string{
		fmt.Sprintf("Microsoft.Resources/resourceGroups/%s", req.ResourceGroup),
		fmt.Sprintf("Microsoft.Network/virtualNetworks/vnet-%s", req.Name),
	}
	for name := range req.TemplateFiles {
		if name == "aks.bicep" {
			resources = append(resources, fmt.Sprintf("Microsoft.ContainerService/managedClusters/aks-%s", req.Name))
		}
		if name == "appservice.bicep" {
			resources = append(resources, fmt.Sprintf("Microsoft.Web/sites/app-%s", req.Name))
		}
	}

	return CreateEnvironmentResult{
		Success:          true,
		ResourceGroup:    req.ResourceGroup,
		EnvironmentID:    "env-" + uuid.NewString(),
		DeploymentID:     "deploy-" + uuid.NewString(),
		CreatedResources: resources,
	}, nil
}
