package template

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EntryPointFile is the renderable entry point the pre-deployment check
// requires in every generated artifact set.
const EntryPointFile = "main.bicep"

// BicepEngine is the built-in template engine. It renders a deterministic
// Bicep file set from the derived spec; remote generation services can
// replace it behind the Engine interface.
type BicepEngine struct{}

func NewBicepEngine() *BicepEngine {
	return &BicepEngine{}
}

func (e *BicepEngine) Name() string {
	return "Bicep Template Engine"
}

func (e *BicepEngine) Generate(ctx context.Context, spec InfraSpec) (GenerateResult, error) {
	files := map[string]string{
		EntryPointFile:    renderMain(spec),
		"network.bicep":   renderNetwork(spec),
		"parameters.json": renderParameters(spec),
	}
	components := []string{"resource-group", "virtual-network"}

	switch spec.Platform {
	case PlatformAKS:
		files["aks.bicep"] = renderAKS(spec)
		components = append(components, "aks-cluster")
	case PlatformAppService:
		files["appservice.bicep"] = renderAppService(spec)
		components = append(components, "app-service-plan")
	case PlatformContainerApps:
		files["containerapps.bicep"] = renderContainerApps(spec)
		components = append(components, "container-apps-environment")
	case PlatformNetwork:
		// Network-only missions deploy no compute module.
	}

	return GenerateResult{
		Success:             true,
		Files:               files,
		GeneratedComponents: components,
		Summary: fmt.Sprintf("%d files for %s on %s (%d subnets, %d replicas)",
			len(files), spec.MissionName, spec.Platform, len(spec.Subnets), spec.Replicas),
	}, nil
}

func renderMain(spec InfraSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "targetScope = 'subscription'\n\n")
	fmt.Fprintf(&b, "param location string = '%s'\n\n", spec.Region)
	fmt.Fprintf(&b, "resource rg 'Microsoft.Resources/resourceGroups@2022-09-01' = {\n")
	fmt.Fprintf(&b, "  name: '%s'\n", spec.ResourceGroup)
	fmt.Fprintf(&b, "  location: location\n")
	fmt.Fprintf(&b, "  tags: {\n")
	for _, key := range sortedTagKeys(spec.Tags) {
		fmt.Fprintf(&b, "    '%s': '%s'\n", key, spec.Tags[key])
	}
	fmt.Fprintf(&b, "  }\n}\n\n")
	fmt.Fprintf(&b, "module network 'network.bicep' = {\n")
	fmt.Fprintf(&b, "  name: 'network'\n  scope: rg\n}\n")
	return b.String()
}

func renderNetwork(spec InfraSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "resource vnet 'Microsoft.Network/virtualNetworks@2023-09-01' = {\n")
	fmt.Fprintf(&b, "  name: 'vnet-%s'\n", spec.Environment)
	fmt.Fprintf(&b, "  properties: {\n")
	fmt.Fprintf(&b, "    addressSpace: { addressPrefixes: ['%s'] }\n", spec.VNetCIDR)
	fmt.Fprintf(&b, "    subnets: [\n")
	for _, subnet := range spec.Subnets {
		fmt.Fprintf(&b, "      { name: '%s', properties: { addressPrefix: '%s'", subnet.Name, subnet.CIDR)
		if subnet.Delegation != "" {
			fmt.Fprintf(&b, ", delegations: [{ name: 'delegation', properties: { serviceName: '%s' } }]", subnet.Delegation)
		}
		fmt.Fprintf(&b, " } }\n")
	}
	fmt.Fprintf(&b, "    ]\n  }\n}\n")
	return b.String()
}

func renderAKS(spec InfraSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "resource aks 'Microsoft.ContainerService/managedClusters@2024-01-01' = {\n")
	fmt.Fprintf(&b, "  name: 'aks-%s'\n", spec.Environment)
	fmt.Fprintf(&b, "  properties: {\n")
	fmt.Fprintf(&b, "    agentPoolProfiles: [{ name: 'system', count: %d }]\n", spec.Replicas)
	fmt.Fprintf(&b, "    apiServerAccessProfile: { enablePrivateCluster: %t }\n", spec.Security.PrivateCluster)
	fmt.Fprintf(&b, "    networkProfile: { networkPolicy: '%s' }\n", spec.Security.NetworkPolicy)
	fmt.Fprintf(&b, "    securityProfile: { workloadIdentity: { enabled: %t } }\n", spec.Security.WorkloadIdentity)
	fmt.Fprintf(&b, "  }\n}\n")
	return b.String()
}

func renderAppService(spec InfraSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "resource plan 'Microsoft.Web/serverfarms@2023-12-01' = {\n")
	fmt.Fprintf(&b, "  name: 'asp-%s'\n", spec.Environment)
	fmt.Fprintf(&b, "  sku: { capacity: %d }\n", spec.Replicas)
	fmt.Fprintf(&b, "}\n\n")
	fmt.Fprintf(&b, "resource app 'Microsoft.Web/sites@2023-12-01' = {\n")
	fmt.Fprintf(&b, "  name: 'app-%s'\n", spec.Environment)
	fmt.Fprintf(&b, "  properties: {\n")
	fmt.Fprintf(&b, "    siteConfig: { minTlsVersion: '%s' }\n", spec.Security.TLSVersion)
	fmt.Fprintf(&b, "    publicNetworkAccess: '%s'\n", publicAccess(spec))
	fmt.Fprintf(&b, "  }\n}\n")
	return b.String()
}

func renderContainerApps(spec InfraSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "resource env 'Microsoft.App/managedEnvironments@2024-03-01' = {\n")
	fmt.Fprintf(&b, "  name: 'cae-%s'\n", spec.Environment)
	fmt.Fprintf(&b, "  properties: { zoneRedundant: %t }\n", spec.Environment == "prod")
	fmt.Fprintf(&b, "}\n")
	return b.String()
}

func renderParameters(spec InfraSpec) string {
	params := map[string]any{
		"location":       spec.Region,
		"subscriptionId": spec.SubscriptionID,
		"classification": spec.Classification,
		"replicas":       spec.Replicas,
		"tlsVersion":     spec.Security.TLSVersion,
		"defender":       spec.Security.DefenderEnabled,
	}
	encoded, _ := json.MarshalIndent(params, "", "  ")
	return string(encoded)
}

func publicAccess(spec InfraSpec) string {
	if spec.Security.DisablePublicIP {
		return "Disabled"
	}
	return "Enabled"
}

func sortedTagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
