package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aksSpec() InfraSpec {
	return InfraSpec{
		MissionName:    "Skyhawk Analytics",
		ResourceGroup:  "rg-skyhawk-analytics-prod",
		Environment:    "prod",
		Region:         "usgovvirginia",
		SubscriptionID: "sub-1",
		Classification: "IL5",
		Platform:       PlatformAKS,
		VNetCIDR:       "10.0.0.0/16",
		Subnets: []SubnetPlan{
			{Name: "snet-app", CIDR: "10.0.0.0/24"},
			{Name: "snet-appgw", CIDR: "10.0.1.0/24"},
		},
		Replicas: 3,
		Security: SecurityPosture{
			TLSVersion:       "1.2",
			PrivateCluster:   true,
			DisablePublicIP:  true,
			WorkloadIdentity: true,
			NetworkPolicy:    "azure",
		},
		Tags: map[string]string{"mission": "Skyhawk Analytics", "environment": "prod"},
	}
}

func TestBicepGenerateAKS(t *testing.T) {
	engine := NewBicepEngine()

	result, err := engine.Generate(context.Background(), aksSpec())
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Contains(t, result.Files, EntryPointFile)
	require.Contains(t, result.Files, "network.bicep")
	require.Contains(t, result.Files, "parameters.json")
	require.Contains(t, result.Files, "aks.bicep")
	assert.Contains(t, result.GeneratedComponents, "aks-cluster")

	main := result.Files[EntryPointFile]
	assert.Contains(t, main, "rg-skyhawk-analytics-prod")
	assert.Contains(t, main, "'mission': 'Skyhawk Analytics'")

	aks := result.Files["aks.bicep"]
	assert.Contains(t, aks, "enablePrivateCluster: true")
	assert.Contains(t, aks, "networkPolicy: 'azure'")
	assert.Contains(t, aks, "count: 3")
}

func TestBicepGenerateNetworkRendersSubnets(t *testing.T) {
	engine := NewBicepEngine()
	spec := aksSpec()
	spec.Subnets = append(spec.Subnets, SubnetPlan{
		Name:       "snet-integration",
		CIDR:       "10.0.2.0/24",
		Delegation: "Microsoft.Web/serverFarms",
	})

	result, err := engine.Generate(context.Background(), spec)
	require.NoError(t, err)

	network := result.Files["network.bicep"]
	assert.Contains(t, network, "addressPrefixes: ['10.0.0.0/16']")
	assert.Contains(t, network, "snet-app")
	assert.Contains(t, network, "snet-appgw")
	assert.Contains(t, network, "serviceName: 'Microsoft.Web/serverFarms'")
}

func TestBicepGeneratePerPlatformModules(t *testing.T) {
	engine := NewBicepEngine()
	ctx := context.Background()

	cases := []struct {
		platform  Platform
		file      string
		component string
	}{
		{PlatformAppService, "appservice.bicep", "app-service-plan"},
		{PlatformContainerApps, "containerapps.bicep", "container-apps-environment"},
	}
	for _, tc := range cases {
		spec := aksSpec()
		spec.Platform = tc.platform

		result, err := engine.Generate(ctx, spec)
		require.NoError(t, err)
		assert.Contains(t, result.Files, tc.file)
		assert.Contains(t, result.GeneratedComponents, tc.component)
		assert.NotContains(t, result.Files, "aks.bicep")
	}
}

func TestBicepGenerateNetworkOnly(t *testing.T) {
	engine := NewBicepEngine()
	spec := aksSpec()
	spec.Platform = PlatformNetwork

	result, err := engine.Generate(context.Background(), spec)
	require.NoError(t, err)

	assert.Len(t, result.Files, 3)
	assert.Equal(t, []string{"resource-group", "virtual-network"}, result.GeneratedComponents)
}

func TestBicepGenerateDeterministic(t *testing.T) {
	engine := NewBicepEngine()
	ctx := context.Background()
	spec := aksSpec()

	first, err := engine.Generate(ctx, spec)
	require.NoError(t, err)
	second, err := engine.Generate(ctx, spec)
	require.NoError(t, err)

	assert.Equal(t, first.Files, second.Files)
}
