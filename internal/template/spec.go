package template

import (
	"fmt"
	"net"
	"strings"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/onboarding"
)

// Platform is the compute platform a request resolves to.
type Platform string

const (
	PlatformAKS           Platform = "AKS"
	PlatformAppService    Platform = "AppService"
	PlatformContainerApps Platform = "ContainerApps"
	PlatformNetwork       Platform = "Network"
)

// SubnetPlan is one carved subnet. Delegation is set only for App Service
// integration subnets.
type SubnetPlan struct {
	Name       string
	CIDR       string
	Delegation string
}

// SecurityPosture holds the classification-driven security defaults.
type SecurityPosture struct {
	TLSVersion       string
	PrivateCluster   bool
	DisablePublicIP  bool
	DefenderEnabled  bool
	WorkloadIdentity bool
	NetworkPolicy    string
}

// InfraSpec is the derived infrastructure specification handed to the
// template engine.
type InfraSpec struct {
	MissionName          string
	ResourceGroup        string
	Environment          string
	Region               string
	SubscriptionID       string
	Classification       string
	ComplianceFrameworks []string
	Platform             Platform
	VNetCIDR             string
	Subnets              []SubnetPlan
	Replicas             int
	Security             SecurityPosture
	Tags                 map[string]string
}

const (
	minReplicas     = 2
	maxReplicas     = 10
	defaultReplicas = 3
	usersPerReplica = 500
)

// highSideClassifications get private endpoints, private clusters and no
// public ingress by default.
var highSideClassifications = map[string]bool{
	"IL5":        true,
	"IL6":        true,
	"SECRET":     true,
	"TOP SECRET": true,
}

// classifiedTiers require TLS 1.3.
var classifiedTiers = map[string]bool{
	"SECRET":     true,
	"TOP SECRET": true,
}

// privateEndpointTiers get a dedicated private-endpoints subnet.
var privateEndpointTiers = map[string]bool{
	"IL5":        true,
	"SECRET":     true,
	"TOP SECRET": true,
}

// BuildInfraSpec derives the full infrastructure specification from a
// request. The derivation rules are provisioning policy, not incidental
// behavior; changing them changes what gets deployed.
func BuildInfraSpec(r *onboarding.Request) (InfraSpec, error) {
	platform := DerivePlatform(r.RequestedServices)

	subnets, err := DeriveSubnets(r.VNetCIDR, r.ClassificationLevel, r.RequestedServices, platform)
	if err != nil {
		return InfraSpec{}, fmt.Errorf("derive subnets: %w", err)
	}

	spec := InfraSpec{
		MissionName:          r.MissionName,
		ResourceGroup:        ResourceGroupName(r.MissionName, r.Environment),
		Environment:          r.Environment,
		Region:               r.Region,
		SubscriptionID:       r.SubscriptionID,
		Classification:       normalizeClassification(r.ClassificationLevel),
		ComplianceFrameworks: r.ComplianceFrameworks,
		Platform:             platform,
		VNetCIDR:             r.VNetCIDR,
		Subnets:              subnets,
		Replicas:             DeriveReplicas(r.EstimatedUsers),
		Security:             DeriveSecurity(r.ClassificationLevel, r.Environment, platform),
		Tags: map[string]string{
			"mission":        r.MissionName,
			"environment":    r.Environment,
			"classification": normalizeClassification(r.ClassificationLevel),
			"owner":          r.OwnerEmail,
			"request-id":     r.ID,
		},
	}
	return spec, nil
}

// DerivePlatform selects the compute platform by keyword match on the
// requested services. Unrecognized service lists default to AKS.
func DerivePlatform(services []string) Platform {
	text := strings.ToLower(strings.Join(services, " "))
	switch {
	case strings.Contains(text, "aks"), strings.Contains(text, "kubernetes"):
		return PlatformAKS
	case strings.Contains(text, "app service"), strings.Contains(text, "webapp"):
		return PlatformAppService
	case strings.Contains(text, "container apps"):
		return PlatformContainerApps
	case strings.Contains(text, "network only"):
		return PlatformNetwork
	}
	return PlatformAKS
}

// DeriveSubnets plans the subnet layout: an application subnet always, plus
// private-endpoints, database and application-gateway subnets depending on
// classification, services and platform. Each subnet is a /24 carved from
// the VNet base by incrementing the third octet.
func DeriveSubnets(vnetCIDR, classification string, services []string, platform Platform) ([]SubnetPlan, error) {
	_, network, err := net.ParseCIDR(vnetCIDR)
	if err != nil {
		return nil, fmt.Errorf("invalid vnet cidr %q: %w", vnetCIDR, err)
	}
	base := network.IP.To4()
	if base == nil {
		return nil, fmt.Errorf("vnet cidr %q is not IPv4", vnetCIDR)
	}

	nextCIDR := func(index int) string {
		return fmt.Sprintf("%d.%d.%d.0/24", base[0], base[1], int(base[2])+index)
	}

	appSubnet := SubnetPlan{Name: "snet-app", CIDR: nextCIDR(0)}
	if platform == PlatformAppService {
		appSubnet.Delegation = "Microsoft.Web/serverFarms"
	}
	subnets := []SubnetPlan{appSubnet}

	if privateEndpointTiers[normalizeClassification(classification)] {
		subnets = append(subnets, SubnetPlan{Name: "snet-private-endpoints", CIDR: nextCIDR(len(subnets))})
	}

	if mentionsDatabase(services) {
		subnets = append(subnets, SubnetPlan{Name: "snet-database", CIDR: nextCIDR(len(subnets))})
	}

	if platform == PlatformAKS {
		subnets = append(subnets, SubnetPlan{Name: "snet-appgw", CIDR: nextCIDR(len(subnets))})
	}

	return subnets, nil
}

func mentionsDatabase(services []string) bool {
	text := strings.ToLower(strings.Join(services, " "))
	for _, keyword := range []string{"sql", "postgres", "mysql", "database"} {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// DeriveReplicas sizes the workload: one replica per 500 estimated users
// plus one, at least 2, capped at 10. Missing or non-positive user counts
// default to 3.
func DeriveReplicas(estimatedUsers int) int {
	if estimatedUsers <= 0 {
		return defaultReplicas
	}
	replicas := estimatedUsers/usersPerReplica + 1
	if replicas < minReplicas {
		replicas = minReplicas
	}
	if replicas > maxReplicas {
		replicas = maxReplicas
	}
	return replicas
}

// DeriveSecurity fixes the classification-driven security posture.
func DeriveSecurity(classification, environment string, platform Platform) SecurityPosture {
	normalized := normalizeClassification(classification)

	posture := SecurityPosture{
		TLSVersion:       "1.2",
		DefenderEnabled:  environment == "prod",
		WorkloadIdentity: platform == PlatformAKS || platform == PlatformAppService,
	}
	if classifiedTiers[normalized] {
		posture.TLSVersion = "1.3"
	}
	if highSideClassifications[normalized] {
		posture.PrivateCluster = true
		posture.DisablePublicIP = true
	}
	if platform == PlatformAKS {
		posture.NetworkPolicy = "azure"
	}
	return posture
}

// ResourceGroupName derives the deterministic resource group name for a
// mission and environment.
func ResourceGroupName(missionName, environment string) string {
	slug := strings.ToLower(strings.TrimSpace(missionName))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		}
		return -1
	}, slug)
	slug = strings.Trim(slug, "-")
	return fmt.Sprintf("rg-%s-%s", slug, environment)
}

func normalizeClassification(classification string) string {
	return strings.ToUpper(strings.TrimSpace(classification))
}
