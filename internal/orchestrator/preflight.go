package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/onboarding"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/template"
)

// maxResourceGroupNameLength is the Azure resource group name limit.
const maxResourceGroupNameLength = 90

// preflightCheck is the deployment-specific validation pass, distinct from
// the submission validator: it inspects the generated artifact set and the
// derived spec rather than raw request fields. All violations aggregate into
// a single error so a failed run reports everything at once.
func preflightCheck(r *onboarding.Request, spec template.InfraSpec, gen template.GenerateResult) error {
	var violations []string

	if _, ok := gen.Files[template.EntryPointFile]; !ok {
		violations = append(violations, fmt.Sprintf("generated artifacts have no %s entry point", template.EntryPointFile))
	}
	if strings.TrimSpace(spec.Region) == "" {
		violations = append(violations, "deployment region is not set")
	}
	if strings.TrimSpace(spec.VNetCIDR) == "" {
		violations = append(violations, "virtual network CIDR is not set")
	}
	if len(spec.ResourceGroup) > maxResourceGroupNameLength {
		violations = append(violations, fmt.Sprintf(
			"resource group name %q exceeds the %d character limit", spec.ResourceGroup, maxResourceGroupNameLength))
	}

	if isClassified(spec.Classification) {
		if !hasImpactLevelFramework(r.ComplianceFrameworks) {
			violations = append(violations, fmt.Sprintf(
				"classification %s requires an IL5 or IL6 compliance framework", spec.Classification))
		}
		if !isGovernmentRegion(spec.Region) {
			violations = append(violations, fmt.Sprintf(
				"classification %s requires a government region, got %q", spec.Classification, spec.Region))
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return errors.New(strings.Join(violations, "; "))
}

func isClassified(classification string) bool {
	switch classification {
	case "SECRET", "TOP SECRET":
		return true
	}
	return false
}

func hasImpactLevelFramework(frameworks []string) bool {
	for _, framework := range frameworks {
		upper := strings.ToUpper(framework)
		if strings.Contains(upper, "IL5") || strings.Contains(upper, "IL6") {
			return true
		}
	}
	return false
}

func isGovernmentRegion(region string) bool {
	return strings.Contains(strings.ToLower(region), "gov")
}
