package onboarding

import (
	"log/slog"
	"strings"
)

// DraftPatch is a sparse update to a draft request. Nil fields are left
// untouched. The HTTP adapter builds patches from loosely-typed form input;
// the core never mutates its own entity by string-keyed field name.
type DraftPatch struct {
	MissionName           *string
	MissionOwner          *string
	OwnerEmail            *string
	SubscriptionID        *string
	Environment           *string
	Region                *string
	VNetCIDR              *string
	RequestedServices     *[]string
	ClassificationLevel   *string
	ComplianceFrameworks  *[]string
	EstimatedUsers        *int
	BusinessJustification *string
}

// IsEmpty reports whether the patch sets no fields at all.
func (p DraftPatch) IsEmpty() bool {
	return p.MissionName == nil && p.MissionOwner == nil && p.OwnerEmail == nil &&
		p.SubscriptionID == nil && p.Environment == nil && p.Region == nil &&
		p.VNetCIDR == nil && p.RequestedServices == nil && p.ClassificationLevel == nil &&
		p.ComplianceFrameworks == nil && p.EstimatedUsers == nil && p.BusinessJustification == nil
}

func (p DraftPatch) apply(r *Request) {
	if p.MissionName != nil {
		r.MissionName = *p.MissionName
	}
	if p.MissionOwner != nil {
		r.MissionOwner = *p.MissionOwner
	}
	if p.OwnerEmail != nil {
		r.OwnerEmail = *p.OwnerEmail
	}
	if p.SubscriptionID != nil {
		r.SubscriptionID = *p.SubscriptionID
	}
	if p.Environment != nil {
		r.Environment = *p.Environment
	}
	if p.Region != nil {
		r.Region = *p.Region
	}
	if p.VNetCIDR != nil {
		r.VNetCIDR = *p.VNetCIDR
	}
	if p.RequestedServices != nil {
		r.RequestedServices = *p.RequestedServices
	}
	if p.ClassificationLevel != nil {
		r.ClassificationLevel = *p.ClassificationLevel
	}
	if p.ComplianceFrameworks != nil {
		r.ComplianceFrameworks = *p.ComplianceFrameworks
	}
	if p.EstimatedUsers != nil {
		r.EstimatedUsers = *p.EstimatedUsers
	}
	if p.BusinessJustification != nil {
		r.BusinessJustification = *p.BusinessJustification
	}
}

var listDelimiters = func(r rune) bool {
	return r == ',' || r == ';' || r == '|' || r == '\n' || r == '\r'
}

// SplitList tokenizes a delimited string into a trimmed, non-empty list.
// Commas, semicolons, pipes and newlines are all accepted because the input
// may come from a loosely-typed UI form.
func SplitList(input string) []string {
	parts := strings.FieldsFunc(input, listDelimiters)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// PatchFromFields converts a sparse field->value map into a typed DraftPatch.
// Unknown fields are ignored with a warning rather than rejected. List-typed
// fields accept either a JSON array or a delimited string.
func PatchFromFields(fields map[string]any) DraftPatch {
	var patch DraftPatch
	for name, value := range fields {
		switch strings.ToLower(name) {
		case "mission_name", "missionname":
			patch.MissionName = stringField(value)
		case "mission_owner", "missionowner":
			patch.MissionOwner = stringField(value)
		case "owner_email", "owneremail":
			patch.OwnerEmail = stringField(value)
		case "subscription_id", "subscriptionid":
			patch.SubscriptionID = stringField(value)
		case "environment":
			patch.Environment = stringField(value)
		case "region":
			patch.Region = stringField(value)
		case "vnet_cidr", "vnetcidr":
			patch.VNetCIDR = stringField(value)
		case "requested_services", "requestedservices":
			patch.RequestedServices = listField(value)
		case "classification_level", "classificationlevel":
			patch.ClassificationLevel = stringField(value)
		case "compliance_frameworks", "complianceframeworks":
			patch.ComplianceFrameworks = listField(value)
		case "estimated_users", "estimatedusers":
			patch.EstimatedUsers = intField(value)
		case "business_justification", "businessjustification":
			patch.BusinessJustification = stringField(value)
		default:
			slog.Warn("Ignoring unknown draft field", "field", name)
		}
	}
	return patch
}

func stringField(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(s)
	return &trimmed
}

func listField(value any) *[]string {
	switch v := value.(type) {
	case string:
		list := SplitList(v)
		return &list
	case []string:
		list := make([]string, 0, len(v))
		for _, item := range v {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		return &list
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					list = append(list, trimmed)
				}
			}
		}
		return &list
	}
	return nil
}

func intField(value any) *int {
	switch v := value.(type) {
	case int:
		return &v
	case float64:
		// JSON numbers decode as float64.
		n := int(v)
		return &n
	}
	return nil
}
