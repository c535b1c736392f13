package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"commas", "aks, postgresql, redis", []string{"aks", "postgresql", "redis"}},
		{"semicolons", "IL5; FedRAMP High", []string{"IL5", "FedRAMP High"}},
		{"pipes", "aks|sql", []string{"aks", "sql"}},
		{"newlines", "aks\npostgresql\r\nredis", []string{"aks", "postgresql", "redis"}},
		{"mixed delimiters", "aks, sql; redis|storage", []string{"aks", "sql", "redis", "storage"}},
		{"surrounding whitespace", "  aks ,  sql  ", []string{"aks", "sql"}},
		{"empty segments", ",,aks,,", []string{"aks"}},
		{"empty input", "", []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitList(tc.input))
		})
	}
}

func TestPatchFromFields(t *testing.T) {
	patch := PatchFromFields(map[string]any{
		"mission_name":          "Skyhawk",
		"missionOwner":          "Dana Mercer",
		"requested_services":    "aks, postgresql",
		"compliance_frameworks": []any{"IL5", "FedRAMP High"},
		"estimated_users":       float64(1200),
		"what_is_this":          "ignored",
	})

	require.NotNil(t, patch.MissionName)
	assert.Equal(t, "Skyhawk", *patch.MissionName)
	require.NotNil(t, patch.MissionOwner)
	assert.Equal(t, "Dana Mercer", *patch.MissionOwner)
	require.NotNil(t, patch.RequestedServices)
	assert.Equal(t, []string{"aks", "postgresql"}, *patch.RequestedServices)
	require.NotNil(t, patch.ComplianceFrameworks)
	assert.Equal(t, []string{"IL5", "FedRAMP High"}, *patch.ComplianceFrameworks)
	require.NotNil(t, patch.EstimatedUsers)
	assert.Equal(t, 1200, *patch.EstimatedUsers)

	assert.Nil(t, patch.OwnerEmail)
	assert.Nil(t, patch.Environment)
}

func TestPatchFromFieldsDelimiterEquivalence(t *testing.T) {
	asString := PatchFromFields(map[string]any{"requested_services": "aks; sql"})
	asArray := PatchFromFields(map[string]any{"requested_services": []any{"aks", "sql"}})

	require.NotNil(t, asString.RequestedServices)
	require.NotNil(t, asArray.RequestedServices)
	assert.Equal(t, *asArray.RequestedServices, *asString.RequestedServices)
}

func TestPatchFromFieldsWrongTypes(t *testing.T) {
	patch := PatchFromFields(map[string]any{
		"mission_name":    42,
		"estimated_users": "lots",
	})
	assert.Nil(t, patch.MissionName)
	assert.Nil(t, patch.EstimatedUsers)
	assert.True(t, patch.IsEmpty())
}

func TestPatchApplyIsSparse(t *testing.T) {
	r := completeRequest()
	name := "Renamed Mission"

	DraftPatch{MissionName: &name}.apply(r)

	assert.Equal(t, "Renamed Mission", r.MissionName)
	assert.Equal(t, "Dana Mercer", r.MissionOwner)
	assert.Equal(t, "prod", r.Environment)
}

func TestPatchApplyCanClearField(t *testing.T) {
	r := completeRequest()
	empty := ""

	DraftPatch{Region: &empty}.apply(r)
	assert.Empty(t, r.Region)
}
