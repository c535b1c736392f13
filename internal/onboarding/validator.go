package onboarding

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one field-level validation failure. Validation errors are
// returned as a list, never raised; submission is refused and the request
// stays in draft.
type FieldError struct {
	Field   string
	Message string
}

// Progress reports how complete a draft is, for UI progress rendering. It
// tolerates partial data and never fails.
type Progress struct {
	PercentComplete int
	CurrentPhase    string
	MissingFields   []string
}

// placeholders are sentinel values a form may submit in place of real data.
// A required field carrying one of these is treated as empty.
var placeholders = map[string]struct{}{
	"tbd":            {},
	"tba":            {},
	"todo":           {},
	"to be provided": {},
	"n/a":            {},
	"none":           {},
	"placeholder":    {},
}

func isPlaceholder(value string) bool {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return true
	}
	if _, ok := placeholders[normalized]; ok {
		return true
	}
	// Angle-bracketed template markers like "<subscription id>".
	return strings.HasPrefix(normalized, "<") && strings.HasSuffix(normalized, ">")
}

// Validator checks field completeness and consistency before a request may
// leave draft. Pure and synchronous, no I/O.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for a nil or empty tag.
	_ = v.RegisterValidation("notplaceholder", func(fl validator.FieldLevel) bool {
		return !isPlaceholder(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Validate reports whether the request is complete enough to submit, with
// one FieldError per violation.
func (v *Validator) Validate(r *Request) (bool, []FieldError) {
	err := v.validate.Struct(r)
	if err == nil {
		return true, nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false, []FieldError{{Field: "request", Message: err.Error()}}
	}

	fieldErrs := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fieldErrs = append(fieldErrs, FieldError{
			Field:   fe.Field(),
			Message: messageFor(fe),
		})
	}
	return false, fieldErrs
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		return "is required"
	case "notplaceholder":
		return "must not be a placeholder value"
	case "email":
		return "must be a valid email address"
	case "cidrv4":
		return "must be a valid IPv4 CIDR block"
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "is invalid"
}

// trackedField pairs a field name with its fill check, in the order the
// intake form walks through them.
type trackedField struct {
	name   string
	phase  string
	filled func(*Request) bool
}

var trackedFields = []trackedField{
	{"mission_name", "Mission Details", func(r *Request) bool { return !isPlaceholder(r.MissionName) }},
	{"mission_owner", "Mission Details", func(r *Request) bool { return !isPlaceholder(r.MissionOwner) }},
	{"owner_email", "Mission Details", func(r *Request) bool { return !isPlaceholder(r.OwnerEmail) }},
	{"business_justification", "Mission Details", func(r *Request) bool { return !isPlaceholder(r.BusinessJustification) }},
	{"subscription_id", "Technical Details", func(r *Request) bool { return !isPlaceholder(r.SubscriptionID) }},
	{"environment", "Technical Details", func(r *Request) bool { return !isPlaceholder(r.Environment) }},
	{"region", "Technical Details", func(r *Request) bool { return !isPlaceholder(r.Region) }},
	{"vnet_cidr", "Technical Details", func(r *Request) bool { return !isPlaceholder(r.VNetCIDR) }},
	{"requested_services", "Technical Details", func(r *Request) bool { return len(r.RequestedServices) > 0 }},
	{"classification_level", "Security & Compliance", func(r *Request) bool { return !isPlaceholder(r.ClassificationLevel) }},
}

// Progress computes the completion percentage over the tracked fields and a
// current-phase hint: the phase owning the first unfilled field, or "Ready
// for Review" once everything is present.
func (v *Validator) Progress(r *Request) Progress {
	filled := 0
	phase := "Ready for Review"
	var missing []string
	for _, tf := range trackedFields {
		if tf.filled(r) {
			filled++
			continue
		}
		if phase == "Ready for Review" {
			phase = tf.phase
		}
		missing = append(missing, tf.name)
	}

	return Progress{
		PercentComplete: filled * 100 / len(trackedFields),
		CurrentPhase:    phase,
		MissingFields:   missing,
	}
}
