package tracker

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/medcast/podcast-tracker/internal/model"
)

// NewValidator returns a validator with the custom rules generation requests use.
func NewValidator() *validator.Validate {
	return RegisterRules(validator.New())
}

// RegisterRules adds the custom tags used by model.GenerationRequest to v.
// It must run before v validates anything.
func RegisterRules(v *validator.Validate) *validator.Validate {
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// ValidateRequest checks a generation request locally. The first failing
// field is reported as a *ValidationError.
func ValidateRequest(v *validator.Validate, req *model.GenerationRequest) error {
	if req == nil {
		return &ValidationError{Message: "request is required"}
	}
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	return &ValidationError{Field: jsonField(fe), Message: describe(fe)}
}

func jsonField(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	switch {
	case strings.HasPrefix(ns, "GenerationRequest.Title"):
		return "title"
	case strings.HasPrefix(ns, "GenerationRequest.Description"):
		return "description"
	case strings.HasPrefix(ns, "GenerationRequest.DocumentIDs"):
		return "documentIds"
	case strings.HasPrefix(ns, "GenerationRequest.SynthesisStyle"):
		return "synthesisStyle"
	case strings.HasPrefix(ns, "GenerationRequest.Specialty"):
		return "specialty"
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		if jsonField(fe) == "documentIds" {
			if strings.Contains(fe.StructNamespace(), "[") {
				return "document ids must not be empty"
			}
			return "at least one document must be selected"
		}
		return "is required"
	case "min":
		return "at least one document must be selected"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "is invalid"
}
