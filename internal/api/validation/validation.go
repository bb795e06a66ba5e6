// Package validation registers the custom validator tags used by request models.
package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// PlatformPattern matches platform identifiers such as "indeed" or "linkedin"
var PlatformPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,49}$`)

// ValidatePlatform checks the field is a lower-case platform token
func ValidatePlatform(fl validator.FieldLevel) bool {
	return PlatformPattern.MatchString(fl.Field().String())
}

// EntityIDPattern matches the opaque ids of listings, queue items and tasks
var EntityIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidateEntityID(fl validator.FieldLevel) bool {
	return EntityIDPattern.MatchString(fl.Field().String())
}

// New returns a validator with every custom tag registered
func New() *validator.Validate {
	v := validator.New()
	Register(v)
	return v
}

// Register adds the custom tags to v
func Register(v *validator.Validate) {
	_ = v.RegisterValidation("platform", ValidatePlatform)
	_ = v.RegisterValidation("entity_id", ValidateEntityID)
}
