package domain

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// TokenRegex validates the distribution, version and architecture tokens
// sent by the installer (e.g. "CentOS", "7.2.1511", "x86_64").
var TokenRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

// TemplateNameRegex validates template names
var TemplateNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// PackageQuery is the query string of a package request
type PackageQuery struct {
	Type string `validate:"required,max=32,token"`
	Dist string `validate:"required,max=64,token"`
	Vers string `validate:"required,max=64,token"`
	Arch string `validate:"required,max=32,token"`
}

// TemplateRef identifies a template file
type TemplateRef struct {
	Category string `validate:"required,oneof=check graph dashboard worksheet ruleset"`
	Name     string `validate:"required,max=128,template_name"`
}

// NewValidator creates a configured validator instance
func NewValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("token", func(fl validator.FieldLevel) bool {
		return TokenRegex.MatchString(fl.Field().String())
	})

	_ = v.RegisterValidation("template_name", func(fl validator.FieldLevel) bool {
		return TemplateNameRegex.MatchString(fl.Field().String())
	})

	return v
}

var validate = NewValidator()

// ValidatePackageQuery validates a PackageQuery struct
func ValidatePackageQuery(q *PackageQuery) error {
	return validate.Struct(q)
}

// ValidateTemplateRef validates a TemplateRef struct
func ValidateTemplateRef(ref *TemplateRef) error {
	return validate.Struct(ref)
}
