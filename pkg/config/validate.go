package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks parameter records against struct tags, cross-field rules
// and the CUE schema.
type Validator struct {
	validate *validator.Validate
	schemas  *SchemaRegistry
}

// NewValidator creates a validator backed by the given schema registry.
// A nil registry gets the built-in schemas.
func NewValidator(schemas *SchemaRegistry) *Validator {
	if schemas == nil {
		schemas = NewSchemaRegistry()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(paramsStructLevel, Params{})

	return &Validator{validate: v, schemas: schemas}
}

// paramsStructLevel rejects option combinations that cannot be compiled.
func paramsStructLevel(sl validator.StructLevel) {
	p := sl.Current().Interface().(Params)

	if p.ApacheVhostCustomParams.Len() > 0 && !p.ManageVhost {
		sl.ReportError(p.ApacheVhostCustomParams, "apache_vhost_custom_params", "ApacheVhostCustomParams", "requires_vhost", "")
	}
	if p.ApacheUseSSL && p.ApacheListenPort == p.ApacheListenPortSSL {
		sl.ReportError(p.ApacheListenPortSSL, "apache_listenport_ssl", "ApacheListenPortSSL", "nefield", "apache_listenport")
	}
}

// Validate checks p and returns ValidationErrors describing every problem.
func (v *Validator) Validate(ctx context.Context, p *Params) error {
	if p == nil {
		return ValidationErrors{{Message: "parameters are nil", Severity: "error"}}
	}

	var problems ValidationErrors

	if err := v.validate.StructCtx(ctx, p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate parameters: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, ValidationError{
				Path:     fe.Field(),
				Message:  describeFieldError(fe),
				Severity: "error",
			})
		}
	}

	if err := v.schemas.ValidateParams(ctx, p); err != nil {
		problems = append(problems, convertCUEErrors(err)...)
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

// describeFieldError renders a validator failure as a one-line message.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "requires_vhost":
		return "requires manage_vhost"
	case "nefield":
		return fmt.Sprintf("must differ from %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("must be an absolute path, got %q", fmt.Sprint(fe.Value()))
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
