// Package validation wraps go-playground/validator with the custom tags used
// by import requests, comparison sets and configuration.
package validation

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
)

// FieldError describes one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is returned when a struct fails validation.
type Errors struct {
	Fields []FieldError `json:"fields"`
}

// Error implements the error interface
func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator validates structs against their `validate` tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the project's custom tags registered.
func New() *Validator {
	v := validator.New()

	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("result_type", isResultType)
	_ = v.RegisterValidation("workbook", isWorkbook)

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v}
}

var (
	defaultOnce sync.Once
	defaultV    *Validator
)

// Default returns the shared validator. validator.Validate caches struct
// metadata and is safe for concurrent use.
func Default() *Validator {
	defaultOnce.Do(func() { defaultV = New() })
	return defaultV
}

// Struct validates s and converts failures into *Errors.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return err
	}
	out := &Errors{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Namespace(),
			Message: formatFieldError(fe),
		})
	}
	return out
}

// Struct validates s with the shared validator.
func Struct(s interface{}) error {
	return Default().Struct(s)
}

func formatFieldError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	case "result_type":
		return fmt.Sprintf("%s must be a known result type", field)
	case "workbook":
		return fmt.Sprintf("%s must be an .xlsx workbook", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

func isResultType(fl validator.FieldLevel) bool {
	_, ok := catalog.Lookup(fl.Field().String())
	return ok
}

func isWorkbook(fl validator.FieldLevel) bool {
	return workbookName(filepath.Base(fl.Field().String()))
}
