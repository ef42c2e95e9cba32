package api

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// fieldErrors returns "field (tag)" for each validator failure in err.
func fieldErrors(err error) []string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}

	fields := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
	}
	return fields
}

// validationSummary lists the fields that failed validation.
func validationSummary(err error) string {
	fields := fieldErrors(err)
	if len(fields) == 0 {
		return "validation failed"
	}
	return strings.Join(fields, ", ")
}
