package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var getValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	// Failures surface to API clients; report the wire name, not the Go one.
	v.RegisterTagNameFunc(jsonFieldName)
	return v
})

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// ValidationError is a single failed rule on one field.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors aggregates every failed rule from one ValidateStruct call.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + " failed on " + fe.Tag
		if fe.Param != "" {
			parts[i] += "=" + fe.Param
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct runs the registered rules against s. Rule failures come back
// as ValidationErrors; any other error means the input was not validatable.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, ValidationError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return failures
}
