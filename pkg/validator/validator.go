// Package validator wraps go-playground/validator with the custom rules used
// by request payloads and renders failures as human readable messages.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.]{2,31}$`)
	cefrLevels      = map[string]struct{}{"A1": {}, "A2": {}, "B1": {}, "B2": {}, "C1": {}, "C2": {}}
)

// customRules are registered on first use.
var customRules = map[string]validator.Func{
	"username": func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	},
	"cefr": func(fl validator.FieldLevel) bool {
		_, ok := cefrLevels[strings.ToUpper(strings.TrimSpace(fl.Field().String()))]
		return ok
	},
}

// messages maps a rule tag to a format taking the field name and rule parameter.
var messages = map[string]string{
	"required": "%[1]s is required",
	"email":    "%[1]s must be a valid email address",
	"url":      "%[1]s must be a valid URL",
	"min":      "%[1]s must be at least %[2]s",
	"max":      "%[1]s must be at most %[2]s",
	"gte":      "%[1]s must be at least %[2]s",
	"gt":       "%[1]s must be greater than %[2]s",
	"lte":      "%[1]s must be at most %[2]s",
	"len":      "%[1]s must have length %[2]s",
	"uuid":     "%[1]s must be a valid UUID",
	"uuid4":    "%[1]s must be a valid UUID",
	"oneof":    "%[1]s must be one of: %[2]s",
	"username": "%[1]s must be 3-32 letters, digits, dots or underscores",
	"cefr":     "%[1]s must be a CEFR level (A1-C2)",
}

// ValidationError is one failed rule on one field. Field uses the json name.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// Message renders the failure for API clients.
func (e ValidationError) Message() string {
	field := strings.ToLower(strings.ReplaceAll(e.Field, "_", " "))
	if field == "" {
		field = "field"
	}
	if format, ok := messages[e.Tag]; ok {
		return fmt.Sprintf(format, field, e.Param)
	}
	if e.Param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, e.Tag)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, failure := range v {
		parts[i] = failure.Message()
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct checks s against its validate tags. Rule failures come back
// as ValidationErrors; anything else (a non-struct argument, say) is returned as is.
func ValidateStruct(s any) error {
	err := engine().Struct(s)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(ValidationErrors, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = ValidationError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return out
}

// RegisterValidation adds a custom rule to the shared engine.
func RegisterValidation(tag string, fn validator.Func) error {
	return engine().RegisterValidation(tag, fn)
}

var (
	engineOnce sync.Once
	shared     *validator.Validate
)

func engine() *validator.Validate {
	engineOnce.Do(func() {
		shared = validator.New()
		shared.RegisterTagNameFunc(jsonFieldName)
		for tag, fn := range customRules {
			if err := shared.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("validator: register %s: %v", tag, err))
			}
		}
	})
	return shared
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}
