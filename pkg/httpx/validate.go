package httpx

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
}

// InvalidField names a request field and the rule it broke.
type InvalidField struct {
	Name string `json:"name"`
	Rule string `json:"rule"`
}

// ValidationError carries every invalid field of a request DTO.
type ValidationError struct {
	Fields []InvalidField
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name + ":" + f.Rule
	}
	return "httpx: invalid fields " + strings.Join(names, ", ")
}

// Validate checks v against its `validate` struct tags. Field names in the
// result use the json tag.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		panic(invalid)
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err
	}
	fields := make([]InvalidField, len(vErrs))
	for i, e := range vErrs {
		fields[i] = InvalidField{Name: e.Field(), Rule: e.Tag()}
	}
	return &ValidationError{Fields: fields}
}
