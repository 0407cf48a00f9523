package httpserver

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validateStruct returns one fieldError per failed rule, or nil.
func validateStruct(s interface{}) []fieldError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Message: err.Error()}}
	}

	details := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "uuid":
			message = fmt.Sprintf("%s must be a valid UUID", field)
		case "min", "max":
			message = fmt.Sprintf("%s must be from 1 to 5", field)
		default:
			message = fmt.Sprintf("%s is invalid", field)
		}
		details = append(details, fieldError{Field: field, Message: message})
	}
	return details
}
