package http

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// identifiers travel as Kafka keys, Redis hash fields and ClickHouse keys
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names ("train_id") rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierRe.MatchString(fl.Field().String())
	})
	return v
}

// Validate runs struct validation outside of a request, e.g. on Kafka payloads.
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// ValidationErrors converts an error returned by Validate into response details.
func ValidationErrors(err error) []ValidationError {
	if err == nil {
		return nil
	}
	return toValidationErrors(err)
}

// ReadAndValidateRequest binds path, query and body into req, applies
// `default` tags and validates it. It returns nil or []ValidationError.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Params:  fieldParams(fe),
			})
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: msg}}
}

var ruleMessages = map[string]string{
	"required":         "%s is required",
	"required_without": "%s is required when %s is empty",
	"gt":               "%s must be greater than %s",
	"gte":              "%s must be greater than or equal to %s",
	"lt":               "%s must be less than %s",
	"lte":              "%s must be less than or equal to %s",
	"identifier":       "%s may only contain letters, digits and . _ : -",
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Type().Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", field, bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "identifier":
		return fmt.Sprintf(ruleMessages["identifier"], field)
	}
	if format, ok := ruleMessages[fe.Tag()]; ok {
		if fe.Tag() == "required" {
			return fmt.Sprintf(format, field)
		}
		return fmt.Sprintf(format, field, fe.Param())
	}
	return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
}

func fieldParams(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	case "gt", "lt":
		return map[string]interface{}{"value": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Split(fe.Param(), " ")}
	}
	return nil
}
