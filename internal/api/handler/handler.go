package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/Rrens/policy-assistant/internal/api/response"
	"github.com/Rrens/policy-assistant/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = newValidator()

// newValidator reports fields by their form or json name instead of the Go field name
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// validationMessage flattens validator errors into one short client-facing message
func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must have at least "+e.Param()+" item(s)")
		case "max":
			msgs = append(msgs, field+" must have at most "+e.Param()+" item(s)")
		default:
			msgs = append(msgs, field+" failed validation on "+e.Tag())
		}
	}
	return strings.Join(msgs, "; ")
}

// writeServiceError maps gateway errors to status codes. Causes of 5xx are logged, never sent.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, publicMessage string) {
	if errors.Is(err, domain.ErrValidation) {
		response.BadRequest(w, err.Error())
		return
	}

	log.Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(publicMessage)
	response.InternalError(w, publicMessage)
}
