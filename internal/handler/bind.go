package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/auth"
	"github.com/sakif/vind/internal/model"
)

// maxBodyBytes caps JSON request bodies. The largest legitimate body is a
// video description.
const maxBodyBytes = 64 << 10

// newValidator returns a validator that reports fields by their JSON name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads the request body into dst and runs struct validation.
// An empty body is accepted when allowEmpty is set so that endpoints with only
// optional fields work without one.
func decodeJSON(r *http.Request, v *validator.Validate, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return apperror.ValidationFailed("", "Invalid JSON body")
		}
	}
	return validateStruct(v, dst)
}

func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("", "Invalid request")
	}
	fe := fieldErrs[0]
	return apperror.ValidationFailed(fe.Field(), validationMessage(fe))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "email":
		return "Email address is invalid"
	case "max":
		return fmt.Sprintf("%s must be %s characters or less", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// videoIDParam parses the {videoId} URL parameter.
func videoIDParam(r *http.Request) (model.VideoID, error) {
	raw := chi.URLParam(r, "videoId")
	if strings.TrimSpace(raw) == "" {
		return "", apperror.ValidationFailed("videoId", "Video ID is required")
	}
	id, err := model.ParseVideoID(raw)
	if err != nil {
		return "", apperror.ValidationFailed("videoId", "Invalid video ID")
	}
	return id, nil
}

// identity returns the caller's identity. Routes behind auth.RequireAuth
// always have one; the error covers handlers mounted without it.
func identity(r *http.Request) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return auth.Identity{}, apperror.Unauthorized("Authentication required")
	}
	return id, nil
}
