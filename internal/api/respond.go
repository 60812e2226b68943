package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/logger"
	"github.com/go-playground/validator/v10"
)

const maxJSONBody = 2 << 20

var validate = newValidator()

// validationError carries per-field messages keyed by JSON field name.
type validationError struct {
	Fields map[string]string
}

func (e *validationError) Error() string {
	return "validation failed"
}

func fieldError(field, msg string) *validationError {
	return &validationError{Fields: map[string]string{field: msg}}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct's validate tags.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &validationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return fmt.Sprintf("failed on '%s' tag", fe.Tag())
	}
}

// decodeJSON reads a size-limited JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", apperrors.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid JSON body", apperrors.ErrInvalidInput)
	}
	return validateStruct(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps err to a status. Client errors echo the cause; server
// errors log it and answer with fallback.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *validationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}

	status := apperrors.HTTPStatusCode(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client is gone; the status is only for the access log.
		status = 499
	}

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(fallback, "error", err, "status_code", status)
		h.writeError(w, status, fallback)
		return
	}
	log.Warn(fallback, "error", err, "status_code", status)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.writeError(w, status, appErr.Message)
		return
	}
	h.writeError(w, status, err.Error())
}
