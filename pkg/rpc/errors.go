package rpc

import (
	"context"
	"errors"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
)

// Error codes carried on the wire.
const (
	CodeInvalidArgument  = "invalid_argument"
	CodeNotFound         = "not_found"
	CodeUnprocessable    = "unprocessable"
	CodeUnsupportedMedia = "unsupported_media"
	CodeUnavailable      = "unavailable"
	CodeDeadlineExceeded = "deadline_exceeded"
	CodeUnimplemented    = "unimplemented"
	CodeInternal         = "internal"
)

// Error is a failed call as seen by the client.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return "rpc " + e.Code + ": " + e.Message
}

// Unwrap maps the code back to the matching sentinel.
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeInvalidArgument:
		return apperrors.ErrInvalidInput
	case CodeNotFound:
		return apperrors.ErrDocumentNotFound
	case CodeUnprocessable:
		return apperrors.ErrInsufficientData
	case CodeUnsupportedMedia:
		return apperrors.ErrUnsupportedMedia
	case CodeUnavailable:
		return apperrors.ErrUpstream
	case CodeDeadlineExceeded:
		return apperrors.ErrTimeout
	default:
		return apperrors.ErrInternal
	}
}

// Is lets the not-found code match every not-found sentinel.
func (e *Error) Is(target error) bool {
	if e.Code != CodeNotFound {
		return false
	}
	return target == apperrors.ErrSessionNotFound || target == apperrors.ErrCompanyNotFound
}

func toError(err error) *Error {
	code := CodeInternal
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = CodeInvalidArgument
	case errors.Is(err, apperrors.ErrDocumentNotFound),
		errors.Is(err, apperrors.ErrSessionNotFound),
		errors.Is(err, apperrors.ErrCompanyNotFound):
		code = CodeNotFound
	case errors.Is(err, apperrors.ErrInsufficientData),
		errors.Is(err, apperrors.ErrDegenerateInput):
		code = CodeUnprocessable
	case errors.Is(err, apperrors.ErrUnsupportedMedia):
		code = CodeUnsupportedMedia
	case errors.Is(err, apperrors.ErrUpstream):
		code = CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, apperrors.ErrTimeout):
		code = CodeDeadlineExceeded
	}
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return &Error{Code: code, Message: msg}
}
