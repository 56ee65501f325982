// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"context"
	"errors"
	"net/http"

	"github.com/lacpass/healthlink/internal/api/dto"
	"github.com/lacpass/healthlink/internal/api/service"
	"github.com/lacpass/healthlink/pkg/fhir"
	"github.com/lacpass/healthlink/pkg/hcert"
)

// Error codes for API responses.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotBundle         = "NOT_A_BUNDLE"
	CodeInvalidCredential = "INVALID_CREDENTIAL"
	CodeMalformed         = "MALFORMED_CREDENTIAL"
	CodeCanceled          = "REQUEST_CANCELED"
	CodeInternal          = "INTERNAL_ERROR"
)

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	var decErr *hcert.DecodeError
	if errors.As(err, &decErr) {
		status, code := http.StatusUnprocessableEntity, CodeMalformed
		if decErr.Stage == hcert.StagePrefix {
			status, code = http.StatusBadRequest, CodeInvalidCredential
		}
		return status, &dto.APIError{
			Code:    code,
			Message: decErr.Error(),
			Details: map[string]string{"stage": string(decErr.Stage)},
		}
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, &dto.APIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, fhir.ErrNotBundle):
		return http.StatusBadRequest, &dto.APIError{Code: CodeNotBundle, Message: err.Error()}
	case errors.Is(err, hcert.ErrValidation):
		return http.StatusBadRequest, &dto.APIError{Code: CodeInvalidCredential, Message: err.Error()}
	case errors.Is(err, service.ErrInvalid):
		return http.StatusBadRequest, &dto.APIError{Code: CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return 499, &dto.APIError{Code: CodeCanceled, Message: err.Error()}
	}

	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

// NewNotFound creates a not found error.
func NewNotFound(resource, id string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeNotFound,
		Message: resource + " not found",
		Details: map[string]string{"id": id},
	}
}

// NewUnauthorized creates an authentication error.
func NewUnauthorized() *dto.APIError {
	return &dto.APIError{
		Code:    CodeUnauthorized,
		Message: "authentication required",
	}
}
