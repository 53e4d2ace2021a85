package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"servidores/api/internal/auth"
	"servidores/api/internal/liveview"
	"servidores/api/internal/store"
)

// DomainError is an error the service layer has already classified for HTTP.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}

// mapError classifies err for the JSON error body.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var actionErr *liveview.ActionError
	if errors.As(err, &actionErr) {
		return http.StatusBadGateway, "ACTION_FAILED", "The action could not be saved",
			map[string]any{"action": actionErr.Action, "itemId": actionErr.ItemID}
	}
	switch {
	case errors.Is(err, liveview.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, liveview.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE", err.Error(), nil
	case errors.Is(err, liveview.ErrClosed):
		return http.StatusServiceUnavailable, "VIEW_CLOSED", "Panel closed, retry", nil
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrOutOfScope):
		return http.StatusForbidden, "OUT_OF_SCOPE", "Record is outside your assignment", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
