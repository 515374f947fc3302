package app

import (
	"errors"
	"fmt"
	"net/http"

	"fallen/dashboard/internal/auth"
	"fallen/dashboard/internal/clan"
	"fallen/dashboard/internal/outbox"
)

var errNoSession = errors.New("no session")

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
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, errNoSession):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, outbox.ErrNotStaff):
		return http.StatusForbidden, "NOT_STAFF", "Staff only", nil
	case errors.Is(err, outbox.ErrInsufficientTier):
		return http.StatusForbidden, "INSUFFICIENT_TIER", err.Error(), nil
	case errors.Is(err, outbox.ErrUnknownAction):
		return http.StatusBadRequest, "UNKNOWN_ACTION", err.Error(), nil
	case errors.Is(err, outbox.ErrInvalidParams), errors.Is(err, clan.ErrInvalidApplication):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, outbox.ErrDuplicateInFlight):
		return http.StatusConflict, "DUPLICATE_IN_FLIGHT", "An identical request is still being processed", nil
	case errors.Is(err, clan.ErrPositionClosed):
		return http.StatusConflict, "POSITION_CLOSED", "Position is not open", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
