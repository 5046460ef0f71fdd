package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/chambitas-auth/internal/application"
	"github.com/oksasatya/chambitas-auth/pkg/response"
)

// writeError maps service errors onto the HTTP surface. Causes of internal
// failures are logged by the service and never reach the client.
func writeError(c *gin.Context, err error) {
	var verr *application.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error[any](c, http.StatusBadRequest, "validation failed", response.ErrorBody{Code: "validation_error", Details: verr.Fields})
	case errors.Is(err, application.ErrValidation):
		response.Error[any](c, http.StatusBadRequest, "validation failed", response.ErrorBody{Code: "validation_error"})
	case errors.Is(err, application.ErrDuplicateEmail):
		response.Error[any](c, http.StatusBadRequest, "email already registered", response.ErrorBody{Code: "duplicate_email"})
	case errors.Is(err, application.ErrInvalidToken):
		response.Error[any](c, http.StatusBadRequest, "invalid or expired token", response.ErrorBody{Code: "invalid_token"})
	case errors.Is(err, application.ErrInvalidCredentials):
		response.Error[any](c, http.StatusUnauthorized, "invalid email or password", response.ErrorBody{Code: "invalid_credentials"})
	case errors.Is(err, application.ErrUnverifiedAccount):
		response.Error[any](c, http.StatusForbidden, "please verify your email before logging in", response.ErrorBody{Code: "unverified_account"})
	case errors.Is(err, application.ErrDelivery):
		response.Error[any](c, http.StatusInternalServerError, "account created but the verification email could not be sent", response.ErrorBody{
			Code:    "delivery_failed",
			Details: map[string]string{"warning": "the account exists; contact support to receive a new verification link"},
		})
	default:
		response.Error[any](c, http.StatusInternalServerError, "internal server error", response.ErrorBody{Code: "internal"})
	}
}

func bindError(c *gin.Context, details map[string]string) {
	response.Error[any](c, http.StatusBadRequest, "invalid payload", response.ErrorBody{Code: "validation_error", Details: details})
}
