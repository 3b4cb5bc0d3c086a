package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/studydesk/account-core/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("failed to write response body")
	}
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Msg("unhandled error")
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	status := StatusFromCode(appErr.Code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", string(appErr.Code)).Msg("request failed")
	}

	WriteErrorWithStatus(w, status, appErr)
}

// WriteErrorWithStatus writes an error with a specific HTTP status code
func WriteErrorWithStatus(w http.ResponseWriter, status int, err *apperrors.AppError) {
	response := ErrorResponse{
		Error:   err.Message,
		Code:    err.Code,
		Details: err.Details,
	}
	WriteJSON(w, status, response)
}

// StatusFromCode maps ErrorCode to HTTP status code
func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized

	// 403 Forbidden
	case apperrors.ErrCodeForbidden,
		apperrors.ErrCodeAccountSuspended,
		apperrors.ErrCodeProfileIncomplete:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeAccountNotFound,
		apperrors.ErrCodePaymentRequestNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeDuplicateAccount,
		apperrors.ErrCodeConflict,
		apperrors.ErrCodePaymentAlreadyDecided:
		return http.StatusConflict

	// 422 Unprocessable Entity
	case apperrors.ErrCodeContentBlocked:
		return http.StatusUnprocessableEntity

	// 429 Too Many Requests
	case apperrors.ErrCodeQuotaExceeded,
		apperrors.ErrCodeRateLimitExceeded,
		apperrors.ErrCodeCompletionRateLimited:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeServiceUnavailable,
		apperrors.ErrCodeNetwork:
		return http.StatusBadGateway

	// 503 Service Unavailable
	case apperrors.ErrCodeStorageUnavailable,
		apperrors.ErrCodeConfigurationMissing:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
