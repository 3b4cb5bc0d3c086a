package middleware

import (
	"net/http"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/httputil"
)

func writeError(w http.ResponseWriter, status int, code apperrors.ErrorCode, message string) {
	httputil.WriteErrorWithStatus(w, status, apperrors.New(code, message))
}
