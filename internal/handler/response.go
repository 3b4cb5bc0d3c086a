package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}
