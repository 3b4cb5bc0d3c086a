// Package completion talks to the generative model that answers student questions.
package completion

import (
	"context"

	apperrors "github.com/studydesk/account-core/internal/errors"
)

// Attachment is an inline file sent along with the user turn.
type Attachment struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type Turn struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

type Request struct {
	// Context is the system instruction for the conversation.
	Context    string
	History    []Turn
	UserTurn   string
	Attachment *Attachment
}

// Completer produces the model's reply to one user turn. Failures are AppErrors
// carrying one of the completion error codes.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

func RateLimited() *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeCompletionRateLimited, "Hourly usage limit exceeded")
}

func ServiceUnavailable(status int) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeServiceUnavailable, "The AI service is currently busy").
		WithDetails(map[string]int{"status": status})
}

func NetworkError(cause error) *apperrors.AppError {
	return apperrors.Wrap(apperrors.ErrCodeNetwork, "Could not reach the AI service", cause)
}

func ContentBlocked(reason string) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeContentBlocked, "The request was blocked by the content filter").
		WithDetails(map[string]string{"reason": reason})
}

func ConfigurationMissing() *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeConfigurationMissing, "AI service API key is missing")
}

// IsCompletionError reports whether err carries one of the completion error codes.
func IsCompletionError(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeCompletionRateLimited,
		apperrors.ErrCodeServiceUnavailable,
		apperrors.ErrCodeNetwork,
		apperrors.ErrCodeContentBlocked,
		apperrors.ErrCodeConfigurationMissing:
		return true
	}
	return false
}
