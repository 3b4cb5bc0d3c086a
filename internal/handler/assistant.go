package handler

import (
	"net/http"
	"strings"

	"github.com/studydesk/account-core/internal/completion"
	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/middleware"
	"github.com/studydesk/account-core/internal/service"
)

type AssistantHandler struct {
	assistantService *service.AssistantService
}

func NewAssistantHandler(assistantService *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistantService: assistantService}
}

// askRequest carries an already-built prompt. Attachment data is base64 in JSON.
type askRequest struct {
	Context    string                 `json:"context"`
	History    []completion.Turn      `json:"history"`
	Question   string                 `json:"question"`
	Attachment *completion.Attachment `json:"attachment,omitempty"`
}

// POST /v1/ask
func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" && req.Attachment == nil {
		writeError(w, apperrors.MissingRequired("question"))
		return
	}
	if req.Attachment != nil && (req.Attachment.MimeType == "" || len(req.Attachment.Data) == 0) {
		writeError(w, apperrors.InvalidInput("attachment", "mimeType and data are required"))
		return
	}
	for _, turn := range req.History {
		if turn.Role != "user" && turn.Role != "model" {
			writeError(w, apperrors.InvalidInput("history", "role must be user or model"))
			return
		}
	}

	answer, err := h.assistantService.Ask(r.Context(), middleware.GetSession(r.Context()), completion.Request{
		Context:    req.Context,
		History:    req.History,
		UserTurn:   req.Question,
		Attachment: req.Attachment,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}
