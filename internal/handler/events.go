package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/middleware"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/notify"
	"github.com/studydesk/account-core/internal/service"
)

// EventsHandler streams the signed-in account to the client whenever it changes
// elsewhere (payment approved, suspension, premium lapse).
type EventsHandler struct {
	quotaService *service.QuotaService
	heartbeat    time.Duration
}

func NewEventsHandler(quotaService *service.QuotaService) *EventsHandler {
	return &EventsHandler{
		quotaService: quotaService,
		heartbeat:    notify.HeartbeatInterval,
	}
}

type accountUpdate struct {
	account *model.Account
	err     error
}

type accountEvent struct {
	Account *model.Account      `json:"account"`
	Quota   service.QuotaStatus `json:"quota"`
}

// GET /v1/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	if session == nil {
		writeError(w, apperrors.Unauthorized("Sign in to continue"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan accountUpdate, 4)
	done := make(chan error, 1)
	go func() {
		done <- session.Watch(ctx, func(account *model.Account, err error) {
			select {
			case updates <- accountUpdate{account: account, err: err}:
			case <-ctx.Done():
			}
		})
	}()

	log.Info().
		Str("clientId", session.ClientID()).
		Msg("account stream established")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("clientId", session.ClientID()).
				Msg("account stream closed by client")
			return

		case update := <-updates:
			if err := h.sendUpdate(w, flusher, update); err != nil {
				log.Debug().Err(err).Msg("failed to send account event")
				return
			}

		case err := <-done:
			// Watch hands over its final update before returning.
			h.drain(w, flusher, updates)
			if err != nil && ctx.Err() == nil && !apperrors.IsAppError(err) {
				log.Error().Err(err).Str("clientId", session.ClientID()).Msg("account stream failed")
			}
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("clientId", session.ClientID()).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) drain(w http.ResponseWriter, flusher http.Flusher, updates <-chan accountUpdate) {
	for {
		select {
		case update := <-updates:
			if err := h.sendUpdate(w, flusher, update); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *EventsHandler) sendUpdate(w http.ResponseWriter, flusher http.Flusher, update accountUpdate) error {
	switch {
	case update.err != nil:
		appErr, ok := apperrors.AsAppError(update.err)
		if !ok {
			appErr = apperrors.Internal("An unexpected error occurred")
		}
		return h.sendEvent(w, flusher, "error", map[string]string{
			"code":    string(appErr.Code),
			"message": appErr.Message,
		})
	case update.account == nil:
		return h.sendEvent(w, flusher, "signed_out", map[string]bool{"signedIn": false})
	default:
		return h.sendEvent(w, flusher, "account", accountEvent{
			Account: update.account,
			Quota:   h.quotaService.CheckLimit(update.account),
		})
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, eventType, jsonData)
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
