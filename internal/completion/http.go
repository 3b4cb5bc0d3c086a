package completion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	apperrors "github.com/studydesk/account-core/internal/errors"
)

const maxResponseBytes = 4 << 20

// HTTPCompleter calls a generateContent-style REST endpoint.
type HTTPCompleter struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewHTTPCompleter(endpoint, apiKey, model string, timeout time.Duration) *HTTPCompleter {
	return &HTTPCompleter{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

func buildRequest(req Request) generateRequest {
	out := generateRequest{}
	if req.Context != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.Context}}}
	}
	for _, turn := range req.History {
		out.Contents = append(out.Contents, content{Role: turn.Role, Parts: []part{{Text: turn.Text}}})
	}

	user := content{Role: "user", Parts: []part{{Text: req.UserTurn}}}
	if req.Attachment != nil {
		user.Parts = append(user.Parts, part{InlineData: &inlineData{
			MimeType: req.Attachment.MimeType,
			Data:     base64.StdEncoding.EncodeToString(req.Attachment.Data),
		}})
	}
	out.Contents = append(out.Contents, user)
	return out
}

func (c *HTTPCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", ConfigurationMissing()
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return "", apperrors.Internal("failed to encode completion request").WithCause(err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Internal("failed to build completion request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		return "", NetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", NetworkError(err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", RateLimited()
	case resp.StatusCode == http.StatusInternalServerError || resp.StatusCode == http.StatusServiceUnavailable:
		return "", ServiceUnavailable(resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		log.Error().Int("status", resp.StatusCode).Msg("completion endpoint rejected api key")
		return "", ConfigurationMissing()
	case resp.StatusCode >= 400:
		msg := gjson.GetBytes(raw, "error.message").String()
		log.Error().Int("status", resp.StatusCode).Str("error", msg).Msg("completion request failed")
		return "", ServiceUnavailable(resp.StatusCode)
	}

	return parseResponse(raw)
}

func parseResponse(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", ServiceUnavailable(http.StatusBadGateway)
	}

	doc := gjson.ParseBytes(raw)
	if reason := doc.Get("promptFeedback.blockReason").String(); reason != "" {
		return "", ContentBlocked(reason)
	}

	candidate := doc.Get("candidates.0")
	if !candidate.Exists() {
		return "", ServiceUnavailable(http.StatusBadGateway)
	}
	if finish := candidate.Get("finishReason").String(); finish == "SAFETY" || finish == "PROHIBITED_CONTENT" || finish == "BLOCKLIST" {
		return "", ContentBlocked(finish)
	}

	var sb strings.Builder
	for _, text := range candidate.Get("content.parts.#.text").Array() {
		sb.WriteString(text.String())
	}
	return sb.String(), nil
}
