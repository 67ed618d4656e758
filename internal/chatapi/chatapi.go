// Package chatapi is the thin HTTP client the webhook dispatcher (C6) and
// estimate worker (C8) use to send messages back to the messaging
// platform: placeholders, inline-query acknowledgements, replies, and DMs.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"caloriebot/internal/observability"
)

// PermissionError indicates the platform refused to deliver a message —
// the bot was blocked by the user, or lacks write access to the chat. C8
// counts exactly these refusals via telemetry's record_permission_block.
type PermissionError struct {
	StatusCode int
	Body       string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("chatapi: permission denied (status %d): %s", e.StatusCode, e.Body)
}

var permissionDeniedSubstrings = []string{
	"forbidden: bot was blocked by the user",
	"forbidden: bot is not a member",
	"not enough rights",
	"chat not found",
}

// Client talks to the messaging platform's Bot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New builds a Client against baseURL (the platform's Bot API root) using token.
func New(baseURL, token string) *Client {
	return &Client{
		httpClient: observability.NewHTTPClient(nil),
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// SendMessage sends a plain text message to chatID, optionally threaded and
// optionally as a reply to replyToMessageID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, threadID, replyToMessageID *int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if threadID != nil {
		payload["message_thread_id"] = *threadID
	}
	if replyToMessageID != nil {
		payload["reply_to_message_id"] = *replyToMessageID
	}
	return c.post(ctx, "sendMessage", payload)
}

// SendPlaceholder sends the interim "processing" message shown while a job
// is queued, in-thread for group triggers.
func (c *Client) SendPlaceholder(ctx context.Context, chatID int64, threadID, replyToMessageID *int64, text string) error {
	return c.SendMessage(ctx, chatID, threadID, replyToMessageID, text)
}

// AnswerInlineQuery acknowledges an inline query with a single result
// carrying placeholderText.
func (c *Client) AnswerInlineQuery(ctx context.Context, inlineQueryID, placeholderText string) error {
	payload := map[string]any{
		"inline_query_id": inlineQueryID,
		"results": []map[string]any{
			{
				"type":         "article",
				"id":           "placeholder",
				"title":        "Estimating calories…",
				"input_message_content": map[string]any{"message_text": placeholderText},
			},
		},
	}
	return c.post(ctx, "answerInlineQuery", payload)
}

func (c *Client) post(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chatapi: marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chatapi: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatapi: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusForbidden || isPermissionDeniedBody(respBody) {
		return &PermissionError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Str("method", method).
			RawJSON("body", observability.RedactJSON(respBody)).Msg("chatapi request failed")
		return fmt.Errorf("chatapi: %s returned status %d: %s", method, resp.StatusCode, respBody)
	}
	return nil
}

func isPermissionDeniedBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, s := range permissionDeniedSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
