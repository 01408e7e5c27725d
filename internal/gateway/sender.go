package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPSender delivers outbound text through the gateway's REST API.
type HTTPSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPSender(baseURL, apiKey string) *HTTPSender {
	return &HTTPSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type sendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
}

func (s *HTTPSender) SendText(ctx context.Context, sess, to, body string) error {
	payload, err := json.Marshal(sendTextRequest{Session: sess, ChatID: to, Text: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/sendText", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The gateway returns short JSON error bodies; keep a bounded slice
		// for the log line.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway: send returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// LogSender records sends instead of delivering them. Used when no gateway
// endpoint is configured (local development, tests).
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) SendText(_ context.Context, sess, to, body string) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("outbound message (not delivered)", "session", sess, "to", to, "chars", len(body))
	return nil
}
