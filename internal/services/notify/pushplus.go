// Package notify delivers run outcomes to the operator.
// Every sink is best-effort: delivery problems are logged and never returned.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
)

const pushPlusTimeout = 10 * time.Second

type pushPlusRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
}

type pushPlusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// PushPlus posts messages to the pushplus push service
type PushPlus struct {
	token    string
	endpoint string
	client   *http.Client
	logger   arbor.ILogger
}

// NewPushPlus creates the sink. An empty token keeps messages local (logged only).
func NewPushPlus(token, endpoint string, logger arbor.ILogger) *PushPlus {
	return &PushPlus{
		token:    token,
		endpoint: endpoint,
		client:   &http.Client{Timeout: pushPlusTimeout},
		logger:   logger,
	}
}

func (p *PushPlus) Send(ctx context.Context, message, title string) {
	p.logger.Info().Str("title", title).Str("message", message).Msg("Notification")

	if p.token == "" {
		p.logger.Debug().Msg("PushPlus token not configured, skipping push")
		return
	}

	if err := p.post(ctx, message, title); err != nil {
		p.logger.Warn().Err(err).Str("title", title).Msg("Failed to push notification")
		return
	}
	p.logger.Debug().Str("title", title).Msg("Notification pushed")
}

func (p *PushPlus) post(ctx context.Context, message, title string) error {
	body, err := json.Marshal(pushPlusRequest{
		Token:    p.token,
		Title:    title,
		Content:  message,
		Template: "txt",
	})
	if err != nil {
		return fmt.Errorf("failed to encode pushplus request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create pushplus request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call pushplus: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read pushplus response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushplus returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var result pushPlusResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to decode pushplus response: %w", err)
	}
	if result.Code != 200 {
		return fmt.Errorf("pushplus rejected message: code=%d msg=%s", result.Code, result.Msg)
	}
	return nil
}
