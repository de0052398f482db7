package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// HTTPSolver posts the captcha PNG to a recognition service.
// The service answers {"code": "1234"} or {"error": "..."}.
type HTTPSolver struct {
	endpoint   string
	httpClient *http.Client
	logger     arbor.ILogger
}

type httpSolverResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func NewHTTPSolver(endpoint string, timeout time.Duration, logger arbor.ILogger) *HTTPSolver {
	return &HTTPSolver{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *HTTPSolver) Name() string {
	return "http"
}

func (s *HTTPSolver) Solve(ctx context.Context, png []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "captcha.png")
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognition service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result httpSolverResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("recognition service error: %s", result.Error)
	}

	s.logger.Debug().Str("code", result.Code).Int("image_bytes", len(png)).Msg("Captcha recognised by service")
	return strings.TrimSpace(result.Code), nil
}
