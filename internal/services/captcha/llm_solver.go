package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const captchaPrompt = "The image is a login captcha containing exactly four digits. " +
	"Reply with the four digits only, no spaces or other text."

// cleanReply keeps the first line of a model reply without surrounding punctuation
func cleanReply(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	return strings.Trim(text, " \t`'\".。")
}

// ----- Gemini -----

// GeminiSolver asks a Gemini multimodal model to read the captcha
type GeminiSolver struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func NewGeminiSolver(ctx context.Context, apiKey, model string, limiter *rate.Limiter, logger arbor.ILogger) (*GeminiSolver, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GeminiSolver{client: client, model: model, limiter: limiter, logger: logger}, nil
}

func (s *GeminiSolver) Name() string {
	return "gemini"
}

func (s *GeminiSolver) Solve(ctx context.Context, png []byte) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(png, "image/png"),
			genai.NewPartFromText(captchaPrompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	code := cleanReply(resp.Text())
	s.logger.Debug().Str("model", s.model).Str("code", code).Msg("Captcha read by Gemini")
	return code, nil
}

// ----- Claude -----

// ClaudeSolver asks a Claude vision model to read the captcha
type ClaudeSolver struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func NewClaudeSolver(apiKey, model string, limiter *rate.Limiter, logger arbor.ILogger) *ClaudeSolver {
	if model == "" {
		model = "claude-haiku-4-5"
	}
	return &ClaudeSolver{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		limiter: limiter,
		logger:  logger,
	}
}

func (s *ClaudeSolver) Name() string {
	return "claude"
}

func (s *ClaudeSolver) Solve(ctx context.Context, png []byte) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(png)),
				anthropic.NewTextBlock(captchaPrompt),
			),
		},
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}

	code := cleanReply(text.String())
	s.logger.Debug().Str("model", s.model).Str("code", code).Msg("Captcha read by Claude")
	return code, nil
}
