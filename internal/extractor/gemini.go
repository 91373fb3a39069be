package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"video-docs-go/internal/types"
)

type GeminiConfig struct {
	APIKeys     []string `yaml:"api_keys"`
	Model       string   `yaml:"model"`
	Temperature float32  `yaml:"temperature"`
}

// contentGenerator is the part of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini is a Completer backed by the Gemini API. Several keys may be configured;
// a rate-limited key is rotated out for the next one.
type Gemini struct {
	model       string
	temperature float32

	mu      sync.Mutex
	clients []contentGenerator
	current int
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("gemini: no api keys configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	g := &Gemini{model: cfg.Model, temperature: cfg.Temperature}
	for i, key := range cfg.APIKeys {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini: create client %d: %w", i+1, err)
		}
		g.clients = append(g.clients, client.Models)
	}
	return g, nil
}

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(g.temperature),
	}

	var lastErr error
	for range len(g.clients) {
		client := g.client()

		result, err := client.GenerateContent(ctx, g.model, genai.Text(req.UserContent), config)
		if err != nil {
			apiErr := geminiError(err)
			if apiErr.SubKind == types.SubKindRateLimit {
				g.rotate()
				lastErr = apiErr
				continue
			}
			return "", apiErr
		}

		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
			var text strings.Builder
			for _, part := range result.Candidates[0].Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				return text.String(), nil
			}
		}
		if result != nil && result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
			return "", &APIError{Provider: "gemini", SubKind: types.SubKindContentFilter, Message: string(result.PromptFeedback.BlockReason)}
		}
		return "", &APIError{Provider: "gemini", SubKind: types.SubKindAPI, Message: "empty response"}
	}
	return "", &APIError{Provider: "gemini", StatusCode: 429, SubKind: types.SubKindRateLimit, Message: "all api keys rate limited: " + lastErr.Error()}
}

func (g *Gemini) client() contentGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clients[g.current]
}

func (g *Gemini) rotate() {
	g.mu.Lock()
	g.current = (g.current + 1) % len(g.clients)
	g.mu.Unlock()
}

// geminiError classifies by the HTTP code genai reports, falling back to the
// generic transport classification.
func geminiError(err error) *APIError {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return classify("gemini", err)
	}

	code := apiErr.Code
	if code == 0 && apiErr.Status == "RESOURCE_EXHAUSTED" {
		code = http.StatusTooManyRequests
	}
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error()
	}
	return &APIError{Provider: "gemini", StatusCode: code, SubKind: subKindForStatus(code), Message: msg}
}
