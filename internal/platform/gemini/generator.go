package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/reelforge/internal/config"
	"github.com/phrazzld/reelforge/internal/generation"
	"github.com/phrazzld/reelforge/internal/resilience"
	"google.golang.org/genai"
)

// modelsClient is the subset of the genai Models service used here.
type modelsClient interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Generator implements the generation.ScriptGenerator interface using
// Google's Gemini API.
type Generator struct {
	logger         *slog.Logger
	model          string
	promptTemplate *template.Template
	models         modelsClient
	breaker        *resilience.CircuitBreaker
	policy         resilience.Policy
	validate       *validator.Validate
}

var _ generation.ScriptGenerator = (*Generator)(nil)

// NewGenerator creates a Generator backed by a genai client. Calls are
// guarded by breaker, which is usually obtained from a BreakerRegistry so its
// state can be reported.
func NewGenerator(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.LLMConfig,
	breaker *resilience.CircuitBreaker,
) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(logger, cfg, client.Models, breaker)
}

func newGenerator(
	logger *slog.Logger,
	cfg config.LLMConfig,
	models modelsClient,
	breaker *resilience.CircuitBreaker,
) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if models == nil {
		return nil, fmt.Errorf("%w: models client cannot be nil", generation.ErrInvalidConfig)
	}
	if breaker == nil {
		return nil, fmt.Errorf("%w: circuit breaker cannot be nil", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	tmpl, err := loadPromptTemplate(cfg.PromptTemplatePath)
	if err != nil {
		return nil, err
	}

	logger = logger.With("component", "gemini_generator", "model", cfg.ModelName)

	policy := resilience.AI()
	policy.Classifier = resilience.AIRules().With(resilience.Rules{
		Errors: []error{generation.ErrTransientFailure},
	}).Retryable
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelaySeconds > 0 {
		policy.BaseDelay = time.Duration(cfg.RetryDelaySeconds) * time.Second
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying Gemini API call",
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}

	return &Generator{
		logger:         logger,
		model:          cfg.ModelName,
		promptTemplate: tmpl,
		models:         models,
		breaker:        breaker,
		policy:         policy,
		validate:       validator.New(),
	}, nil
}

func loadPromptTemplate(path string) (*template.Template, error) {
	text := defaultPromptTemplate
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
				generation.ErrInvalidConfig, path, err)
		}
		text = string(content)
	}

	tmpl, err := template.New("script").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", generation.ErrInvalidConfig, err)
	}
	return tmpl, nil
}

// GenerateScript implements generation.ScriptGenerator.
func (g *Generator) GenerateScript(ctx context.Context, req generation.ScriptRequest) (*generation.Script, error) {
	req = req.WithDefaults()
	if err := g.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidRequest, err)
	}

	prompt, err := g.createPrompt(req)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "generating script",
		"topic_length", len(req.Topic),
		"scene_count", req.SceneCount)

	script, err := resilience.Retry(ctx, g.policy, func(ctx context.Context) (*generation.Script, error) {
		return g.generateOnce(ctx, prompt)
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "script generation failed", "error", err)
		return nil, err
	}

	g.logger.InfoContext(ctx, "script generated",
		"scenes", len(script.Scenes),
		"total_duration", script.TotalDuration())
	return script, nil
}

func (g *Generator) createPrompt(req generation.ScriptRequest) (string, error) {
	var buf bytes.Buffer
	err := g.promptTemplate.Execute(&buf, promptData{
		Topic:           req.Topic,
		Style:           req.Style,
		DurationSeconds: req.DurationSeconds,
		SceneCount:      req.SceneCount,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	prompt := strings.TrimSpace(buf.String())
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}

// generateOnce makes one breaker-guarded model call and parses the result.
// Parse failures are permanent and do not count against the breaker.
func (g *Generator) generateOnce(ctx context.Context, prompt string) (*generation.Script, error) {
	resp, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			return nil, classifyAPIError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	return parseResponse(resp)
}

// parseResponse converts a Gemini response into a validated Script.
func parseResponse(resp *genai.GenerateContentResponse) (*generation.Script, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, resilience.Permanent(fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse))
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, resilience.Permanent(generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, resilience.Permanent(fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse))
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	var script generation.Script
	if err := json.Unmarshal([]byte(stripCodeFence(text.String())), &script); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("%w: failed to parse JSON response: %v",
			generation.ErrInvalidResponse, err))
	}
	if err := script.Validate(); err != nil {
		return nil, resilience.Permanent(err)
	}
	return &script, nil
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// around JSON despite the response MIME type.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
