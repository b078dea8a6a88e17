package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/shaiso/Dialer/internal/telemetry"
)

// DefaultModel — модель Gemini по умолчанию.
const DefaultModel = "gemini-2.0-flash"

const promptTemplate = `Analyze these call transcripts. For each, extract:
- call_sid
- city (string or null)
- interest (yes or no)
- outcome (result of the call; if not eligible, why)

Respond with a JSON array of objects with exactly these keys.

Transcripts: %s`

// GeminiConfig — настройки GeminiService.
type GeminiConfig struct {
	APIKey string
	Model  string

	// BaseURL и HTTPClient переопределяют endpoint API (для тестов).
	BaseURL    string
	HTTPClient *http.Client

	Logger *slog.Logger
}

// GeminiService — Service поверх Gemini API.
type GeminiService struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiService создаёт клиент Gemini.
func NewGeminiService(ctx context.Context, cfg GeminiConfig) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiService{
		client: client,
		model:  model,
		logger: telemetry.OrDefault(cfg.Logger).With("component", "gemini", "model", model),
	}, nil
}

// RequestBatch отправляет пачку транскриптов одним запросом.
// Любая ошибка возвращается как ErrTransient.
func (s *GeminiService) RequestBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal batch: %v", ErrTransient, err)
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		genai.Text(fmt.Sprintf(promptTemplate, payload)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: generate content: %v", ErrTransient, err)
	}

	results, err := parseBatchResponse(resp.Text())
	if err != nil {
		return nil, err
	}
	s.logger.Debug("batch analysed", "items", len(items), "results", len(results))
	return results, nil
}
