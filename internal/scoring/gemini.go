package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// ContentGenerator is the slice of genai.Models the scorer uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiScorer asks a Gemini model for a fraud probability.
type GeminiScorer struct {
	models ContentGenerator
	model  string
}

// NewGeminiScorer creates a genai client from the environment
// (GOOGLE_API_KEY or Vertex settings).
func NewGeminiScorer(ctx context.Context, model string) (*GeminiScorer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiScorer: create genai client: %w", err)
	}
	return NewGeminiScorerWith(client.Models, model), nil
}

// NewGeminiScorerWith uses an existing generator.
func NewGeminiScorerWith(models ContentGenerator, model string) *GeminiScorer {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiScorer{models: models, model: model}
}

const scoringPrompt = "You are a transaction fraud analyst.\n\n" +
	"Task:\n" +
	"- Estimate the probability that the transaction below is fraudulent.\n" +
	"- Output STRICT JSON only: {\"fraud_probability\": <number between 0 and 1>}.\n" +
	"- Do NOT wrap the response in code fences.\n\n" +
	"Transaction:\n"

// Predict implements Scorer.
func (s *GeminiScorer) Predict(ctx context.Context, fields *domain.Fields) (float64, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("Predict: encoding fields: %w", err)
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: scoringPrompt + string(payload)}},
		},
	}

	resp, err := s.models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: generate content: %v", ErrNoScore, err)
	}

	raw := resp.Text()
	if raw == "" {
		return 0, fmt.Errorf("%w: empty response from model", ErrNoScore)
	}

	var out predictResponse
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &out); err != nil {
		return 0, fmt.Errorf("%w: unmarshal JSON: %v (raw response: %s)", ErrNoScore, err, raw)
	}
	if out.FraudProbability == nil {
		return 0, fmt.Errorf("%w: model omitted fraud_probability", ErrNoScore)
	}
	return checkProbability(*out.FraudProbability)
}

// cleanModelJSON strips Markdown fences and keeps the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
