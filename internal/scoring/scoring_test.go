package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// MockScorer is a mock implementation of Scorer for testing.
type MockScorer struct {
	PredictFunc func(ctx context.Context, fields *domain.Fields) (float64, error)
}

func (m *MockScorer) Predict(ctx context.Context, fields *domain.Fields) (float64, error) {
	return m.PredictFunc(ctx, fields)
}

// MockGenerator is a mock implementation of ContentGenerator for testing.
type MockGenerator struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *MockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.GenerateContentFunc(ctx, model, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func sampleFields() *domain.Fields {
	f := domain.NewFields()
	f.Set("Name", "Alexander Hamilton")
	f.Set("Amount", 912.5)
	f.Set("Location", "NYC")
	return f
}

func TestClassifier_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		p         float64
		threshold float64
		want      bool
	}{
		{name: "above default", p: 0.41, want: true},
		{name: "at default", p: 0.4, want: false},
		{name: "below default", p: 0.1, want: false},
		{name: "custom threshold", p: 0.6, threshold: 0.7, want: false},
		{name: "invalid threshold falls back", p: 0.5, threshold: 1.5, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&MockScorer{
				PredictFunc: func(ctx context.Context, fields *domain.Fields) (float64, error) { return tt.p, nil },
			}, tt.threshold, zerolog.Nop())
			got, err := c.Classify(context.Background(), sampleFields())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifier_FailureIsNotFraud(t *testing.T) {
	c := NewClassifier(&MockScorer{
		PredictFunc: func(ctx context.Context, fields *domain.Fields) (float64, error) {
			return 0, ErrNoScore
		},
	}, 0, zerolog.Nop())
	flagged, err := c.Classify(context.Background(), sampleFields())
	assert.False(t, flagged)
	assert.ErrorIs(t, err, ErrNoScore)
}

func TestHTTPScorer_Predict(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"fraud_probability": 0.83}`))
	}))
	defer srv.Close()

	p, err := NewHTTPScorer(srv.URL+"/", nil).Predict(context.Background(), sampleFields())
	require.NoError(t, err)
	assert.InDelta(t, 0.83, p, 1e-9)
	assert.Equal(t, "NYC", got["Location"])
}

func TestHTTPScorer_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "model not trained", status: http.StatusBadRequest, body: `{"detail":"Model not trained"}`},
		{name: "missing field", status: http.StatusOK, body: `{}`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
		{name: "out of range", status: http.StatusOK, body: `{"fraud_probability": 3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPScorer(srv.URL, nil).Predict(context.Background(), sampleFields())
			assert.ErrorIs(t, err, ErrNoScore)
		})
	}
}

func TestGeminiScorer_Predict(t *testing.T) {
	var gotModel string
	gen := &MockGenerator{
		GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gotModel = model
			require.Len(t, contents, 1)
			assert.Contains(t, contents[0].Parts[0].Text, `"Location":"NYC"`)
			return textResponse("```json\n{\"fraud_probability\": 0.72}\n```"), nil
		},
	}

	p, err := NewGeminiScorerWith(gen, "").Predict(context.Background(), sampleFields())
	require.NoError(t, err)
	assert.InDelta(t, 0.72, p, 1e-9)
	assert.Equal(t, DefaultModelName, gotModel)
}

func TestGeminiScorer_Failures(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
	}{
		{name: "api error", err: errors.New("quota exceeded")},
		{name: "empty", resp: textResponse("")},
		{name: "prose", resp: textResponse("I cannot tell")},
		{name: "no field", resp: textResponse(`{"score": 0.2}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &MockGenerator{
				GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
					return tt.resp, tt.err
				},
			}
			_, err := NewGeminiScorerWith(gen, "gemini-test").Predict(context.Background(), sampleFields())
			assert.ErrorIs(t, err, ErrNoScore)
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := map[string]string{
		"{\"a\":1}":                        "{\"a\":1}",
		"```json\n{\"a\":1}\n```":          "{\"a\":1}",
		"Sure! {\"a\":1} hope that helps":  "{\"a\":1}",
		"```\n  {\"a\":1}  \n```\ntrailing": "{\"a\":1}",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanModelJSON(in), in)
	}
}
