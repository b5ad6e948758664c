package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

type predictResponse struct {
	FraudProbability *float64 `json:"fraud_probability"`
}

// HTTPScorer calls a model service exposing POST /predict.
type HTTPScorer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPScorer targets baseURL + "/predict". A nil client gets a 10s timeout.
func NewHTTPScorer(baseURL string, client *http.Client) *HTTPScorer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPScorer{
		endpoint: strings.TrimRight(baseURL, "/") + "/predict",
		client:   client,
	}
}

// Predict implements Scorer.
func (s *HTTPScorer) Predict(ctx context.Context, fields *domain.Fields) (float64, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("Predict: encoding fields: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("Predict: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoScore, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("%w: oracle returned %d: %s", ErrNoScore, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decoding response: %v", ErrNoScore, err)
	}
	if out.FraudProbability == nil {
		return 0, fmt.Errorf("%w: response has no fraud_probability", ErrNoScore)
	}
	return checkProbability(*out.FraudProbability)
}
