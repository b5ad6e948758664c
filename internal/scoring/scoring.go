// Package scoring asks an external oracle how likely a transaction is to be
// fraudulent. The model itself lives elsewhere.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// DefaultThreshold is the probability above which a transaction is flagged.
const DefaultThreshold = 0.4

// ErrNoScore is returned when the oracle cannot produce a probability.
var ErrNoScore = errors.New("no score available")

// Scorer returns the fraud probability for a transaction's payload fields.
type Scorer interface {
	Predict(ctx context.Context, fields *domain.Fields) (float64, error)
}

// Classifier turns probabilities into a fraud flag.
type Classifier struct {
	scorer    Scorer
	threshold float64
	log       zerolog.Logger
}

// NewClassifier wraps scorer. A threshold outside (0,1) falls back to
// DefaultThreshold.
func NewClassifier(scorer Scorer, threshold float64, log zerolog.Logger) *Classifier {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Classifier{
		scorer:    scorer,
		threshold: threshold,
		log:       log.With().Str("component", "classifier").Logger(),
	}
}

// Threshold returns the configured cut-off.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify reports whether the fields score above the threshold. A failed
// prediction is treated as no score: the transaction is not flagged and the
// error is returned for the caller to log or count.
func (c *Classifier) Classify(ctx context.Context, fields *domain.Fields) (bool, error) {
	p, err := c.scorer.Predict(ctx, fields)
	if err != nil {
		return false, err
	}
	flagged := p > c.threshold
	c.log.Debug().Float64("fraud_probability", p).Bool("is_fraudulent", flagged).Msg("Transaction scored")
	return flagged, nil
}

func checkProbability(p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: probability %v out of range", ErrNoScore, p)
	}
	return p, nil
}
