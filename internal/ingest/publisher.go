package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// Publisher sends transaction events to a topic.
type Publisher struct {
	topic *pubsub.Topic
	log   zerolog.Logger
}

// NewPublisher creates a publisher for topic.
func NewPublisher(topic *pubsub.Topic, log zerolog.Logger) *Publisher {
	return &Publisher{
		topic: topic,
		log:   log.With().Str("component", "ingest_publisher").Logger(),
	}
}

// Publish sends one event and waits for the server-assigned message id.
func (p *Publisher) Publish(ctx context.Context, fields *domain.Fields) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("Publish: encoding event: %w", err)
	}
	attrs := map[string]string{}
	if v, ok := fields.Get(domain.FieldCompanyID); ok {
		if s, ok := v.(string); ok {
			attrs[domain.FieldCompanyID] = s
		}
	}

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("Publish: %w", err)
	}
	return id, nil
}

// CSVOptions controls PublishCSV.
type CSVOptions struct {
	// CompanyID fills companyId for rows that have none.
	CompanyID string
	// Interval paces messages to mimic a live feed.
	Interval time.Duration
}

// PublishCSV publishes every row of a headed CSV file as one event and
// returns how many were sent.
func (p *Publisher) PublishCSV(ctx context.Context, r io.Reader, opts CSVOptions) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("PublishCSV: reading header: %w", err)
	}

	sent := 0
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("PublishCSV: line %d: %w", line, err)
		}

		fields := RowToFields(header, row)
		if v, _ := fields.Get(domain.FieldCompanyID); v == nil && opts.CompanyID != "" {
			fields.Set(domain.FieldCompanyID, opts.CompanyID)
		}

		id, err := p.Publish(ctx, fields)
		if err != nil {
			return sent, fmt.Errorf("PublishCSV: line %d: %w", line, err)
		}
		sent++
		p.log.Debug().Int("line", line).Str("message_id", id).Msg("Published transaction event")

		if opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
	}
}

// RowToFields types a CSV row: empty cells become null, numbers stay
// exact, true/false become booleans, anything else is a string.
func RowToFields(header, row []string) *domain.Fields {
	fields := domain.NewFields()
	for i, key := range header {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		var value any
		if i < len(row) {
			value = typedCell(strings.TrimSpace(row[i]))
		}
		if _, isBool := value.(bool); key == domain.FieldIsFraudulent && !isBool {
			// unlabeled row; the consumer scores it
			continue
		}
		fields.Set(key, value)
	}
	return fields
}

func typedCell(cell string) any {
	if cell == "" {
		return nil
	}
	switch strings.ToLower(cell) {
	case "true":
		return true
	case "false":
		return false
	}
	// leading zeros (zip codes) are not valid JSON numbers and stay strings
	if _, err := decimal.NewFromString(cell); err == nil && json.Valid([]byte(cell)) {
		return json.Number(cell)
	}
	return cell
}
