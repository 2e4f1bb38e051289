// Package events streams settlement evidence records to a Kafka audit topic.
// Publication is best-effort: the settlement itself is committed to the store
// first, and a failed publish is logged, never rolled back.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"rainguard/internal/types"
)

// SettlementEvent is the audit record published for every completed
// settlement. It carries the full proof so downstream consumers can verify
// the digest independently of the store.
type SettlementEvent struct {
	PolicyID     string                `json:"policy_id"`
	SessionID    string                `json:"session_id"`
	Destination  types.Destination     `json:"destination"`
	Dates        types.DateRange       `json:"dates"`
	ConditionMet bool                  `json:"condition_met"`
	RainDays     int                   `json:"rain_days"`
	Threshold    int                   `json:"threshold"`
	PayoutAmount float64               `json:"payout_amount"`
	Proof        types.SettlementProof `json:"proof"`
	SettledAt    time.Time             `json:"settled_at"`
}

// Publisher produces settlement events to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the audit topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishSettlement serializes and publishes one settlement event, keyed by
// policy ID so per-policy ordering is preserved within a partition.
func (p *Publisher) PublishSettlement(ctx context.Context, event SettlementEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize settlement event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.PolicyID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("policy.settled")},
			{Key: "settled_at", Value: []byte(event.SettledAt.Format(time.RFC3339))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish settlement event: %w", err)
	}

	p.logger.InfoContext(ctx, "settlement event published",
		"policy_id", event.PolicyID,
		"condition_met", event.ConditionMet,
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
