// Package events publishes experiment step events to an optional
// Kafka topic. Publishing is advisory observability: failures are
// logged and never affect the run.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/collabgrid/collabgrid/internal/config"
)

// StepEvent is emitted after every protocol step.
type StepEvent struct {
	RunID         string    `json:"run_id"`
	Architecture  string    `json:"architecture"`
	Iteration     int       `json:"iteration"`
	Step          int       `json:"step"`
	Collision     bool      `json:"collision"`
	Completed     bool      `json:"completed"`
	ItemsLeft     int       `json:"items_left"`
	TokenEstimate int       `json:"token_estimate"`
	Timestamp     time.Time `json:"timestamp"`
}

// IterationEvent is emitted when an iteration finishes.
type IterationEvent struct {
	RunID     string    `json:"run_id"`
	Iteration int       `json:"iteration"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the configured brokers/topic.
func NewPublisher(cfg config.EventsConfig) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// PublishStep sends one step event; errors are logged, not returned.
func (p *Publisher) PublishStep(ctx context.Context, ev StepEvent) {
	p.publish(ctx, ev.RunID, ev)
}

// PublishIteration sends one iteration event.
func (p *Publisher) PublishIteration(ctx context.Context, ev IterationEvent) {
	p.publish(ctx, ev.RunID, ev)
}

func (p *Publisher) publish(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("event marshal failed", "err", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		slog.Warn("event publish failed", "topic", p.writer.Topic, "err", err)
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error { return p.writer.Close() }
