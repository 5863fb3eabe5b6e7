// Package kafka publishes completed validation reports for downstream
// consumers (the dashboard renderer and the forecasting pipeline).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cleanskies/tempo-validation-service/internal/config"
	"github.com/cleanskies/tempo-validation-service/internal/observability"
	"github.com/cleanskies/tempo-validation-service/internal/report"
)

// Publisher produces validation reports to a Kafka topic, keyed by run ID so
// re-runs of the same pipeline land in order per run.
type Publisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured report topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.ReportTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// Publish serializes and produces one validation report.
func (p *Publisher) Publish(ctx context.Context, rep *report.ValidationReport) error {
	msg, err := serializeToMessage(rep)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.PublishErrors.Inc()
		return fmt.Errorf("publish report %s: %w", rep.RunID, err)
	}
	p.metrics.ReportsPublished.Inc()
	p.logger.Info("report published", "run_id", rep.RunID, "groups", len(rep.Groups))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a ValidationReport into a Kafka message.
func serializeToMessage(rep *report.ValidationReport) (kafkago.Message, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rep.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(rep.RunID)},
			{Key: "generated_at", Value: []byte(rep.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
