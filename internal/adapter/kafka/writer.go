// Package kafka publishes enriched race rows to a sink topic for downstream
// consumers. The sink is optional: the warehouse remains the system of
// record, and the pipeline runs without Kafka when no brokers are configured.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/race-weather-etl/internal/config"
	"github.com/couchcryptid/race-weather-etl/internal/domain"
	"github.com/couchcryptid/race-weather-etl/internal/observability"
)

// Writer produces enriched rows to the configured sink topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// PublishBatch serializes and publishes rows in a single WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, rows []domain.EnrichedRow) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish enriched rows: %w", err)
	}
	w.metrics.RowsPublished.Add(float64(len(rows)))
	w.logger.Info("enriched rows published", "count", len(rows))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an enriched row into a Kafka message keyed by
// (sailor, report time) so repeated loads land on the same partition.
func serializeToMessage(row domain.EnrichedRow) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize enriched row: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(row.Sailor + "|" + row.TimeLocal),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "sailor", Value: []byte(row.Sailor)},
			{Key: "report_time", Value: []byte(row.TimeLocal)},
		},
	}, nil
}
