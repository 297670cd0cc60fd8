package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/recent-precip/internal/config"
	"github.com/couchcryptid/recent-precip/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces series snapshots to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one snapshot keyed by the location's rounded coordinates,
// so successive snapshots for a point land on the same partition.
func (w *Writer) Publish(ctx context.Context, loc domain.Location, series *domain.RecentPrecipSeries) error {
	msg, err := serializeToMessage(loc, series)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot %s: %w", loc.Key(), err)
	}
	w.logger.Debug("snapshot published", "key", loc.Key(), "method", series.Method)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// Snapshot is the message value published for each refresh.
type Snapshot struct {
	Location domain.Location            `json:"location"`
	Series   *domain.RecentPrecipSeries `json:"series"`
}

// serializeToMessage marshals a series snapshot into a Kafka message.
func serializeToMessage(loc domain.Location, series *domain.RecentPrecipSeries) (kafkago.Message, error) {
	data, err := json.Marshal(Snapshot{Location: loc, Series: series})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize series snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(loc.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "method", Value: []byte(series.Method)},
			{Key: "as_of", Value: []byte(series.AsOf.Format(time.RFC3339))},
		},
	}, nil
}
