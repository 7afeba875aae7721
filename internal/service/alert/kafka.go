package alert

import (
	"context"

	"TradeOps/internal/domain/models"
	drepo "TradeOps/internal/domain/repository"
	"TradeOps/pkg/kafka"
	applogger "TradeOps/pkg/logger"
)

// KafkaSink publishes fired alerts to the alerts topic. Downstream delivery
// (webhooks, pagers) is handled by consumers of that topic.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	logger   *applogger.Logger
}

// NewKafkaSink creates an AlertSink backed by a Kafka producer.
func NewKafkaSink(producer *kafka.Producer, topic string, l *applogger.Logger) drepo.AlertSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   l.With("alert_sink"),
	}
}

// Dispatch publishes the alert keyed by rule so alerts for one rule stay
// ordered. Publish errors are logged; the caller fires and forgets.
func (s *KafkaSink) Dispatch(ctx context.Context, a *models.Alert) error {
	if err := s.producer.Publish(ctx, s.topic, []byte(a.RuleID), a); err != nil {
		s.logger.Error("alert publish failed",
			applogger.String("rule", a.RuleID),
			applogger.Error(err),
		)
		return err
	}
	return nil
}

// Close closes the underlying producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
