package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"TradeOps/internal/domain/models"
	drepo "TradeOps/internal/domain/repository"
	applogger "TradeOps/pkg/logger"
)

// RelayHandler consumes alerts from the alerts topic and forwards them to a
// delivery sink. Implements kafka.MessageHandler.
type RelayHandler struct {
	topic  string
	sink   drepo.AlertSink
	logger *applogger.Logger
}

// NewRelayHandler creates a relay from the alerts topic to the given sink.
func NewRelayHandler(topic string, sink drepo.AlertSink, l *applogger.Logger) *RelayHandler {
	return &RelayHandler{
		topic:  topic,
		sink:   sink,
		logger: l.With("alert_relay"),
	}
}

// Topic returns the consumed topic name.
func (h *RelayHandler) Topic() string { return h.topic }

// Handle decodes an alert payload and forwards it to the sink. Malformed
// payloads are dropped; returning the error would loop them through the
// consumer retry path for no gain.
func (h *RelayHandler) Handle(ctx context.Context, data []byte) error {
	var a models.Alert
	if err := json.Unmarshal(data, &a); err != nil {
		h.logger.Warn("malformed alert payload dropped", applogger.Error(err))
		return nil
	}
	if err := h.sink.Dispatch(ctx, &a); err != nil {
		return fmt.Errorf("relay alert %s: %w", a.RuleID, err)
	}
	return nil
}
