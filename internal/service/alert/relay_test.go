package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"TradeOps/internal/domain/models"
	"TradeOps/pkg/logger"
)

type captureSink struct {
	alerts []*models.Alert
	err    error
}

func (s *captureSink) Dispatch(ctx context.Context, a *models.Alert) error {
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *captureSink) Close() error { return nil }

func TestRelayForwardsAlert(t *testing.T) {
	sink := &captureSink{}
	h := NewRelayHandler("alerts", sink, logger.Nop())

	payload, _ := json.Marshal(&models.Alert{RuleID: "r1", MetricName: "latency", Value: 600})
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.alerts) != 1 || sink.alerts[0].RuleID != "r1" {
		t.Fatalf("forwarded = %+v", sink.alerts)
	}
}

func TestRelayDropsMalformedPayload(t *testing.T) {
	sink := &captureSink{}
	h := NewRelayHandler("alerts", sink, logger.Nop())

	if err := h.Handle(context.Background(), []byte("{not json")); err != nil {
		t.Fatalf("malformed payload must be dropped, got %v", err)
	}
	if len(sink.alerts) != 0 {
		t.Fatal("malformed payload reached the sink")
	}
}

func TestRelayPropagatesSinkError(t *testing.T) {
	sink := &captureSink{err: errors.New("webhook down")}
	h := NewRelayHandler("alerts", sink, logger.Nop())

	payload, _ := json.Marshal(&models.Alert{RuleID: "r1"})
	if err := h.Handle(context.Background(), payload); err == nil {
		t.Fatal("sink failure must surface so the consumer can retry")
	}
}
