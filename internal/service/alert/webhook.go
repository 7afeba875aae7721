package alert

import (
	"context"
	"fmt"
	"time"

	"TradeOps/internal/domain/models"
	xhttp "TradeOps/pkg/http"
	applogger "TradeOps/pkg/logger"
)

// WebhookSink delivers alerts to an HTTP webhook endpoint.
type WebhookSink struct {
	url    string
	http   *xhttp.Client
	logger *applogger.Logger
}

// NewWebhookSink creates an AlertSink that POSTs alerts as JSON.
func NewWebhookSink(url string, timeout time.Duration, l *applogger.Logger) *WebhookSink {
	return &WebhookSink{
		url:    url,
		http:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		logger: l.With("webhook"),
	}
}

// Dispatch posts the alert to the webhook. Delivery failures are logged and
// swallowed; a dead webhook must never stall the metric path.
func (s *WebhookSink) Dispatch(ctx context.Context, a *models.Alert) error {
	if s.url == "" {
		return nil
	}
	err := s.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.url,
		Body:   a,
	}, nil)
	if err != nil {
		s.logger.Warn("webhook delivery failed",
			applogger.String("rule", a.RuleID),
			applogger.Error(err),
		)
		return fmt.Errorf("webhook dispatch: %w", err)
	}
	s.logger.Debug("alert delivered",
		applogger.String("rule", a.RuleID),
		applogger.String("severity", a.Severity),
	)
	return nil
}

// Close is a no-op for the webhook sink.
func (s *WebhookSink) Close() error { return nil }
