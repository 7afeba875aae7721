package exchange

import (
	"context"
	"fmt"
	"time"

	"TradeOps/internal/domain/models"
	drepo "TradeOps/internal/domain/repository"
	xhttp "TradeOps/pkg/http"
	applogger "TradeOps/pkg/logger"
)

// Client submits orders to the venue REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	logger  *applogger.Logger
}

// New creates a new venue order client.
func New(baseURL, apiKey string, timeout time.Duration, l *applogger.Logger) drepo.ExchangeClient {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		logger:  l.With("exchange"),
	}
}

type submitRequest struct {
	ClientOrderID string  `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Price         float64 `json:"price,omitempty"`
}

type submitResponse struct {
	OrderID   string  `json:"order_id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

// SubmitOrder places an order at the venue and returns the execution.
func (c *Client) SubmitOrder(ctx context.Context, o *models.Order) (*models.Execution, error) {
	req := &submitRequest{
		ClientOrderID: o.ID,
		Symbol:        o.Symbol,
		Side:          o.Side,
		Type:          o.Type,
		Amount:        o.Amount,
		Price:         o.Price,
	}

	var resp submitResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + "/orders",
		Headers: map[string]string{
			"X-API-Key": c.apiKey,
		},
		Body: req,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("submit order %s: %w", o.ID, err)
	}

	c.logger.Debug("order submitted",
		applogger.String("order_id", o.ID),
		applogger.String("exchange_id", resp.OrderID),
	)

	return &models.Execution{
		OrderID:    o.ID,
		ExchangeID: resp.OrderID,
		Price:      resp.Price,
		Amount:     resp.Amount,
		Timestamp:  time.UnixMilli(resp.Timestamp),
	}, nil
}
