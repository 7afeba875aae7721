package api

import (
	"errors"
	"time"

	"TradeOps/internal/domain/models"
	drepo "TradeOps/internal/domain/repository"
	"TradeOps/internal/marketdata"
	"TradeOps/internal/monitoring"
	"TradeOps/internal/orderqueue"
	"TradeOps/internal/service/ratelimit"
	xhttp "TradeOps/pkg/http"
	xlogger "TradeOps/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OpsHandler exposes the trading-operations core over HTTP.
type OpsHandler struct {
	logger  *xlogger.Logger
	market  *marketdata.Hub
	orders  *orderqueue.Queue
	monitor *monitoring.Hub
	rl      *ratelimit.Limiter
}

func NewOpsHandler(logger *xlogger.Logger, market *marketdata.Hub, orders *orderqueue.Queue, monitor *monitoring.Hub) *OpsHandler {
	return &OpsHandler{
		logger:  logger,
		market:  market,
		orders:  orders,
		monitor: monitor,
		rl:      ratelimit.New(),
	}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/market/:symbol", h.MarketData)

	g.POST("/orders", h.SubmitOrder)
	g.GET("/orders/queue", h.OrderQueue)
	g.GET("/orders/:id", h.Order)
	g.PATCH("/orders/:id/status", h.UpdateOrderStatus)

	g.GET("/metrics", h.Metrics)
	g.GET("/metrics/stats", h.MetricStats)

	g.GET("/alerts/rules", h.AlertRules)
	g.POST("/alerts/rules", h.AddAlertRule)
	g.DELETE("/alerts/rules/:id", h.RemoveAlertRule)
}

// Health reports connection state; storage health is covered by the metric
// store behind the monitoring hub.
func (h *OpsHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"stream": h.market.State().String(),
	})
}

// MarketData returns the cached tick for a symbol, if fresh.
func (h *OpsHandler) MarketData(c echo.Context) error {
	symbol := c.Param("symbol")
	tick, ok := h.market.GetMarketData(symbol)
	if !ok {
		return xhttp.NotFoundResponse(c, "no fresh tick for "+symbol)
	}
	return xhttp.SuccessResponse(c, tick)
}

// SubmitOrderRequest is the order submission payload.
type SubmitOrderRequest struct {
	UserID     string  `json:"user_id" validate:"required"`
	StrategyID string  `json:"strategy_id"`
	Exchange   string  `json:"exchange" default:"primary"`
	Symbol     string  `json:"symbol" validate:"required"`
	Side       string  `json:"side" validate:"required,oneof=buy sell"`
	Type       string  `json:"type" validate:"required,oneof=market limit" default:"market"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Price      float64 `json:"price" validate:"gte=0"`
}

// SubmitOrder enqueues a new order. Per-user token bucket keeps one noisy
// client from flooding the single-writer queue.
func (h *OpsHandler) SubmitOrder(c echo.Context) error {
	req := &SubmitOrderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if !h.rl.Allow("orders:"+req.UserID, 10, 5) {
		h.logger.Warn("order submit rate_limited", xlogger.String("user_id", req.UserID))
		return xhttp.TooManyRequestsResponse(c)
	}

	order := &models.Order{
		UserID:     req.UserID,
		StrategyID: req.StrategyID,
		Exchange:   req.Exchange,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Amount:     req.Amount,
		Price:      req.Price,
	}

	saved, err := h.orders.AddOrder(c.Request().Context(), order)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		h.logger.Error("order submit error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.CreatedResponse(c, saved)
}

// OrderQueue returns a snapshot of waiting orders.
func (h *OpsHandler) OrderQueue(c echo.Context) error {
	snapshot := h.orders.GetQueue()
	return xhttp.ListResponse(c, snapshot, int64(len(snapshot)))
}

// Order returns a single order by id.
func (h *OpsHandler) Order(c echo.Context) error {
	o, err := h.orders.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, drepo.ErrOrderNotFound) {
			return xhttp.NotFoundResponse(c, "order not found")
		}
		h.logger.Error("order lookup error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, o)
}

// UpdateStatusRequest carries the target status for an admin override.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus applies an administrative transition (typically
// cancellation). Illegal transitions come back as 409.
func (h *OpsHandler) UpdateOrderStatus(c echo.Context) error {
	req := &UpdateStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	o, err := h.orders.UpdateOrderStatus(c.Request().Context(), c.Param("id"), models.OrderStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, drepo.ErrOrderNotFound):
			return xhttp.NotFoundResponse(c, "order not found")
		case errors.Is(err, models.ErrInvalidTransition):
			return xhttp.ConflictResponse(c, err.Error())
		case errors.Is(err, models.ErrValidation):
			return xhttp.BadRequestResponse(c, err.Error())
		default:
			h.logger.Error("order status update error", xlogger.Error(err))
			return xhttp.InternalServerErrorResponse(c)
		}
	}
	return xhttp.SuccessResponse(c, o)
}

// Metrics queries stored metric points over a time range. Tag filters come
// in as repeated "tag" params of the form key:value.
func (h *OpsHandler) Metrics(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return xhttp.BadRequestResponse(c, "name required")
	}
	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-1*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 500)

	tags := make(map[string]string)
	for _, raw := range c.QueryParams()["tag"] {
		for i := 0; i < len(raw); i++ {
			if raw[i] == ':' {
				tags[raw[:i]] = raw[i+1:]
				break
			}
		}
	}

	points, err := h.monitor.GetMetrics(c.Request().Context(), name, from, to, tags, limit)
	if err != nil {
		h.logger.Error("metric query error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, points, int64(len(points)))
}

// MetricStats aggregates min/max/avg/count over a time range.
func (h *OpsHandler) MetricStats(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return xhttp.BadRequestResponse(c, "name required")
	}
	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-1*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)

	stats, err := h.monitor.GetMetricStats(c.Request().Context(), name, from, to)
	if err != nil {
		h.logger.Error("metric stats error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, stats)
}

// AlertRules lists configured rules.
func (h *OpsHandler) AlertRules(c echo.Context) error {
	rules := h.monitor.Rules()
	return xhttp.ListResponse(c, rules, int64(len(rules)))
}

// AddAlertRule registers or replaces a rule.
func (h *OpsHandler) AddAlertRule(c echo.Context) error {
	rule := &models.AlertRule{}
	if verr := xhttp.ReadAndValidateRequest(c, rule); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.monitor.AddRule(c.Request().Context(), *rule); err != nil {
		if errors.Is(err, models.ErrValidation) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		h.logger.Error("alert rule add error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.CreatedResponse(c, rule)
}

// RemoveAlertRule deletes a rule by id.
func (h *OpsHandler) RemoveAlertRule(c echo.Context) error {
	if !h.monitor.RemoveRule(c.Param("id")) {
		return xhttp.NotFoundResponse(c, "rule not found")
	}
	return xhttp.NoContentResponse(c)
}
