package models

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusRetrying   OrderStatus = "retrying"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
	StatusCancelled  OrderStatus = "cancelled"
)

// legalTransitions encodes the order state machine. Cancellation is only
// reachable from pending or processing; completed/cancelled never leave.
// failed -> retrying is allowed while retries remain (checked by the queue).
var legalTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusRetrying, StatusCancelled},
	StatusRetrying:   {StatusProcessing, StatusFailed},
	StatusFailed:     {StatusRetrying},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// Valid reports whether s is a known status value.
func (s OrderStatus) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible from s.
// Note failed is terminal only once retries are exhausted; that bound is
// enforced by the queue, not by the state table.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether s -> to is a legal edge.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range legalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is a trade instruction owned by the order queue. Only the queue
// mutates Status and RetryCount; everyone else reads.
type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	StrategyID string      `json:"strategy_id,omitempty"`
	Exchange   string      `json:"exchange"`
	Symbol     string      `json:"symbol" validate:"required"`
	Side       string      `json:"side" validate:"required,oneof=buy sell"`
	Type       string      `json:"type" validate:"required,oneof=market limit"`
	Amount     float64     `json:"amount" validate:"required,gt=0"`
	Price      float64     `json:"price,omitempty" validate:"gte=0"`
	Status     OrderStatus `json:"status"`
	RetryCount int         `json:"retry_count"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Clone returns a copy safe to hand out of the queue.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// Execution is the exchange-side acknowledgement of a submitted order.
type Execution struct {
	OrderID    string    `json:"order_id"`
	ExchangeID string    `json:"exchange_id"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}
