package models

import "time"

// AlertCondition compares a metric value against a rule threshold.
type AlertCondition string

const (
	ConditionAbove  AlertCondition = "above"
	ConditionBelow  AlertCondition = "below"
	ConditionEquals AlertCondition = "equals"
)

// AlertRule is read-mostly configuration evaluated against recorded metrics.
type AlertRule struct {
	ID         string         `json:"id" validate:"required"`
	MetricName string         `json:"metric_name" validate:"required"`
	Condition  AlertCondition `json:"condition" validate:"required,oneof=above below equals"`
	Threshold  float64        `json:"threshold"`
	Severity   string         `json:"severity" validate:"required,oneof=info warning critical"`
}

// Matches reports whether value satisfies the rule condition.
func (r AlertRule) Matches(value float64) bool {
	switch r.Condition {
	case ConditionAbove:
		return value > r.Threshold
	case ConditionBelow:
		return value < r.Threshold
	case ConditionEquals:
		return value == r.Threshold
	default:
		return false
	}
}

// Alert is a fire-and-forget notification produced when a rule triggers.
type Alert struct {
	RuleID      string    `json:"rule_id"`
	MetricName  string    `json:"metric_name"`
	Value       float64   `json:"value"`
	Threshold   float64   `json:"threshold"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
