package models

import "time"

// Metric is an append-only measurement point. Never mutated after creation.
type Metric struct {
	Name      string            `json:"name" validate:"required"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// MetricStats is the aggregate view over a metric time range.
type MetricStats struct {
	Name  string  `json:"name"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int64   `json:"count"`
}
