package models

// Tick is a single normalized market-data update for a symbol.
// Immutable once produced; consumers receive it by value.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"ts"` // unix milliseconds
}
