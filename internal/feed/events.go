package feed

import "time"

// UnderlyingTick is one normalized underlying price update.
type UnderlyingTick struct {
	Symbol    string
	Price     float64
	Bid       *float64
	Ask       *float64
	Volume    *float64
	Timestamp time.Time
}

// OptionTick is one normalized option NBBO update. Analytics fields
// ride along when the venue bundles them; otherwise they arrive later
// via AnalyticsUpdate.
type OptionTick struct {
	Symbol       string
	Contract     string
	Strike       *float64
	Right        *string // "C" or "P"
	Bid          float64
	Ask          float64
	BidSize      *int64
	AskSize      *int64
	Delta        *float64
	Gamma        *float64
	Theta        *float64
	Vega         *float64
	IV           *float64
	Volume       *int64
	OpenInterest *int64
	RecvTS       time.Time
	ChainAgeMs   *float64
	LatencyMs    *float64
}

// AnalyticsUpdate carries REST-sourced enrichment for a contract.
// Nil fields are "not provided", never "zero".
type AnalyticsUpdate struct {
	Symbol       string
	Contract     string
	IV           *float64
	Delta        *float64
	Gamma        *float64
	Theta        *float64
	Vega         *float64
	Volume       *int64
	OpenInterest *int64
}

func Float(v float64) *float64 { return &v }
func Int(v int64) *int64       { return &v }
func Right(v string) *string   { return &v }
