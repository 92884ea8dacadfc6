// Package feed defines the boundary contracts between the decision
// core and its external collaborators: market-data feeds, the
// subscription sink, the expiry calendar, and risk sizing. The core
// never talks to a wire directly; transports implement these
// interfaces and own their own reconnect/backoff behavior.
package feed

import (
	"context"
	"fmt"
	"time"
)

// UnderlyingFeed delivers underlying ticks via callback.
type UnderlyingFeed interface {
	OnTick(fn func(UnderlyingTick))
	Close() error
}

// OptionFeed delivers option NBBO ticks and heartbeat notifications.
type OptionFeed interface {
	OnTick(fn func(OptionTick))
	OnHeartbeat(fn func(symbol string))
	Close() error
}

// SubscriptionSink accepts OCC contract subscription requests.
// Duplicate subscribe calls must be harmless.
type SubscriptionSink interface {
	Subscribe(ctx context.Context, contracts []string) error
}

// ExpiryCalendar resolves the session expiry for a symbol. ok=false
// means the symbol is inactive for the session.
type ExpiryCalendar interface {
	ExpiryFor(symbol string) (time.Time, bool)
}

// Sizer converts account equity and an option premium into a contract
// count. Zero means "no trade", not an error.
type Sizer interface {
	Size(equity, optionPrice float64) int
}

// FeedError classifies boundary failures the way the transport reports
// them. The core only ever inspects Type.
type FeedError struct {
	Type    string // "network", "rate_limit", "provider_error", "bad_symbol"
	Symbol  string
	Message string
	Cause   error
}

func (e *FeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Type, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Type, e.Symbol, e.Message)
}

func NewNetworkError(symbol, message string, cause error) *FeedError {
	return &FeedError{Type: "network", Symbol: symbol, Message: message, Cause: cause}
}

func NewRateLimitError(symbol, message string) *FeedError {
	return &FeedError{Type: "rate_limit", Symbol: symbol, Message: message}
}

func NewProviderError(symbol, message string, cause error) *FeedError {
	return &FeedError{Type: "provider_error", Symbol: symbol, Message: message, Cause: cause}
}

func NewBadSymbolError(symbol, message string) *FeedError {
	return &FeedError{Type: "bad_symbol", Symbol: symbol, Message: message}
}
