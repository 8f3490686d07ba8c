package domain

import "time"

// Side is the order-book side a quote or order refers to.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Quote is a point-in-time price for a token on one side of the book.
// Quotes are never persisted; evaluation always re-fetches them because
// prices are live.
type Quote struct {
	TokenID string
	Side    Side
	Price   float64 // in [0,1]
}

// PriceUpdate is a streamed price observation from the market WebSocket.
// It feeds the monitor price cache only; trade evaluation ignores it.
type PriceUpdate struct {
	TokenID   string
	Side      Side
	Price     float64
	Size      float64
	Timestamp time.Time
}
