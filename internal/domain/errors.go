package domain

import "errors"

var (
	// ErrMarketNotFound means resolution exhausted both the direct lookup
	// and the simplified-listing fallback.
	ErrMarketNotFound = errors.New("market not found")

	// ErrQuoteUnavailable means a price lookup failed; it propagates as a
	// per-market evaluation error.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrSettlementFailed means the on-chain split did not confirm with a
	// success status. The sell leg must never run after this.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrOrderRejected means the exchange refused the order batch.
	ErrOrderRejected = errors.New("order rejected")

	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
)
