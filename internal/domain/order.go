package domain

import "math/big"

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled, standalone orders
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill, arbitrage batches must not partially fill
)

// Order is a single order ready for signing and submission.
type Order struct {
	TokenID     string
	Wallet      string
	Side        Side
	Type        OrderType
	Price       float64
	Size        float64
	MakerAmount *big.Int // integer notional used in the signed payload
	TakerAmount *big.Int // integer quantity used in the signed payload
	Salt        string
	Signature   string // EIP-712 hex
}

// OrderResult wraps the API response for one submitted order.
type OrderResult struct {
	Success bool
	OrderID string
	Status  string
	Message string
}

// BatchResult is the outcome of an atomic multi-order submission.
type BatchResult struct {
	Orders []OrderResult
}

// AllAccepted reports whether every order in the batch was accepted.
func (b BatchResult) AllAccepted() bool {
	if len(b.Orders) == 0 {
		return false
	}
	for _, r := range b.Orders {
		if !r.Success {
			return false
		}
	}
	return true
}
