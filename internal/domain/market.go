package domain

// Outcome is one tradable leg of a market. It is immutable once resolved:
// the token ID never changes for a given condition/outcome pair.
type Outcome struct {
	Slug        string
	ConditionID string
	Label       string // e.g. "Yes", "No", or a candidate name
	TokenID     string // ERC-1155 token ID (76-digit string)
}

// Market represents a Polymarket prediction market as listed by the CLOB.
// Binary markets carry exactly two outcomes; multi-outcome events group N
// single-outcome markets under a shared event.
type Market struct {
	ConditionID     string
	Slug            string
	Active          bool
	AcceptingOrders bool
	Outcomes        []Outcome
}

// Tradable reports whether the market accepts new orders.
func (m Market) Tradable() bool {
	return m.Active && m.AcceptingOrders
}
