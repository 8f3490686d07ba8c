package domain

import "time"

// Direction classifies an arbitrage opportunity.
type Direction string

const (
	DirectionLong  Direction = "LONG"  // buy every outcome below the payout bound
	DirectionShort Direction = "SHORT" // mint via split, sell every outcome above the bound
	DirectionNone  Direction = "NONE"
)

// Leg is one (token, price) pair of an opportunity. Price is the side-
// appropriate quote: SELL-side for LONG legs, BUY-side for SHORT legs.
type Leg struct {
	TokenID string
	Price   float64
}

// Opportunity is a transient evaluation result. It is computed fresh each
// cycle and never stored as-is; the detection log keeps its own copy.
type Opportunity struct {
	ID          string
	ConditionID string // empty for multi-market events
	Slug        string
	Direction   Direction
	Legs        []Leg
	TotalLong   float64
	TotalShort  float64
	// Event marks multi-outcome evaluations. SHORT on events is
	// detection-only: the engine refuses to execute it.
	Event      bool
	DetectedAt time.Time
}

// Actionable reports whether the opportunity calls for a trade.
func (o Opportunity) Actionable() bool {
	return o.Direction == DirectionLong || o.Direction == DirectionShort
}
