// Package polymarket contains REST and WebSocket clients for the Polymarket
// CLOB (Central Limit Order Book) API.
package polymarket

import (
	"encoding/json"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so CLOB API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the CLOB markets endpoints.
// The API is not consistent about field naming across endpoints, so the
// struct carries both snake_case and camelCase variants where they differ.
type APIMarket struct {
	ConditionID      string   `json:"condition_id"`
	QuestionID       string   `json:"question_id"`
	Question         string   `json:"question"`
	MarketSlug       string   `json:"market_slug"`
	Slug             string   `json:"slug"`
	Title            string   `json:"title"`
	Active           flexBool `json:"active"`
	Closed           flexBool `json:"closed"`
	AcceptingOrders  flexBool `json:"accepting_orders"`
	AcceptingOrders2 flexBool `json:"acceptingOrders"`
	Tokens           []Token  `json:"tokens"`
	MinimumTickSize  string   `json:"minimum_tick_size"`
	NegRisk          bool     `json:"neg_risk"`
	EndDateISO       string   `json:"end_date_iso"`
}

// Token is a single outcome token inside a market response.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Price   string `json:"price"`
	Winner  bool   `json:"winner"`
}

// slug returns the best available human-readable identifier.
func (m *APIMarket) slug() string {
	switch {
	case m.MarketSlug != "":
		return m.MarketSlug
	case m.Slug != "":
		return m.Slug
	case m.Title != "":
		return m.Title
	default:
		return m.Question
	}
}

// acceptingOrders merges the two naming variants the API uses.
func (m *APIMarket) acceptingOrders() bool {
	return bool(m.AcceptingOrders) || bool(m.AcceptingOrders2)
}

// ToDomainMarket converts a CLOB APIMarket to a domain.Market.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ConditionID:     m.ConditionID,
		Slug:            m.slug(),
		Active:          bool(m.Active) && !bool(m.Closed),
		AcceptingOrders: m.acceptingOrders(),
	}
	for _, tok := range m.Tokens {
		if tok.TokenID == "" {
			continue
		}
		dm.Outcomes = append(dm.Outcomes, domain.Outcome{
			Slug:        dm.Slug,
			ConditionID: m.ConditionID,
			Label:       tok.Outcome,
			TokenID:     tok.TokenID,
		})
	}
	return dm
}

// marketsPage is one page of the paginated simplified-markets listing.
type marketsPage struct {
	Data       []APIMarket `json:"data"`
	NextCursor string      `json:"next_cursor"`
	Limit      int         `json:"limit"`
	Count      int         `json:"count"`
}

// priceResponse is the body of GET /price.
type priceResponse struct {
	Price string `json:"price"`
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	TransactID  string `json:"transactID,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	return domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Status:  r.Status,
		Message: r.ErrorMsg,
	}
}

// signedOrderPayload is the wire form of a signed order inside POST /order
// and POST /orders requests.
type signedOrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// postOrderRequest is the body of POST /order.
type postOrderRequest struct {
	Order     signedOrderPayload `json:"order"`
	Owner     string             `json:"owner"`
	OrderType string             `json:"orderType"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSMessage is the envelope of a market-channel WebSocket frame.
type WSMessage struct {
	EventType string `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string `json:"asset_id,omitempty"`
	Market    string `json:"market,omitempty"`
	Price     string `json:"price,omitempty"`
	Side      string `json:"side,omitempty"`
	Size      string `json:"size,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// WSCommand is the JSON payload sent to the WebSocket to subscribe.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}
