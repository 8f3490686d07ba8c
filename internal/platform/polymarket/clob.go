package polymarket

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// endCursor marks the last page of a paginated CLOB listing.
const endCursor = "LTE="

// zeroAddress is the taker for publicly fillable orders.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API. It handles price queries, market lookups, and order
// placement.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
	sigType    int
	funder     string // maker address; falls back to the signer address
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer is the EIP-712 signer for order signatures and auth messages; it
// may be nil for read-only use (price and market queries).
// sigType selects the signature scheme (0 EOA, 1 proxy, 2 Safe).
// funder is the address holding collateral; empty means the signer address.
func NewClobClient(baseURL string, signer *crypto.Signer, sigType int, funder string) *ClobClient {
	if funder == "" && signer != nil {
		funder = signer.Address().Hex()
	}
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:  signer,
		sigType: sigType,
		funder:  funder,
	}
}

// GetPrice returns the current best price for a token on one side of the
// book. side is the book side being quoted: SELL gives the best ask (the
// price a buyer pays), BUY gives the best bid (the price a seller receives).
func (c *ClobClient) GetPrice(ctx context.Context, tokenID string, side domain.Side) (domain.Quote, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)
	q.Set("side", string(side))

	respBody, err := c.doGet(ctx, "/price?"+q.Encode())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket/clob: get price %s/%s: %w: %v", tokenID, side, domain.ErrQuoteUnavailable, err)
	}

	var pr priceResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket/clob: decode price response: %w", err)
	}

	price, err := strconv.ParseFloat(pr.Price, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket/clob: parse price %q: %w", pr.Price, domain.ErrQuoteUnavailable)
	}
	if price <= 0 {
		return domain.Quote{}, fmt.Errorf("polymarket/clob: empty book for %s/%s: %w", tokenID, side, domain.ErrQuoteUnavailable)
	}

	return domain.Quote{TokenID: tokenID, Side: side, Price: price}, nil
}

// GetMarket fetches a single market by condition ID. The endpoint has
// shipped three response shapes over time: the market object directly, the
// object wrapped in {"market": ...}, and a one-element {"data": [...]}
// page. All three are accepted.
func (c *ClobClient) GetMarket(ctx context.Context, conditionID string) (domain.Market, error) {
	respBody, err := c.doGet(ctx, "/markets/"+url.PathEscape(conditionID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, fmt.Errorf("polymarket/clob: market %s: %w", conditionID, domain.ErrMarketNotFound)
		}
		return domain.Market{}, fmt.Errorf("polymarket/clob: get market %s: %w", conditionID, err)
	}

	apiMarket, err := decodeMarketDetail(respBody)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/clob: market %s: %w", conditionID, err)
	}
	if apiMarket.ConditionID == "" {
		apiMarket.ConditionID = conditionID
	}

	return apiMarket.ToDomainMarket(), nil
}

// decodeMarketDetail tries the three known market-detail response shapes.
func decodeMarketDetail(body []byte) (APIMarket, error) {
	var direct APIMarket
	if err := json.Unmarshal(body, &direct); err == nil && len(direct.Tokens) > 0 {
		return direct, nil
	}

	var wrapped struct {
		Market APIMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Market.Tokens) > 0 {
		return wrapped.Market, nil
	}

	var page marketsPage
	if err := json.Unmarshal(body, &page); err == nil && len(page.Data) > 0 {
		return page.Data[0], nil
	}

	return APIMarket{}, fmt.Errorf("unrecognized market response: %w", domain.ErrMarketNotFound)
}

// GetSimplifiedMarkets pages through the simplified-markets listing and
// returns every market. The cursor "LTE=" (base64 for "-1") terminates
// pagination.
func (c *ClobClient) GetSimplifiedMarkets(ctx context.Context) ([]domain.Market, error) {
	var markets []domain.Market
	cursor := ""

	for {
		path := "/simplified-markets"
		if cursor != "" {
			path += "?next_cursor=" + url.QueryEscape(cursor)
		}

		respBody, err := c.doGet(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("polymarket/clob: list simplified markets: %w", err)
		}

		var page marketsPage
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("polymarket/clob: decode simplified markets: %w", err)
		}

		for i := range page.Data {
			markets = append(markets, page.Data[i].ToDomainMarket())
		}

		if page.NextCursor == "" || page.NextCursor == endCursor {
			return markets, nil
		}
		cursor = page.NextCursor
	}
}

// CreateOrder builds and signs an order for the given token. Price and size
// are converted to the integer maker/taker amounts the exchange contract
// expects (6 decimal places, rounded to whole base units).
func (c *ClobClient) CreateOrder(tokenID string, side domain.Side, price, size float64, orderType domain.OrderType) (domain.Order, error) {
	if c.signer == nil {
		return domain.Order{}, fmt.Errorf("polymarket/clob: no signer configured: %w", domain.ErrSigningFailed)
	}
	if price <= 0 || price >= 1 {
		return domain.Order{}, fmt.Errorf("polymarket/clob: price %v out of (0,1): %w", price, domain.ErrInvalidOrder)
	}
	if size <= 0 {
		return domain.Order{}, fmt.Errorf("polymarket/clob: size %v must be > 0: %w", size, domain.ErrInvalidOrder)
	}

	// BUY spends collateral for tokens; SELL spends tokens for collateral.
	var makerAmount, takerAmount *big.Int
	tokenUnits := big.NewInt(int64(math.Round(size * 1e6)))
	collateralUnits := big.NewInt(int64(math.Round(price * size * 1e6)))
	var sideNum int
	switch side {
	case domain.SideBuy:
		sideNum = 0
		makerAmount, takerAmount = collateralUnits, tokenUnits
	case domain.SideSell:
		sideNum = 1
		makerAmount, takerAmount = tokenUnits, collateralUnits
	default:
		return domain.Order{}, fmt.Errorf("polymarket/clob: unknown side %q: %w", side, domain.ErrInvalidOrder)
	}

	salt, err := newSalt()
	if err != nil {
		return domain.Order{}, fmt.Errorf("polymarket/clob: generate salt: %w", err)
	}

	payload := crypto.OrderPayload{
		Salt:          salt,
		Maker:         c.funder,
		Signer:        c.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideNum,
		SignatureType: c.sigType,
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return domain.Order{}, fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	return domain.Order{
		TokenID:     tokenID,
		Wallet:      c.funder,
		Side:        side,
		Type:        orderType,
		Price:       price,
		Size:        size,
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
		Salt:        salt,
		Signature:   sig,
	}, nil
}

// PostOrder submits a single signed order to the CLOB API.
func (c *ClobClient) PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	body := c.orderRequest(order)

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := apiResult.ToDomainOrderResult()
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, result.Message)
	}

	return result, nil
}

// PostOrders submits a batch of signed orders in a single request. The
// exchange evaluates each order independently; callers that need atomic
// all-or-nothing semantics must use FOK orders and check AllAccepted.
func (c *ClobClient) PostOrders(ctx context.Context, orders []domain.Order) (domain.BatchResult, error) {
	if len(orders) == 0 {
		return domain.BatchResult{}, fmt.Errorf("polymarket/clob: empty batch: %w", domain.ErrInvalidOrder)
	}

	body := make([]postOrderRequest, 0, len(orders))
	for _, o := range orders {
		body = append(body, c.orderRequest(o))
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("polymarket/clob: post orders: %w", err)
	}

	var apiResults []APIOrderResult
	if err := json.Unmarshal(respBody, &apiResults); err != nil {
		// Some error responses come back as a single object.
		var single APIOrderResult
		if err2 := json.Unmarshal(respBody, &single); err2 != nil {
			return domain.BatchResult{}, fmt.Errorf("polymarket/clob: decode batch result: %w", err)
		}
		apiResults = []APIOrderResult{single}
	}

	batch := domain.BatchResult{Orders: make([]domain.OrderResult, 0, len(apiResults))}
	for i := range apiResults {
		batch.Orders = append(batch.Orders, apiResults[i].ToDomainOrderResult())
	}

	return batch, nil
}

// DeriveAPIKey performs the CLOB auth flow to obtain an HMAC API key. It
// signs a ClobAuth EIP-712 message and sends it with L1 headers to the
// derive-api-key endpoint. Per Polymarket docs, L1 requires POLY_ADDRESS,
// POLY_SIGNATURE, POLY_TIMESTAMP, POLY_NONCE. On success it populates the
// client's hmacAuth field.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	if c.signer == nil {
		return fmt.Errorf("polymarket/clob: no signer configured: %w", domain.ErrSigningFailed)
	}

	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// orderRequest maps a signed domain order to the POST /order wire form.
func (c *ClobClient) orderRequest(order domain.Order) postOrderRequest {
	signerAddr := order.Wallet
	if c.signer != nil {
		signerAddr = c.signer.Address().Hex()
	}
	return postOrderRequest{
		Order: signedOrderPayload{
			Salt:          order.Salt,
			Maker:         order.Wallet,
			Signer:        signerAddr,
			Taker:         zeroAddress,
			TokenID:       order.TokenID,
			MakerAmount:   order.MakerAmount.String(),
			TakerAmount:   order.TakerAmount.String(),
			Expiration:    "0",
			Nonce:         "0",
			FeeRateBps:    "0",
			Side:          string(order.Side),
			SignatureType: c.sigType,
			Signature:     order.Signature,
		},
		Owner:     order.Wallet,
		OrderType: string(order.Type),
	}
}

// newSalt returns a random decimal salt for order uniqueness.
func newSalt() (string, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 60)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// doGet sends an unauthenticated GET and returns the raw response body.
func (c *ClobClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Apply HMAC authentication headers.
	if c.hmacAuth != nil && c.signer != nil {
		address := c.signer.Address().Hex()
		headers := c.hmacAuth.L2Headers(address, method, path, bodyStr)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
