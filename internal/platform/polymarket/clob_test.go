package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Well-known throwaway key for deterministic signing in tests.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	signer, err := crypto.NewSigner(testPrivateKey, 137)
	require.NoError(t, err)
	return signer
}

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price", r.URL.Path)
		assert.Equal(t, "tok-1", r.URL.Query().Get("token_id"))
		assert.Equal(t, "SELL", r.URL.Query().Get("side"))
		fmt.Fprint(w, `{"price":"0.42"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, 0, "")
	quote, err := client.GetPrice(context.Background(), "tok-1", domain.SideSell)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", quote.TokenID)
	assert.Equal(t, domain.SideSell, quote.Side)
	assert.Equal(t, 0.42, quote.Price)
}

func TestGetPriceEmptyBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"price":"0"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, 0, "")
	_, err := client.GetPrice(context.Background(), "tok-1", domain.SideBuy)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
}

func TestGetPriceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, 0, "")
	_, err := client.GetPrice(context.Background(), "tok-1", domain.SideSell)
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
}

func TestGetMarketShapes(t *testing.T) {
	direct := `{"condition_id":"0xc1","market_slug":"will-it-rain","active":true,"accepting_orders":true,
		"tokens":[{"token_id":"t1","outcome":"Yes"},{"token_id":"t2","outcome":"No"}]}`
	wrapped := fmt.Sprintf(`{"market":%s}`, direct)
	page := fmt.Sprintf(`{"data":[%s],"next_cursor":"LTE="}`, direct)

	for name, body := range map[string]string{
		"direct":  direct,
		"wrapped": wrapped,
		"page":    page,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/markets/0xc1", r.URL.Path)
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			client := NewClobClient(srv.URL, nil, 0, "")
			market, err := client.GetMarket(context.Background(), "0xc1")
			require.NoError(t, err)

			assert.Equal(t, "0xc1", market.ConditionID)
			assert.Equal(t, "will-it-rain", market.Slug)
			assert.True(t, market.Tradable())
			require.Len(t, market.Outcomes, 2)
			assert.Equal(t, "t1", market.Outcomes[0].TokenID)
			assert.Equal(t, "Yes", market.Outcomes[0].Label)
		})
	}
}

func TestGetMarketStringBools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"condition_id":"0xc1","slug":"s","active":"true","acceptingOrders":"true",
			"tokens":[{"token_id":"t1","outcome":"Yes"}]}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, 0, "")
	market, err := client.GetMarket(context.Background(), "0xc1")
	require.NoError(t, err)
	assert.True(t, market.Tradable())
}

func TestGetMarketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, 0, "")
	_, err := client.GetMarket(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestGetSimplifiedMarketsPagination(t *testing.T) {
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("next_cursor")
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			fmt.Fprint(w, `{"data":[{"condition_id":"0xa","tokens":[{"token_id":"t1"}]}],"next_cursor":"MjAw"}`)
		case "MjAw":
			fmt.Fprint(w, `{"data":[{"condition_id":"0xb","tokens":[{"token_id":"t2"}]}],"next_cursor":"LTE="}`)
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, 0, "")
	markets, err := client.GetSimplifiedMarkets(context.Background())
	require.NoError(t, err)

	require.Len(t, markets, 2)
	assert.Equal(t, "0xa", markets[0].ConditionID)
	assert.Equal(t, "0xb", markets[1].ConditionID)
	assert.Equal(t, []string{"", "MjAw"}, cursors)
}

func TestCreateOrderAmounts(t *testing.T) {
	client := NewClobClient("http://unused", testSigner(t), 0, "")

	buy, err := client.CreateOrder("tok-1", domain.SideBuy, 0.40, 5, domain.OrderTypeFOK)
	require.NoError(t, err)
	// BUY spends collateral: maker = price*size, taker = size, in 1e6 units.
	assert.Equal(t, "2000000", buy.MakerAmount.String())
	assert.Equal(t, "5000000", buy.TakerAmount.String())
	assert.Equal(t, domain.OrderTypeFOK, buy.Type)
	assert.NotEmpty(t, buy.Signature)
	assert.NotEmpty(t, buy.Salt)

	sell, err := client.CreateOrder("tok-1", domain.SideSell, 0.40, 5, domain.OrderTypeFOK)
	require.NoError(t, err)
	// SELL spends tokens: amounts are swapped.
	assert.Equal(t, "5000000", sell.MakerAmount.String())
	assert.Equal(t, "2000000", sell.TakerAmount.String())
}

func TestCreateOrderValidation(t *testing.T) {
	client := NewClobClient("http://unused", testSigner(t), 0, "")

	_, err := client.CreateOrder("tok-1", domain.SideBuy, 0, 5, domain.OrderTypeGTC)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = client.CreateOrder("tok-1", domain.SideBuy, 1.0, 5, domain.OrderTypeGTC)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = client.CreateOrder("tok-1", domain.SideBuy, 0.5, 0, domain.OrderTypeGTC)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	noSigner := NewClobClient("http://unused", nil, 0, "0xabc")
	_, err = noSigner.CreateOrder("tok-1", domain.SideBuy, 0.5, 5, domain.OrderTypeGTC)
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
}

func TestCreateOrderFunderFallsBackToSigner(t *testing.T) {
	signer := testSigner(t)
	client := NewClobClient("http://unused", signer, 0, "")

	order, err := client.CreateOrder("tok-1", domain.SideBuy, 0.5, 2, domain.OrderTypeGTC)
	require.NoError(t, err)
	assert.Equal(t, signer.Address().Hex(), order.Wallet)
}

func TestPostOrdersBatch(t *testing.T) {
	var received []postOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		fmt.Fprint(w, `[{"success":true,"orderID":"o1"},{"success":true,"orderID":"o2"}]`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, testSigner(t), 0, "")
	o1, err := client.CreateOrder("tok-1", domain.SideBuy, 0.40, 5, domain.OrderTypeFOK)
	require.NoError(t, err)
	o2, err := client.CreateOrder("tok-2", domain.SideBuy, 0.45, 5, domain.OrderTypeFOK)
	require.NoError(t, err)

	batch, err := client.PostOrders(context.Background(), []domain.Order{o1, o2})
	require.NoError(t, err)
	assert.True(t, batch.AllAccepted())

	require.Len(t, received, 2)
	assert.Equal(t, "tok-1", received[0].Order.TokenID)
	assert.Equal(t, "FOK", received[0].OrderType)
	assert.Equal(t, "BUY", received[0].Order.Side)
	assert.Equal(t, zeroAddress, received[0].Order.Taker)
}

func TestPostOrdersSingleObjectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"errorMsg":"not enough balance"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, testSigner(t), 0, "")
	order, err := client.CreateOrder("tok-1", domain.SideBuy, 0.40, 5, domain.OrderTypeFOK)
	require.NoError(t, err)

	batch, err := client.PostOrders(context.Background(), []domain.Order{order})
	require.NoError(t, err)
	assert.False(t, batch.AllAccepted())
	require.Len(t, batch.Orders, 1)
	assert.Equal(t, "not enough balance", batch.Orders[0].Message)
}

func TestPostOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"errorMsg":"market closed"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, testSigner(t), 0, "")
	order, err := client.CreateOrder("tok-1", domain.SideBuy, 0.40, 5, domain.OrderTypeGTC)
	require.NoError(t, err)

	_, err = client.PostOrder(context.Background(), order)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestCheckHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusCreated, nil},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}

	for _, tt := range tests {
		err := checkHTTPStatus(tt.status, nil)
		if tt.want == nil {
			assert.NoError(t, err, "status %d", tt.status)
		} else {
			assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		}
	}

	err := checkHTTPStatus(http.StatusBadGateway, []byte("gateway"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestDeriveAPIKey(t *testing.T) {
	signer := testSigner(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/derive-api-key", r.URL.Path)
		assert.Equal(t, signer.Address().Hex(), r.Header.Get("POLY_ADDRESS"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.NotEmpty(t, r.Header.Get("POLY_TIMESTAMP"))
		fmt.Fprint(w, `{"apiKey":"key","secret":"c2VjcmV0","passphrase":"pass"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, signer, 0, "")
	require.NoError(t, client.DeriveAPIKey(context.Background()))
	require.NotNil(t, client.hmacAuth)
	assert.Equal(t, "key", client.hmacAuth.Key)
}
