package binance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robik3456/tradebot/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewRESTClient("key", "secret", true, testLogger())
	client.baseURL = server.URL
	return client
}

func TestRoundToStepIdempotent(t *testing.T) {
	cases := []struct {
		qty  float64
		step float64
	}{
		{8.3333333, 0.001},
		{0.12345678, 0.0001},
		{1234.5678, 1},
		{0.0009, 0.001},
		{5, 0.1},
	}

	for _, tc := range cases {
		once := roundToStep(tc.qty, tc.step)
		twice := roundToStep(once, tc.step)
		assert.Equal(t, once, twice, "qty=%v step=%v", tc.qty, tc.step)
		assert.GreaterOrEqual(t, once, 0.0)
		assert.LessOrEqual(t, once, tc.qty)
	}
}

func TestRoundToStepNeverNegative(t *testing.T) {
	assert.Equal(t, 0.0, roundToStep(-1, 0.001))
	assert.Equal(t, 0.0, roundToStep(0, 0.001))
	assert.Equal(t, 0.0, roundToStep(0.0004, 0.001))
}

func TestRoundToStepExactValues(t *testing.T) {
	assert.Equal(t, 8.333, roundToStep(8.3333333, 0.001))
	assert.Equal(t, 1234.0, roundToStep(1234.5678, 1))
	assert.Equal(t, 0.1, roundToStep(0.1, 0.1))
}

func TestGetPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": "42000.50"})
	})

	price, err := client.GetPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 42000.50, price)
}

func TestGetPriceUnknownSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Code: -1121, Msg: "Invalid symbol."})
	})

	_, err := client.GetPrice(context.Background(), "NOPEUSDT")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestGetPriceServerErrorIsConnectivity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetPrice(context.Background(), "BTCUSDT")
	var connErr *ConnectivityError
	assert.True(t, errors.As(err, &connErr))
}

func TestGetPricePrefersFreshCache(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("REST endpoint should not be hit when the cache is fresh")
	})

	cache := NewPriceCache()
	cache.put(models.Ticker{Symbol: "BTCUSDT", LastPrice: 43000, Timestamp: time.Now().UTC()})
	client.SetPriceCache(cache)

	price, err := client.GetPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 43000.0, price)
}

func TestGetKlines(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700000059999,"0","0","0","0","0"],
			[1700000060000,"105.0","112.0","104.0","111.0","8.1",1700000119999,"0","0","0","0","0"]
		]`))
	})

	candles, err := client.GetKlines(context.Background(), "BTCUSDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 105.0, candles[0].Close)
	assert.Equal(t, 12.5, candles[0].Volume)
	assert.Equal(t, 111.0, candles[1].Close)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
	assert.True(t, candles[0].CloseTime.Before(candles[1].CloseTime))
}

func TestGetKlinesEmptySeriesIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	candles, err := client.GetKlines(context.Background(), "BTCUSDT", "1m", 100)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestGetFreeBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"balances": []map[string]string{
				{"asset": "BTC", "free": "0.5"},
				{"asset": "USDT", "free": "1234.56"},
			},
		})
	})

	assert.Equal(t, 1234.56, client.GetFreeBalance(context.Background(), "USDT"))
	assert.Equal(t, 0.0, client.GetFreeBalance(context.Background(), "DOGE"))
}

func TestGetFreeBalanceLookupFailureIsZero(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(apiError{Code: -2014, Msg: "API-key format invalid."})
	})

	assert.Equal(t, 0.0, client.GetFreeBalance(context.Background(), "USDT"))
}

func TestPlaceMarketOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.NotEmpty(t, q.Get("newClientOrderId"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"orderId":             12345,
			"status":              "FILLED",
			"executedQty":         "0.5",
			"cummulativeQuoteQty": "21000.0",
		})
	})

	order, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", models.SideBuy, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "12345", order.OrderID)
	assert.Equal(t, models.OrderStatusFilled, order.Status)
	assert.Equal(t, 0.5, order.Quantity)
	assert.Equal(t, 42000.0, order.Price)
}

func TestPlaceMarketOrderRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Code: -1013, Msg: "Filter failure: MIN_NOTIONAL"})
	})

	_, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", models.SideSell, 0.0001)
	var rejected *OrderRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, -1013, rejected.Code)
	assert.Equal(t, "BTCUSDT", rejected.Symbol)
}

func TestRoundLotSizeUsesExchangeInfo(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbols": []map[string]interface{}{
				{
					"symbol": "BTCUSDT",
					"filters": []map[string]string{
						{"filterType": "PRICE_FILTER", "stepSize": ""},
						{"filterType": "LOT_SIZE", "stepSize": "0.001"},
					},
				},
			},
		})
	})

	qty, err := client.RoundLotSize(context.Background(), "BTCUSDT", 8.3333333)
	require.NoError(t, err)
	assert.Equal(t, 8.333, qty)

	// Second call must hit the cache, not the endpoint.
	qty, err = client.RoundLotSize(context.Background(), "BTCUSDT", qty)
	require.NoError(t, err)
	assert.Equal(t, 8.333, qty)
	assert.Equal(t, 1, calls)
}
