package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/robik3456/tradebot/pkg/models"
)

// Client is the market-data and execution surface the trading loop needs.
type Client interface {
	// Ping is a cheap liveness probe. Any failure is a *ConnectivityError.
	Ping(ctx context.Context) error

	// GetPrice returns the current price for symbol, or ErrPriceUnavailable
	// if the exchange does not track it.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// GetKlines returns up to limit candles ordered by time ascending.
	// An empty series is not an error.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// GetFreeBalance returns the free balance for asset, or 0 on a lookup
	// failure. Failures are logged, never propagated: an unknown balance
	// means "cannot trade now", not a hard fault.
	GetFreeBalance(ctx context.Context, asset string) float64

	// RoundLotSize quantizes qty down to the symbol's step size.
	// Idempotent; never returns a negative quantity.
	RoundLotSize(ctx context.Context, symbol string, qty float64) (float64, error)

	// PlaceMarketOrder submits a market order exactly once. The caller owns
	// retry policy. Exchange rejections surface as *OrderRejectedError.
	PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, qty float64) (*models.Order, error)
}

const (
	prodBaseURL    = "https://api.binance.com"
	testnetBaseURL = "https://testnet.binance.vision"
)

type symbolInfo struct {
	StepSize float64
}

// RESTClient implements Client against the Binance spot REST API.
type RESTClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger

	symbols *symbolInfoCache
	prices  *PriceCache
}

func NewRESTClient(apiKey, apiSecret string, testnet bool, logger *logrus.Logger) *RESTClient {
	baseURL := prodBaseURL
	if testnet {
		baseURL = testnetBaseURL
	}

	return &RESTClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Spot REST weight limit is 6000/min; stay well under it.
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		logger:  logger,
		symbols: newSymbolInfoCache(),
	}
}

// SetPriceCache attaches a websocket-fed price cache consulted by GetPrice
// before falling back to the REST ticker endpoint.
func (c *RESTClient) SetPriceCache(pc *PriceCache) {
	c.prices = pc
}

func (c *RESTClient) Ping(ctx context.Context) error {
	var out struct{}
	if err := c.doPublic(ctx, "/api/v3/ping", nil, &out); err != nil {
		return &ConnectivityError{Op: "ping", Err: err}
	}
	return nil
}

func (c *RESTClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if c.prices != nil {
		if price, ok := c.prices.Get(symbol); ok {
			return price, nil
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.doPublic(ctx, "/api/v3/ticker/price", params, &out); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) && reqErr.StatusCode < 500 {
			// -1121 "Invalid symbol" and friends: the symbol is untracked.
			return 0, fmt.Errorf("%s: %w", symbol, ErrPriceUnavailable)
		}
		return 0, &ConnectivityError{Op: "ticker/price", Err: err}
	}

	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ticker price %q: %w", out.Price, err)
	}
	return price, nil
}

func (c *RESTClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]json.RawMessage
	if err := c.doPublic(ctx, "/api/v3/klines", params, &raw); err != nil {
		return nil, fmt.Errorf("fetching klines for %s: %w", symbol, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("parsing kline for %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKline decodes one kline row: [openTime, open, high, low, close,
// volume, closeTime, ...]. Prices and volume arrive as JSON strings.
func parseKline(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 7 {
		return models.Candle{}, fmt.Errorf("kline row has %d fields, want at least 7", len(row))
	}

	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return models.Candle{}, err
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return models.Candle{}, err
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return models.Candle{}, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, err
		}
		fields[i] = f
	}

	return models.Candle{
		OpenTime:  time.UnixMilli(openMs).UTC(),
		CloseTime: time.UnixMilli(closeMs).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

func (c *RESTClient) GetFreeBalance(ctx context.Context, asset string) float64 {
	var out struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &out); err != nil {
		c.logger.WithError(err).WithField("asset", asset).Warn("Balance lookup failed, treating as zero")
		return 0
	}

	for _, b := range out.Balances {
		if b.Asset == asset {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				c.logger.WithError(err).WithField("asset", asset).Warn("Unparseable free balance, treating as zero")
				return 0
			}
			return free
		}
	}
	return 0
}

func (c *RESTClient) RoundLotSize(ctx context.Context, symbol string, qty float64) (float64, error) {
	info, err := c.getSymbolInfo(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return roundToStep(qty, info.StepSize), nil
}

func (c *RESTClient) PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, qty float64) (*models.Order, error) {
	clientOrderID := uuid.NewString()

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	params.Set("newClientOrderId", clientOrderID)

	var out struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		QuoteQty    string `json:"cummulativeQuoteQty"`
		Fills       []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params, &out); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) && reqErr.StatusCode < 500 && reqErr.APICode != 0 {
			return nil, &OrderRejectedError{
				Symbol:  symbol,
				Side:    string(side),
				Code:    reqErr.APICode,
				Message: reqErr.APIMsg,
			}
		}
		return nil, fmt.Errorf("placing %s market order for %s: %w", side, symbol, err)
	}

	executed, _ := strconv.ParseFloat(out.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(out.QuoteQty, 64)

	avgPrice := 0.0
	if executed > 0 && quote > 0 {
		avgPrice = quote / executed
	} else if len(out.Fills) > 0 {
		avgPrice, _ = strconv.ParseFloat(out.Fills[0].Price, 64)
	}

	return &models.Order{
		OrderID:       strconv.FormatInt(out.OrderID, 10),
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Price:         avgPrice,
		Quantity:      executed,
		QuoteSpent:    quote,
		Status:        models.OrderStatus(out.Status),
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func (c *RESTClient) getSymbolInfo(ctx context.Context, symbol string) (symbolInfo, error) {
	if info, ok := c.symbols.get(symbol); ok {
		return info, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var out struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := c.doPublic(ctx, "/api/v3/exchangeInfo", params, &out); err != nil {
		return symbolInfo{}, fmt.Errorf("fetching exchange info for %s: %w", symbol, err)
	}
	if len(out.Symbols) == 0 {
		return symbolInfo{}, fmt.Errorf("no exchange info for %s", symbol)
	}

	info := symbolInfo{}
	for _, f := range out.Symbols[0].Filters {
		if f.FilterType == "LOT_SIZE" {
			step, err := strconv.ParseFloat(f.StepSize, 64)
			if err != nil {
				return symbolInfo{}, fmt.Errorf("parsing step size %q for %s: %w", f.StepSize, symbol, err)
			}
			info.StepSize = step
		}
	}

	c.symbols.put(symbol, info)
	return info, nil
}

// roundToStep floors qty to a multiple of step, snapped to the step's
// decimal precision so repeated rounding is stable.
func roundToStep(qty, step float64) float64 {
	if qty <= 0 {
		return 0
	}
	if step <= 0 {
		return qty
	}

	steps := math.Floor(qty/step + 1e-9)
	rounded := steps * step

	decimals := 0
	if step < 1 {
		decimals = int(math.Round(-math.Log10(step)))
	}
	pow := math.Pow(10, float64(decimals))
	rounded = math.Round(rounded*pow) / pow

	if rounded < 0 {
		return 0
	}
	return rounded
}

// symbolInfoCache memoizes exchangeInfo lot-size metadata per symbol.
// Step sizes change rarely enough that one fetch per process is fine.
type symbolInfoCache struct {
	mu    sync.RWMutex
	infos map[string]symbolInfo
}

func newSymbolInfoCache() *symbolInfoCache {
	return &symbolInfoCache{infos: make(map[string]symbolInfo)}
}

func (s *symbolInfoCache) get(symbol string) (symbolInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[symbol]
	return info, ok
}

func (s *symbolInfoCache) put(symbol string, info symbolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[symbol] = info
}

// requestError carries the HTTP status and decoded exchange error body.
type requestError struct {
	StatusCode int
	APICode    int
	APIMsg     string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("http %d: code=%d msg=%s", e.StatusCode, e.APICode, e.APIMsg)
}

func (c *RESTClient) doPublic(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, false, out)
}

func (c *RESTClient) doSigned(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	query += "&signature=" + c.sign(query)
	return c.do(ctx, method, c.baseURL+path+"?"+query, true, out)
}

func (c *RESTClient) do(ctx context.Context, method, endpoint string, authed bool, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	if authed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := &requestError{StatusCode: resp.StatusCode}
		var ae apiError
		if json.Unmarshal(body, &ae) == nil {
			reqErr.APICode = ae.Code
			reqErr.APIMsg = ae.Msg
		}
		return reqErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *RESTClient) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
