package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/robik3456/tradebot/pkg/models"
)

const (
	prodStreamURL    = "wss://stream.binance.com:9443/ws"
	testnetStreamURL = "wss://testnet.binance.vision/ws"

	// Cached ticks older than this fall back to the REST endpoint.
	priceStaleness = 10 * time.Second
)

// PriceCache holds the latest websocket tick per symbol. GetPrice consults
// it before the REST ticker to save request weight during tight poll loops.
type PriceCache struct {
	mu      sync.RWMutex
	tickers map[string]models.Ticker
}

func NewPriceCache() *PriceCache {
	return &PriceCache{tickers: make(map[string]models.Ticker)}
}

func (p *PriceCache) Get(symbol string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.tickers[symbol]
	if !ok || time.Since(t.Timestamp) > priceStaleness {
		return 0, false
	}
	return t.LastPrice, true
}

func (p *PriceCache) put(t models.Ticker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers[t.Symbol] = t
}

// StreamClient keeps a miniTicker websocket subscription alive for a set of
// symbols and feeds a PriceCache. The trading loop works without it; the
// REST fallback in GetPrice covers disconnected stretches.
type StreamClient struct {
	url       string
	symbols   []string
	cache     *PriceCache
	logger    *logrus.Logger
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func NewStreamClient(symbols []string, testnet bool, cache *PriceCache, logger *logrus.Logger) *StreamClient {
	url := prodStreamURL
	if testnet {
		url = testnetStreamURL
	}
	return &StreamClient{
		url:     url,
		symbols: symbols,
		cache:   cache,
		logger:  logger,
	}
}

// Run connects, subscribes, and reads until ctx is cancelled, reconnecting
// with a fixed delay after any failure.
func (s *StreamClient) Run(ctx context.Context) {
	const reconnectDelay = 5 * time.Second

	for {
		if err := s.connect(ctx); err != nil {
			s.logger.WithError(err).Warn("Price stream connect failed")
		} else {
			s.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			s.close()
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *StreamClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dialing price stream: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	params := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		params = append(params, strings.ToLower(sym)+"@miniTicker")
	}
	sub := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().Unix(),
	}
	if err := conn.WriteJSON(sub); err != nil {
		s.close()
		return fmt.Errorf("subscribing to price stream: %w", err)
	}

	s.logger.WithField("symbols", s.symbols).Info("Price stream connected")
	return nil
}

type miniTickerEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

func (s *StreamClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.close()
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.WithError(err).Warn("Price stream read failed, reconnecting")
			s.close()
			return
		}

		var ev miniTickerEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Event != "24hrMiniTicker" {
			continue
		}

		price, err := strconv.ParseFloat(ev.Close, 64)
		if err != nil {
			continue
		}
		s.cache.put(models.Ticker{
			Symbol:    ev.Symbol,
			LastPrice: price,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (s *StreamClient) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
