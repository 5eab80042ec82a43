package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	FtxBaseURL = "https://ftx.com/api"
	FtxWSURL   = "wss://ftx.com/ws/"
)

// FtxAdapter implements domain.MarketData against the FTX REST and
// websocket APIs.
type FtxAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client

	wsConn    *websocket.Conn
	callbacks []func(q domain.Quote)
	mu        sync.Mutex
}

func NewFtxAdapter(apiKey, apiSecret, baseURL, wsURL string) *FtxAdapter {
	if baseURL == "" {
		baseURL = FtxBaseURL
	}
	if wsURL == "" {
		wsURL = FtxWSURL
	}
	return &FtxAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// --- REST API ---

func (f *FtxAdapter) sign(timestamp int64, method, path string) string {
	toSign := fmt.Sprintf("%d%s/api%s", timestamp, method, path)
	h := hmac.New(sha256.New, []byte(f.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

func (f *FtxAdapter) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return err
	}

	if f.apiKey != "" {
		timestamp := time.Now().UnixMilli()
		req.Header.Set("FTX-KEY", f.apiKey)
		req.Header.Set("FTX-TS", strconv.FormatInt(timestamp, 10))
		req.Header.Set("FTX-SIGN", f.sign(timestamp, http.MethodGet, path))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error: %s", string(body))
	}

	var envelope struct {
		Success bool            `json:"success"`
		Error   string          `json:"error"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	if !envelope.Success {
		return fmt.Errorf("ftx error: %s", envelope.Error)
	}

	return json.Unmarshal(envelope.Result, out)
}

func (f *FtxAdapter) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	var result []struct {
		Name       string  `json:"name"`
		Underlying string  `json:"underlying"`
		Expiry     *string `json:"expiry"`
		Perpetual  bool    `json:"perpetual"`
	}
	if err := f.get(ctx, "/futures", &result); err != nil {
		return nil, err
	}

	instruments := make([]domain.Instrument, 0, len(result))
	for _, item := range result {
		var expiry time.Time
		if item.Expiry != nil && *item.Expiry != "" {
			t, err := time.Parse(time.RFC3339, *item.Expiry)
			if err != nil {
				log.Printf("WARNING: unparseable expiry for %s: %v", item.Name, err)
				continue
			}
			expiry = t
		}
		instruments = append(instruments, domain.Instrument{
			Symbol:      item.Name,
			Underlying:  item.Underlying,
			Expiry:      expiry,
			IsPerpetual: item.Perpetual,
		})
	}
	return instruments, nil
}

func (f *FtxAdapter) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	var result struct {
		Bid  float64 `json:"bid"`
		Ask  float64 `json:"ask"`
		Last float64 `json:"last"`
	}
	if err := f.get(ctx, "/markets/"+url.PathEscape(symbol), &result); err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{Symbol: symbol, Bid: result.Bid, Ask: result.Ask, Last: result.Last}, nil
}

func (f *FtxAdapter) GetHistoricalPrices(ctx context.Context, symbol string, resolutionSec, limit int, start, end time.Time) ([]domain.PricePoint, error) {
	path := fmt.Sprintf("/markets/%s/candles?resolution=%d&limit=%d&start_time=%d&end_time=%d",
		url.PathEscape(symbol), resolutionSec, limit, start.Unix(), end.Unix())

	var result []struct {
		StartTime string  `json:"startTime"`
		Open      float64 `json:"open"`
	}
	if err := f.get(ctx, path, &result); err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, len(result))
	for _, c := range result {
		ts, err := time.Parse(time.RFC3339, c.StartTime)
		if err != nil {
			return nil, fmt.Errorf("bad candle timestamp %q: %w", c.StartTime, err)
		}
		points = append(points, domain.PricePoint{Time: ts, Value: c.Open})
	}
	return points, nil
}

func (f *FtxAdapter) GetFundingRates(ctx context.Context) ([]domain.FundingRateEntry, error) {
	var result []struct {
		Future string  `json:"future"`
		Rate   float64 `json:"rate"`
	}
	if err := f.get(ctx, "/funding_rates", &result); err != nil {
		return nil, err
	}

	entries := make([]domain.FundingRateEntry, 0, len(result))
	for _, r := range result {
		entries = append(entries, domain.FundingRateEntry{Symbol: r.Future, Rate: r.Rate})
	}
	return entries, nil
}

func (f *FtxAdapter) GetFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	path := fmt.Sprintf("/funding_rates?future=%s&start_time=%d&end_time=%d",
		url.QueryEscape(symbol), start.Unix(), end.Unix())

	var result []struct {
		Rate float64 `json:"rate"`
		Time string  `json:"time"`
	}
	if err := f.get(ctx, path, &result); err != nil {
		return nil, err
	}

	// Delivered newest first; passed through as-is.
	points := make([]domain.PricePoint, 0, len(result))
	for _, r := range result {
		ts, err := time.Parse(time.RFC3339, r.Time)
		if err != nil {
			return nil, fmt.Errorf("bad funding timestamp %q: %w", r.Time, err)
		}
		points = append(points, domain.PricePoint{Time: ts, Value: r.Rate})
	}
	return points, nil
}

// --- WebSocket ---

func (f *FtxAdapter) OnQuoteUpdate(callback func(q domain.Quote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callback)
}

func (f *FtxAdapter) Subscribe(symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.wsConn == nil {
		c, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
		if err != nil {
			return err
		}
		f.wsConn = c
		go f.readLoop()
	}

	for _, s := range symbols {
		msg := map[string]interface{}{
			"op":      "subscribe",
			"channel": "ticker",
			"market":  s,
		}
		if err := f.wsConn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *FtxAdapter) readLoop() {
	defer func() {
		f.wsConn.Close()
		f.mu.Lock()
		f.wsConn = nil
		f.mu.Unlock()
	}()

	for {
		_, message, err := f.wsConn.ReadMessage()
		if err != nil {
			log.Println("WS read error:", err)
			return
		}

		var event struct {
			Channel string `json:"channel"`
			Market  string `json:"market"`
			Type    string `json:"type"`
			Data    struct {
				Bid  float64 `json:"bid"`
				Ask  float64 `json:"ask"`
				Last float64 `json:"last"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			log.Println("WS unmarshal error:", err)
			continue
		}

		if event.Channel != "ticker" || event.Type != "update" {
			continue
		}

		quote := domain.Quote{
			Symbol: event.Market,
			Bid:    event.Data.Bid,
			Ask:    event.Data.Ask,
			Last:   event.Data.Last,
		}

		f.mu.Lock()
		callbacks := make([]func(domain.Quote), len(f.callbacks))
		copy(callbacks, f.callbacks)
		f.mu.Unlock()

		for _, cb := range callbacks {
			cb(quote)
		}
	}
}
