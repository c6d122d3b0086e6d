package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	binanceStreamURL = "wss://stream.binance.com:9443/stream?streams=%s"

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second
)

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// BinanceFeed streams trades from the Binance combined-stream endpoint and
// reconnects with exponential backoff on disconnect.
type BinanceFeed struct {
	symbols []string
	log     zerolog.Logger

	// OnReconnect is an optional metrics hook called per reconnection.
	OnReconnect func()
	// OnConnected is called after each successful connect, with true, and
	// with false on disconnect.
	OnConnected func(bool)
}

// NewBinance creates a feed over the given symbols (e.g. "BTCUSDT").
func NewBinance(symbols []string, log zerolog.Logger) (*BinanceFeed, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("binance feed requires at least one symbol")
	}
	return &BinanceFeed{symbols: symbols, log: log}, nil
}

// Run connects and streams until ctx is cancelled.
func (f *BinanceFeed) Run(ctx context.Context, handle Handler) error {
	streams := make([]string, len(f.symbols))
	for i, sym := range f.symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	url := fmt.Sprintf(binanceStreamURL, strings.Join(streams, "/"))

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := f.runOnce(ctx, url, handle)
		if ctx.Err() != nil {
			return nil
		}

		f.log.Warn().Err(err).Dur("retry_in", delay).Msg("binance feed disconnected")
		if f.OnReconnect != nil {
			f.OnReconnect()
		}
		if f.OnConnected != nil {
			f.OnConnected(false)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *BinanceFeed) runOnce(ctx context.Context, url string, handle Handler) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Strs("symbols", f.symbols).Msg("binance feed connected")
	if f.OnConnected != nil {
		f.OnConnected(true)
	}

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	// Context watcher closes the connection so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	go f.pingLoop(ctx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env binanceEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("bad binance message")
			continue
		}

		price, err := decimal.NewFromString(env.Data.Price)
		if err != nil {
			f.log.Warn().Str("price", env.Data.Price).Msg("bad binance price")
			continue
		}
		volume, err := decimal.NewFromString(env.Data.Quantity)
		if err != nil {
			f.log.Warn().Str("qty", env.Data.Quantity).Msg("bad binance quantity")
			continue
		}

		// Rejections are per-tick and expected; the feed keeps reading.
		if err := handle(env.Data.Symbol, price, volume, time.UnixMilli(env.Data.TradeTime).UTC()); err != nil {
			f.log.Debug().Err(err).Str("symbol", env.Data.Symbol).Msg("tick rejected")
		}
	}
}

func (f *BinanceFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
