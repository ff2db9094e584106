package quotestream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"
)

const (
	dialTimeout          = 30 * time.Second
	writeWait            = 10 * time.Second
	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// Consumer maintains a websocket subscription for streaming quotes and
// feeds decoded ticks into the shared cache. A Consumer with an empty URL
// is a no-op; Start returns immediately.
type Consumer struct {
	url     string
	symbols []string
	cache   *Cache
	log     zerolog.Logger

	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.Mutex

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool
}

// NewConsumer creates a stream consumer for the given symbols. The cache
// must not be nil; it is shared with the readers.
func NewConsumer(url string, symbols []string, cache *Cache, log zerolog.Logger) *Consumer {
	return &Consumer{
		url:      url,
		symbols:  symbols,
		cache:    cache,
		log:      log.With().Str("client", "quotestream").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Enabled reports whether a stream URL is configured.
func (c *Consumer) Enabled() bool {
	return c.url != ""
}

// ContractSymbol is the stream identifier for a single option contract,
// and therefore also its cache key.
func ContractSymbol(ticker, expiry string, strike float64, right string) string {
	return fmt.Sprintf("%s:%s:%.2f:%s", ticker, expiry, strike, right)
}

// Subscribe adds symbols to the subscription set. New symbols are pushed
// to the gateway immediately when connected and are replayed on reconnect.
func (c *Consumer) Subscribe(symbols ...string) {
	c.mu.Lock()
	known := make(map[string]bool, len(c.symbols))
	for _, sym := range c.symbols {
		known[sym] = true
	}
	var added []string
	for _, sym := range symbols {
		if sym == "" || known[sym] {
			continue
		}
		known[sym] = true
		c.symbols = append(c.symbols, sym)
		added = append(added, sym)
	}
	connected := c.connected
	c.mu.Unlock()

	if len(added) == 0 {
		return
	}
	if connected {
		if err := c.sendSubscribe(added); err != nil {
			c.log.Warn().Err(err).Msg("Failed to push new symbols, will resubscribe on reconnect")
		}
	}
}

// Symbols returns a copy of the current subscription set.
func (c *Consumer) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// Start connects and begins consuming ticks in the background. When no URL
// is configured it logs once and returns nil.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.Enabled() {
		c.log.Info().Msg("No stream URL configured, quote streaming disabled")
		return nil
	}
	if err := c.connect(ctx); err != nil {
		return err
	}
	go c.readLoop()
	return nil
}

// Stop closes the connection and halts reconnect attempts.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopChan)
	conn := c.conn
	cancel := c.cancelFunc
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	if cancel != nil {
		cancel()
	}
	c.log.Info().Msg("Quote stream stopped")
}

// Connected reports whether the consumer currently holds a live connection.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Some stream gateways mishandle HTTP/2 upgrades, so the dial is pinned
// to HTTP/1.1.
func http1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:   &tls.Config{NextProtos: []string{"http/1.1"}},
			ForceAttemptHTTP2: false,
		},
	}
}

func (c *Consumer) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPClient: http1Client(),
	})
	if err != nil {
		return fmt.Errorf("dialing quote stream: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	connCtx, connCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		c.closeConn()
		return err
	}
	c.log.Info().Int("symbols", len(c.symbols)).Msg("Quote stream connected")
	return nil
}

func (c *Consumer) subscribe() error {
	c.mu.Lock()
	symbols := make([]string, len(c.symbols))
	copy(symbols, c.symbols)
	c.mu.Unlock()
	return c.sendSubscribe(symbols)
}

func (c *Consumer) sendSubscribe(symbols []string) error {
	c.mu.Lock()
	conn := c.conn
	connCtx := c.connCtx
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	msg := map[string]interface{}{
		"action":  "subscribe",
		"symbols": symbols,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding subscribe message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(connCtx, writeWait)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("sending subscribe message: %w", err)
	}
	return nil
}

func (c *Consumer) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		connCtx := c.connCtx
		c.mu.Unlock()
		if conn == nil {
			return
		}

		select {
		case <-c.stopChan:
			return
		default:
		}

		msgType, data, err := conn.Read(connCtx)
		if err != nil {
			c.mu.Lock()
			stopped := c.stopped
			c.connected = false
			c.mu.Unlock()
			if stopped {
				return
			}
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.log.Info().Msg("Quote stream closed by server")
				return
			}
			c.log.Warn().Err(err).Msg("Quote stream read failed, reconnecting")
			go c.reconnectLoop()
			return
		}

		if msgType != websocket.MessageBinary {
			continue
		}
		c.handleFrame(data)
	}
}

// handleFrame decodes a msgpack frame holding one tick or a batch of ticks.
func (c *Consumer) handleFrame(data []byte) {
	var batch []Tick
	if err := msgpack.Unmarshal(data, &batch); err == nil && len(batch) > 0 {
		for _, tick := range batch {
			if tick.Symbol != "" {
				c.cache.Put(tick)
			}
		}
		return
	}

	var tick Tick
	if err := msgpack.Unmarshal(data, &tick); err != nil {
		c.log.Warn().Err(err).Int("bytes", len(data)).Msg("Discarding undecodable stream frame")
		return
	}
	if tick.Symbol != "" {
		c.cache.Put(tick)
	}
}

func (c *Consumer) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	delay := baseReconnectDelay
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
		}

		c.log.Info().Int("attempt", attempt).Msg("Reconnecting quote stream")
		if err := c.connect(context.Background()); err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("Quote stream reconnect failed")
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}
		go c.readLoop()
		return
	}
	c.log.Error().Int("attempts", maxReconnectAttempts).Msg("Quote stream reconnect attempts exhausted")
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancelFunc
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	if cancel != nil {
		cancel()
	}
}
