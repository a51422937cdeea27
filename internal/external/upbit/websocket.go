package upbit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
)

// Timing and limits
const (
	PingInterval          = 60 * time.Second // 업비트는 120초 무통신 시 연결 종료
	ReconnectInitialDelay = 1 * time.Second
	ReconnectMaxDelay     = 30 * time.Second
	MaxReconnectAttempts  = 10
)

// WSClient handles the Upbit realtime trade stream
// ⭐ SSOT: 업비트 웹소켓 연결은 여기서만
type WSClient struct {
	cfg    config.UpbitConfig
	logger *logger.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	connected bool

	// Upbit replaces the whole subscription on every subscribe frame, so the
	// full code list is kept and resent as one unit.
	codes []string
	subMu sync.RWMutex

	// Callbacks
	onTrade      func(*market.TradeTick)
	onError      func(error)
	onConnected  func()
	onDisconnect func()

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWSClient creates a new websocket client
func NewWSClient(cfg config.UpbitConfig, log *logger.Logger) *WSClient {
	return &WSClient{
		cfg:    cfg,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// Callback setters
func (c *WSClient) OnTrade(fn func(*market.TradeTick)) { c.onTrade = fn }
func (c *WSClient) OnError(fn func(error))             { c.onError = fn }
func (c *WSClient) OnConnected(fn func())              { c.onConnected = fn }
func (c *WSClient) OnDisconnect(fn func())             { c.onDisconnect = fn }

// Connect establishes the websocket connection and starts the read and ping
// loops
func (c *WSClient) Connect(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	c.logger.Info("Upbit WebSocket connected")
	return nil
}

func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return err
	}

	c.conn = conn
	c.connected = true

	if c.onConnected != nil {
		c.onConnected()
	}

	return nil
}

// Disconnect closes the connection
func (c *WSClient) Disconnect() error {
	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.connected = false
	}
	c.connMu.Unlock()

	c.wg.Wait()

	if c.onDisconnect != nil {
		c.onDisconnect()
	}

	c.logger.Info("Upbit WebSocket disconnected")
	return nil
}

// IsConnected returns connection status
func (c *WSClient) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// Subscribe replaces the trade subscription with the given market codes
func (c *WSClient) Subscribe(codes ...string) error {
	c.subMu.Lock()
	c.codes = append([]string(nil), codes...)
	c.subMu.Unlock()

	if err := c.sendSubscribe(codes); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.logger.WithField("count", len(codes)).Debug("Subscribed to trade stream")
	return nil
}

// Subscriptions returns the currently subscribed market codes
func (c *WSClient) Subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	return append([]string(nil), c.codes...)
}

// sendSubscribe sends one subscription frame. Upbit expects a JSON array:
// ticket, one block per stream type, format.
func (c *WSClient) sendSubscribe(codes []string) error {
	frame := []interface{}{
		map[string]string{"ticket": uuid.NewString()},
		map[string]interface{}{
			"type":  "trade",
			"codes": codes,
		},
		map[string]string{"format": "DEFAULT"},
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteJSON(frame)
}

// readLoop handles incoming messages
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if c.onError != nil {
				c.onError(fmt.Errorf("read error: %w", err))
			}
			c.handleDisconnect()
			return
		}

		// Trade frames are binary JSON; everything else (status frames,
		// subscription acks) is dropped by the parser.
		if tick := parseTrade(message); tick != nil && c.onTrade != nil {
			c.onTrade(tick)
		}
	}
}

// pingLoop keeps the connection alive
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.connMu.Unlock()
					if c.onError != nil {
						c.onError(fmt.Errorf("ping error: %w", err))
					}
					c.handleDisconnect()
					return
				}
			}
			c.connMu.Unlock()
		}
	}
}

// handleDisconnect handles connection loss
func (c *WSClient) handleDisconnect() {
	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

// Reconnect attempts to reconnect with exponential backoff and restores the
// trade subscription
func (c *WSClient) Reconnect(ctx context.Context) error {
	delay := ReconnectInitialDelay

	for attempt := 1; attempt <= MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		c.logger.WithField("attempt", attempt).Info("Attempting WebSocket reconnection")

		if err := c.connect(ctx); err != nil {
			delay = delay * 2
			if delay > ReconnectMaxDelay {
				delay = ReconnectMaxDelay
			}
			continue
		}

		c.subMu.RLock()
		codes := append([]string(nil), c.codes...)
		c.subMu.RUnlock()

		if len(codes) > 0 {
			if err := c.sendSubscribe(codes); err != nil {
				c.logger.WithError(err).Warn("Resubscribe after reconnect failed")
			}
		}

		c.stopCh = make(chan struct{})
		c.wg.Add(2)
		go c.readLoop()
		go c.pingLoop()

		c.logger.Info("WebSocket reconnected successfully")
		return nil
	}

	return fmt.Errorf("max reconnect attempts reached")
}
