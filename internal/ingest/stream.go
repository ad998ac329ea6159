package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/logger"
)

const (
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 5 * time.Minute

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	// Tracked wallet set is re-read from the store at this interval
	walletRefreshInterval = 5 * time.Minute
)

// StreamClient subscribes to transactions of tracked wallets over the
// RPC provider's websocket feed and routes buys into the pipeline
type StreamClient struct {
	config   *config.Config
	pipeline Pipeline
	wallets  store.WalletStore
	logger   *logger.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	tracked   map[string]bool
	trackedMu sync.RWMutex

	stopCh       chan struct{}
	doneCh       chan struct{}
	reconnecting bool
	reconnectMu  sync.Mutex
}

// NewStreamClient creates a websocket stream client
func NewStreamClient(cfg *config.Config, pipeline Pipeline, wallets store.WalletStore, log *logger.Logger) *StreamClient {
	return &StreamClient{
		config:   cfg,
		pipeline: pipeline,
		wallets:  wallets,
		logger:   log,
		tracked:  make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start connects and begins streaming. Returns an error only when the
// initial connection fails; later disconnects reconnect with backoff.
func (c *StreamClient) Start(ctx context.Context) error {
	c.logger.Info("Starting transaction stream client")

	if err := c.refreshWallets(ctx); err != nil {
		return fmt.Errorf("load tracked wallets: %w", err)
	}

	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go c.readLoop(ctx)
	go c.pingLoop(ctx)
	go c.walletRefreshLoop(ctx)

	return nil
}

// Stop closes the connection and waits for the read loop to exit
func (c *StreamClient) Stop() {
	c.logger.Info("Stopping transaction stream client")

	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	<-c.doneCh
}

func (c *StreamClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	wsURL := fmt.Sprintf("%s?api-key=%s", c.config.RPC.WSEndpoint, c.config.RPC.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.logger.Info("Connected to transaction stream")

	return c.subscribeLocked()
}

// subscribeLocked sends the transaction subscription for all tracked
// wallets. Caller holds connMu.
func (c *StreamClient) subscribeLocked() error {
	c.trackedMu.RLock()
	addresses := make([]string, 0, len(c.tracked))
	for addr := range c.tracked {
		addresses = append(addresses, addr)
	}
	c.trackedMu.RUnlock()

	msg := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "transactionSubscribe",
		"params": []interface{}{
			map[string]interface{}{
				"accountInclude": addresses,
				"failed":         false,
			},
			map[string]interface{}{
				"commitment":          "confirmed",
				"transactionDetails":  "full",
				"showRewards":         false,
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.logger.WithField("wallets", len(addresses)).Info("Subscribed to wallet transactions")
	return nil
}

func (c *StreamClient) readLoop(ctx context.Context) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			time.Sleep(time.Second)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.logger.WithError(err).Error("Stream read failed")
			c.handleDisconnect(ctx)
			continue
		}

		if err := c.handleMessage(ctx, message); err != nil {
			c.logger.WithError(err).Error("Stream message handling failed")
		}
	}
}

// streamNotification is the envelope for subscription notifications
type streamNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Transaction *Transaction `json:"transaction"`
		} `json:"result"`
	} `json:"params"`
}

func (c *StreamClient) handleMessage(ctx context.Context, message []byte) error {
	var note streamNotification
	if err := json.Unmarshal(message, &note); err != nil {
		return fmt.Errorf("unmarshal notification: %w", err)
	}

	// Subscription confirmations and other control frames
	if note.Method != "transactionNotification" || note.Params.Result.Transaction == nil {
		return nil
	}

	swap := ParseSwap(note.Params.Result.Transaction)
	if swap == nil {
		return nil
	}

	c.trackedMu.RLock()
	known := c.tracked[swap.Event.WalletAddress]
	c.trackedMu.RUnlock()
	if !known {
		return nil
	}

	results, err := c.pipeline.ProcessBuyEvent(ctx, swap.Event)
	if err != nil {
		return fmt.Errorf("process buy event: %w", err)
	}

	for _, result := range results {
		enriched := c.pipeline.EnrichAndValidate(ctx, result)
		if _, err := c.pipeline.CreateAlert(ctx, enriched, true); err != nil {
			c.logger.WithError(err).WithField("token", model.ShortAddress(swap.Event.TokenAddress)).Error("Alert creation failed")
		}
	}
	return nil
}

func (c *StreamClient) handleDisconnect(ctx context.Context) {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	c.logger.Warn("Stream disconnected, attempting to reconnect")

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(ctx); err != nil {
			c.logger.WithError(err).WithField("delay", delay).Error("Reconnect failed, retrying")

			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		c.logger.Info("Reconnected to transaction stream")
		return
	}
}

func (c *StreamClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				c.logger.WithError(err).Error("Failed to send ping")
			}
		}
	}
}

// walletRefreshLoop periodically re-reads the tracked wallet set and
// re-subscribes when it changed
func (c *StreamClient) walletRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(walletRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			before := c.trackedCount()
			if err := c.refreshWallets(ctx); err != nil {
				c.logger.WithError(err).Warn("Wallet refresh failed")
				continue
			}
			if c.trackedCount() != before {
				c.connMu.Lock()
				if c.conn != nil {
					if err := c.subscribeLocked(); err != nil {
						c.logger.WithError(err).Warn("Resubscribe failed")
					}
				}
				c.connMu.Unlock()
			}
		}
	}
}

func (c *StreamClient) refreshWallets(ctx context.Context) error {
	wallets, err := c.wallets.ListActive(ctx)
	if err != nil {
		return err
	}

	tracked := make(map[string]bool, len(wallets))
	for _, w := range wallets {
		tracked[w.Address] = true
	}

	c.trackedMu.Lock()
	c.tracked = tracked
	c.trackedMu.Unlock()

	c.logger.WithField("wallets", len(tracked)).Debug("Tracked wallet cache refreshed")
	return nil
}

func (c *StreamClient) trackedCount() int {
	c.trackedMu.RLock()
	defer c.trackedMu.RUnlock()
	return len(c.tracked)
}
