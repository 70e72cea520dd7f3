package feeds

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// WSClient subscribes to the CLOB market channel and writes every book
// snapshot and price change into the shared PriceCache. The polling loop
// only ever reads the cache; it never blocks on this client.
type WSClient struct {
	url        string
	cache      *PriceCache
	conn       *websocket.Conn
	mu         sync.RWMutex
	connected  bool
	subscribed map[string]bool // tokenID -> subscribed

	stopCh chan struct{}
}

// WSMarketSnapshot is the initial order book snapshot
type WSMarketSnapshot struct {
	Market    string `json:"market"`
	AssetID   string `json:"asset_id"`
	Timestamp string `json:"timestamp"`
	Hash      string `json:"hash"`
	Bids      []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

// WSPriceChange is a real-time price update
type WSPriceChange struct {
	Market       string `json:"market"`
	PriceChanges []struct {
		AssetID string `json:"asset_id"`
		Price   string `json:"price"`
		Size    string `json:"size"`
		Side    string `json:"side"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	} `json:"price_changes"`
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
}

// NewWSClient creates a client writing into the given cache.
func NewWSClient(url string, cache *PriceCache) *WSClient {
	return &WSClient{
		url:        url,
		cache:      cache,
		subscribed: make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the reader.
func (c *WSClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	log.Info().Str("url", c.url).Msg("Connecting to CLOB WebSocket...")

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	go c.readMessages()

	log.Info().Msg("✅ Connected to CLOB WebSocket")
	return nil
}

// SubscribePair subscribes to both legs of a market.
func (c *WSClient) SubscribePair(yesTokenID, noTokenID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	var fresh []string
	for _, id := range []string{yesTokenID, noTokenID} {
		if id != "" && !c.subscribed[id] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	msg := map[string]interface{}{
		"type":       "market",
		"assets_ids": fresh,
	}

	msgBytes, _ := json.Marshal(msg)
	if err := c.conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	for _, id := range fresh {
		c.subscribed[id] = true
	}
	log.Info().Int("tokens", len(fresh)).Msg("📡 Subscribed to market WebSocket")

	return nil
}

func (c *WSClient) readMessages() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			log.Error().Err(err).Msg("WebSocket read error")
			c.handleDisconnect()
			return
		}

		c.handleMessage(message)
	}
}

func (c *WSClient) handleMessage(data []byte) {
	// Try to parse as price change first
	var priceChange WSPriceChange
	if err := json.Unmarshal(data, &priceChange); err == nil && priceChange.EventType == "price_change" {
		c.handlePriceChange(&priceChange)
		return
	}

	// Initial subscription response is an array of snapshots
	var snapshots []WSMarketSnapshot
	if err := json.Unmarshal(data, &snapshots); err == nil && len(snapshots) > 0 {
		for i := range snapshots {
			c.handleSnapshot(&snapshots[i])
		}
	}
}

func (c *WSClient) handleSnapshot(snap *WSMarketSnapshot) {
	var bestBid, bestAsk, bidSize, askSize decimal.Decimal

	// Same venue ordering as the HTTP book endpoint: bids worst-first, the
	// best bid is the highest; asks worst-first, the best ask is the lowest.
	for _, lvl := range snap.Bids {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		if bestBid.IsZero() || price.GreaterThan(bestBid) {
			bestBid = price
			bidSize, _ = decimal.NewFromString(lvl.Size)
		}
	}
	for _, lvl := range snap.Asks {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		if bestAsk.IsZero() || price.LessThan(bestAsk) {
			bestAsk = price
			askSize, _ = decimal.NewFromString(lvl.Size)
		}
	}

	c.cache.Update(snap.AssetID, bestBid, bestAsk, bidSize, askSize)

	log.Debug().
		Str("token", shortID(snap.AssetID)).
		Str("bid", bestBid.String()).
		Str("ask", bestAsk.String()).
		Msg("📊 Snapshot received")
}

func (c *WSClient) handlePriceChange(pc *WSPriceChange) {
	for _, change := range pc.PriceChanges {
		bestBid, _ := decimal.NewFromString(change.BestBid)
		bestAsk, _ := decimal.NewFromString(change.BestAsk)
		size, _ := decimal.NewFromString(change.Size)

		c.cache.Update(change.AssetID, bestBid, bestAsk, size, size)
	}
}

func (c *WSClient) handleDisconnect() {
	c.mu.Lock()
	c.connected = false
	resub := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		resub = append(resub, id)
	}
	c.subscribed = make(map[string]bool)
	c.mu.Unlock()

	select {
	case <-c.stopCh:
		return
	default:
	}

	log.Warn().Msg("WebSocket disconnected, reconnecting in 5s...")
	time.Sleep(5 * time.Second)

	if err := c.Connect(); err != nil {
		log.Error().Err(err).Msg("Reconnect failed")
		return
	}
	for i := 0; i+1 < len(resub); i += 2 {
		if err := c.SubscribePair(resub[i], resub[i+1]); err != nil {
			log.Warn().Err(err).Msg("Resubscribe failed")
		}
	}
	if len(resub)%2 == 1 {
		_ = c.SubscribePair(resub[len(resub)-1], "")
	}
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() {
	close(c.stopCh)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
}

// IsConnected returns connection status.
func (c *WSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
