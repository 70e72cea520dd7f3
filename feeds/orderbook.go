package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDERBOOK CLIENT - HTTP fallback when the WS cache is cold
// ═══════════════════════════════════════════════════════════════════════════════

const (
	bookMaxRetries = 3
	bookBackoff    = 100 * time.Millisecond
	bookBackoffCap = 2 * time.Second
)

// BestAsks is one pair snapshot from the book endpoint. A nil price means
// "no data", never zero.
type BestAsks struct {
	YesAsk  *decimal.Decimal
	NoAsk   *decimal.Decimal
	YesSize decimal.Decimal
	NoSize  decimal.Decimal
}

// OrderbookClient fetches top-of-book over HTTP with bounded retry and a
// shared rate limiter.
type OrderbookClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOrderbookClient creates a client against the CLOB REST API.
func NewOrderbookClient(baseURL string) *OrderbookClient {
	return &OrderbookClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
}

type bookResponse struct {
	Bids []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

// FetchBestAsks returns best asks for both legs. Either side may be nil
// when the venue has no data; upstream failures degrade to nil after the
// retry budget is spent.
func (c *OrderbookClient) FetchBestAsks(ctx context.Context, yesTokenID, noTokenID string) BestAsks {
	var out BestAsks
	out.YesAsk, out.YesSize = c.fetchBestAsk(ctx, yesTokenID)
	out.NoAsk, out.NoSize = c.fetchBestAsk(ctx, noTokenID)
	return out
}

func (c *OrderbookClient) fetchBestAsk(ctx context.Context, tokenID string) (*decimal.Decimal, decimal.Decimal) {
	if tokenID == "" {
		return nil, decimal.Zero
	}

	var lastErr error
	for attempt := 0; attempt < bookMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := bookBackoff * time.Duration(1<<uint(attempt-1))
			if backoff > bookBackoffCap {
				backoff = bookBackoffCap
			}
			select {
			case <-ctx.Done():
				return nil, decimal.Zero
			case <-time.After(backoff):
			}
		}

		price, size, err := c.fetchOnce(ctx, tokenID)
		if err == nil {
			return price, size
		}
		lastErr = err
	}

	log.Debug().Err(lastErr).Str("token", shortID(tokenID)).Msg("Orderbook fetch gave up")
	return nil, decimal.Zero
}

func (c *OrderbookClient) fetchOnce(ctx context.Context, tokenID string) (*decimal.Decimal, decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, decimal.Zero, err
	}

	endpoint := fmt.Sprintf("%s/book?token_id=%s", c.baseURL, url.QueryEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, decimal.Zero, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decimal.Zero, fmt.Errorf("book endpoint returned %d", resp.StatusCode)
	}

	var book bookResponse
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, decimal.Zero, err
	}

	// Venue returns asks sorted worst-first; the best ask is the lowest.
	var best *decimal.Decimal
	var bestSize decimal.Decimal
	for _, lvl := range book.Asks {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		size, _ := decimal.NewFromString(lvl.Size)
		if best == nil || price.LessThan(*best) {
			p := price
			best = &p
			bestSize = size
		}
	}

	return best, bestSize, nil
}

// WarmConnection primes the TCP/TLS session before the snipe window.
// Best-effort: failures are logged and ignored.
func (c *OrderbookClient) WarmConnection(ctx context.Context, tokenID string) {
	warmCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, _, err := c.fetchOnce(warmCtx, tokenID); err != nil {
		log.Debug().Err(err).Str("token", shortID(tokenID)).Msg("Warm-up fetch failed")
	}
}
