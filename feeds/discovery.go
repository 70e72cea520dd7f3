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

	"github.com/web3guy0/snipebot/types"
)

// SportConfig describes one sportsbook discovery feed. Built once at
// startup and passed in; never mutated.
type SportConfig struct {
	Source types.MarketSource
	TagID  string
	Label  string
}

// Discovery finds tradeable markets via the Gamma API. Every method
// tolerates upstream failure by returning an empty slice; the scheduling
// loop never sees an error from discovery.
type Discovery struct {
	baseURL string
	client  *http.Client
}

// NewDiscovery creates a discovery client.
func NewDiscovery(baseURL string) *Discovery {
	return &Discovery{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// gammaEvent mirrors the Gamma events payload. outcomePrices and
// clobTokenIds arrive as JSON-encoded strings inside the JSON.
type gammaEvent struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	EndDate string `json:"endDate"`
	Markets []struct {
		ID            string `json:"id"`
		ConditionID   string `json:"conditionId"`
		Question      string `json:"question"`
		Outcomes      string `json:"outcomes"`
		OutcomePrices string `json:"outcomePrices"`
		ClobTokenIds  string `json:"clobTokenIds"`
		Liquidity     string `json:"liquidity"`
		EndDate       string `json:"endDateIso"`
		Active        bool   `json:"active"`
		Closed        bool   `json:"closed"`
	} `json:"markets"`
}

// DiscoverUpcoming returns hourly-crypto markets opening in the next
// window.
func (d *Discovery) DiscoverUpcoming(ctx context.Context) []types.Market {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("tag_slug", "crypto")
	params.Set("limit", "100")
	return d.fetchEvents(ctx, params, types.SourceHourlyCrypto)
}

// DiscoverSportMarkets returns markets for one sport feed.
func (d *Discovery) DiscoverSportMarkets(ctx context.Context, sport SportConfig) []types.Market {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("tag_id", sport.TagID)
	params.Set("limit", "100")
	return d.fetchEvents(ctx, params, sport.Source)
}

func (d *Discovery) fetchEvents(ctx context.Context, params url.Values, source types.MarketSource) []types.Market {
	endpoint := fmt.Sprintf("%s/events?%s", d.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}

	resp, err := d.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("source", string(source)).Msg("Discovery fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("source", string(source)).Msg("Discovery returned non-200")
		return nil
	}

	var events []gammaEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		log.Warn().Err(err).Msg("Discovery decode failed")
		return nil
	}

	var markets []types.Market
	for _, ev := range events {
		for _, gm := range ev.Markets {
			if gm.Closed || !gm.Active {
				continue
			}
			m, ok := parseGammaMarket(gm.ID, gm.Question, gm.OutcomePrices, gm.ClobTokenIds, gm.Liquidity, gm.EndDate, ev.ID, ev.Title, source)
			if !ok {
				continue
			}
			markets = append(markets, m)
		}
	}

	log.Debug().Int("count", len(markets)).Str("source", string(source)).Msg("Discovery cycle complete")
	return markets
}

// Resolution asks Gamma whether a market has resolved and which side won.
// Failures and unresolved markets both report resolved=false; settlement
// is re-checked periodically so a missed answer is harmless.
func (d *Discovery) Resolution(ctx context.Context, marketID string) (types.Side, bool) {
	endpoint := fmt.Sprintf("%s/markets/%s", d.baseURL, url.PathEscape(marketID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.SideYes, false
	}

	resp, err := d.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("market", marketID).Msg("Resolution fetch failed")
		return types.SideYes, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.SideYes, false
	}

	var gm struct {
		Closed        bool   `json:"closed"`
		OutcomePrices string `json:"outcomePrices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&gm); err != nil || !gm.Closed {
		return types.SideYes, false
	}

	// A resolved binary market settles its prices to 1 and 0.
	var prices []string
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &prices); err != nil || len(prices) < 2 {
		return types.SideYes, false
	}
	yes, err := decimal.NewFromString(prices[0])
	if err != nil {
		return types.SideYes, false
	}
	if yes.GreaterThanOrEqual(decimal.NewFromFloat(0.99)) {
		return types.SideYes, true
	}
	if yes.LessThanOrEqual(decimal.NewFromFloat(0.01)) {
		return types.SideNo, true
	}
	return types.SideYes, false
}

// parseGammaMarket builds a Market snapshot from the raw Gamma fields.
// The two token ids must be present and distinct.
func parseGammaMarket(id, question, outcomePrices, clobTokenIds, liquidity, endDate, eventID, eventTitle string, source types.MarketSource) (types.Market, bool) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(clobTokenIds), &tokenIDs); err != nil || len(tokenIDs) < 2 {
		return types.Market{}, false
	}
	if tokenIDs[0] == "" || tokenIDs[0] == tokenIDs[1] {
		return types.Market{}, false
	}

	var yesPrice, noPrice decimal.Decimal
	var prices []string
	if err := json.Unmarshal([]byte(outcomePrices), &prices); err == nil && len(prices) >= 2 {
		yesPrice, _ = decimal.NewFromString(prices[0])
		noPrice, _ = decimal.NewFromString(prices[1])
	}

	liq, _ := decimal.NewFromString(liquidity)

	var end time.Time
	if endDate != "" {
		if t, err := time.Parse(time.RFC3339, endDate); err == nil {
			end = t
		}
	}

	return types.Market{
		ID:           id,
		Question:     question,
		Source:       source,
		YesTokenID:   tokenIDs[0],
		NoTokenID:    tokenIDs[1],
		YesPrice:     yesPrice,
		NoPrice:      noPrice,
		LiquidityUSD: liq,
		EndDate:      end,
		EventID:      eventID,
		EventTitle:   eventTitle,
	}, true
}
