package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// feedIDs is the fixed symbol -> price-feed-id map. Quotes for symbols
// outside this table are not available.
var feedIDs = map[string]string{
	"MOVE": "0x6bf748c908767baa762eedd8e076dddca71a2f8c38cd0a0464a7bb9dbb11a051",
	"USDC": "0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
	"USDT": "0x2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
	"WETH": "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"WBTC": "0xc9d8b075a5c69303365ae23633d4e085199bf5c520a3b90fed1322a0342ffc33",
}

// PriceClient fetches USD quotes from the price-feed API.
type PriceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPriceClient creates a new price-feed API client.
func NewPriceClient(baseURL string) *PriceClient {
	return &PriceClient{
		baseURL:    baseURL,
		httpClient: NewHTTPClient(),
	}
}

// GetPrice retrieves the quote for a single symbol.
func (c *PriceClient) GetPrice(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	feedID, ok := feedIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("no price feed registered for symbol %q", symbol)
	}

	endpoint := fmt.Sprintf("%s/api/latest_price_feeds?ids[]=%s", c.baseURL, url.QueryEscape(feedID))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching price for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("price API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var feeds []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&feeds); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("no price data returned for %s", symbol)
	}

	raw, err := strconv.ParseFloat(feeds[0].Price.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed price for %s: %w", symbol, err)
	}
	conf, _ := strconv.ParseFloat(feeds[0].Price.Conf, 64)
	scale := math.Pow10(feeds[0].Price.Expo)

	return &model.PriceQuote{
		Symbol:     symbol,
		USD:        raw * scale,
		Confidence: conf * scale,
		ObservedAt: time.Unix(feeds[0].Price.PublishTime, 0),
	}, nil
}

// GetPrices retrieves quotes for multiple symbols. Each symbol settles
// independently: a failed feed drops only that symbol and the successful
// subset is returned. An empty map with no error means every feed failed
// gracefully, which read paths treat as missing pricing, not an error.
func (c *PriceClient) GetPrices(ctx context.Context, symbols []string) map[string]model.PriceQuote {
	quotes := make(map[string]model.PriceQuote, len(symbols))
	for _, symbol := range symbols {
		quote, err := c.GetPrice(ctx, symbol)
		if err != nil {
			logrus.Warnf("Price fetch failed for %s: %v", symbol, err)
			continue
		}
		quotes[symbol] = *quote
	}
	return quotes
}
