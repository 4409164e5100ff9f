package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bazaarhq/paycore/pkg/logger"
)

// DefaultEndpoint is the CoinGecko simple-price endpoint.
const DefaultEndpoint = "https://api.coingecko.com/api/v3"

const requestTimeout = 10 * time.Second

// Client fetches USD prices for native assets, with a short-lived cache so
// repeated gas estimates don't hammer the API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	cache      *PriceCache
	logger     logger.Logger
}

// NewClient creates a price oracle client. A cacheTTL around a minute keeps
// estimates fresh without rate-limit trouble.
func NewClient(endpoint string, cacheTTL time.Duration, log logger.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      NewPriceCache(cacheTTL),
		logger:     log,
	}
}

// USDPrice returns the USD price for an asset id (e.g. "ethereum").
func (c *Client) USDPrice(ctx context.Context, assetID string) (float64, error) {
	if assetID == "" {
		return 0, fmt.Errorf("asset id is required")
	}

	if price, ok := c.cache.Get(assetID); ok {
		return price, nil
	}

	price, err := c.fetchPrice(ctx, assetID)
	if err != nil {
		return 0, err
	}

	c.cache.Set(assetID, price)
	return price, nil
}

// Cleanup evicts cache entries older than maxAge.
func (c *Client) Cleanup(maxAge time.Duration) int {
	return c.cache.Cleanup(maxAge)
}

func (c *Client) fetchPrice(ctx context.Context, assetID string) (float64, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.endpoint, assetID)

	timeoutCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price API request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %v", err)
	}

	var result map[string]map[string]float64
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse price response: %v", err)
	}

	assetData, exists := result[assetID]
	if !exists {
		return 0, fmt.Errorf("asset %s not found in response", assetID)
	}
	price, exists := assetData["usd"]
	if !exists {
		return 0, fmt.Errorf("USD price not found in response")
	}

	c.logger.Debug("Fetched USD price for %s: %f", assetID, price)
	return price, nil
}
