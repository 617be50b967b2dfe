package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// YieldsClient fetches the bulk yield-pool listing. Results are served
// through a short-TTL read-through cache because the upstream listing is
// large and changes slowly relative to request volume.
type YieldsClient struct {
	baseURL    string
	chain      string
	httpClient *http.Client
	cache      *TTLCache
}

// NewYieldsClient creates a new yield-pool API client. The cache TTL and
// clock are injectable so the owner controls staleness and tests control
// time.
func NewYieldsClient(baseURL, chain string, ttl time.Duration, now Clock) *YieldsClient {
	return &YieldsClient{
		baseURL:    baseURL,
		chain:      chain,
		httpClient: NewHTTPClient(),
		cache:      NewTTLCache(ttl, now),
	}
}

// Pools retrieves all yield pools for the client's chain, optionally
// filtered to one project.
func (c *YieldsClient) Pools(ctx context.Context, project string) ([]model.PoolStat, error) {
	cacheKey := fmt.Sprintf("yields:%s:%s", c.chain, project)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]model.PoolStat), nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/pools", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	logrus.Debugf("Fetching yield pools for chain %s project %q", c.chain, project)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching yield pools: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yields API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Status string           `json:"status"`
		Data   []model.PoolStat `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	var pools []model.PoolStat
	for _, pool := range response.Data {
		if pool.Chain != c.chain {
			continue
		}
		if project != "" && pool.Project != project {
			continue
		}
		pools = append(pools, pool)
	}

	c.cache.Set(cacheKey, pools)
	logrus.Debugf("Received %d yield pools for chain %s", len(pools), c.chain)
	return pools, nil
}
