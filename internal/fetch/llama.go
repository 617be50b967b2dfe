package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// DirectoryClient fetches protocol-level TVL data from the aggregate
// protocol-directory API.
type DirectoryClient struct {
	baseURL    string
	chain      string
	httpClient *http.Client
}

// NewDirectoryClient creates a new protocol-directory API client scoped to
// one chain.
func NewDirectoryClient(baseURL, chain string) *DirectoryClient {
	return &DirectoryClient{
		baseURL:    baseURL,
		chain:      chain,
		httpClient: NewHTTPClient(),
	}
}

// GetProtocol retrieves directory data for a single protocol slug.
func (c *DirectoryClient) GetProtocol(ctx context.Context, slug string) (*model.DirectoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/protocol/"+url.PathEscape(slug), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	logrus.Debugf("Fetching protocol directory entry for %s", slug)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching protocol %s: %w", slug, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("directory API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Name      string             `json:"name"`
		TVL       float64            `json:"tvl"`
		ChainTvls map[string]float64 `json:"chainTvls"`
		Tokens    map[string]float64 `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	entry := &model.DirectoryEntry{
		Name:  response.Name,
		Slug:  slug,
		TVL:   response.TVL,
		Chain: c.chain,
	}
	if chainTVL, ok := response.ChainTvls[c.chain]; ok {
		entry.TVL = chainTVL
	}
	return entry, nil
}

// ListProtocols retrieves the full protocol directory filtered to the
// client's chain.
func (c *DirectoryClient) ListProtocols(ctx context.Context) ([]model.DirectoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/protocols", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error listing protocols: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("directory API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var rows []struct {
		Name     string   `json:"name"`
		Slug     string   `json:"slug"`
		TVL      float64  `json:"tvl"`
		Change7d *float64 `json:"change_7d"`
		Chains   []string `json:"chains"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	var entries []model.DirectoryEntry
	for _, row := range rows {
		for _, chain := range row.Chains {
			if chain == c.chain {
				entries = append(entries, model.DirectoryEntry{
					Name:     row.Name,
					Slug:     row.Slug,
					TVL:      row.TVL,
					Chain:    c.chain,
					Change7d: row.Change7d,
				})
				break
			}
		}
	}

	logrus.Debugf("Directory listed %d protocols on chain %s", len(entries), c.chain)
	return entries, nil
}

// GetChainTVL retrieves the aggregate TVL for the client's chain.
func (c *DirectoryClient) GetChainTVL(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v2/chains", nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error fetching chain TVLs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("directory API error: status %d", resp.StatusCode)
	}

	var chains []struct {
		Name        string  `json:"name"`
		TVL         float64 `json:"tvl"`
		TokenSymbol string  `json:"tokenSymbol"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chains); err != nil {
		return 0, fmt.Errorf("error decoding response: %w", err)
	}

	for _, chain := range chains {
		if chain.Name == c.chain {
			return chain.TVL, nil
		}
	}
	return 0, fmt.Errorf("chain %s not present in directory", c.chain)
}
