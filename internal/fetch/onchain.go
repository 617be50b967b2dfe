package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/Satianurag/movement-defi-project-sub000/internal/registry"
	"github.com/sirupsen/logrus"
)

// FullnodeClient talks to a Movement fullnode REST endpoint. The engine
// depends only on the view-call shape {function, type_arguments, arguments}
// and the account-resource listing, never on SDK internals.
type FullnodeClient struct {
	baseURL    string
	httpClient *http.Client
	reg        *registry.Registry
}

// NewFullnodeClient creates a new fullnode client.
func NewFullnodeClient(baseURL string, reg *registry.Registry) *FullnodeClient {
	return &FullnodeClient{
		baseURL:    baseURL,
		httpClient: NewHTTPClient(),
		reg:        reg,
	}
}

// LedgerInfo fetches the chain identity. This is the one mandatory call of
// the aggregation pipeline: a snapshot cannot be labeled without it.
func (c *FullnodeClient) LedgerInfo(ctx context.Context) (*model.NetworkInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching ledger info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fullnode error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		ChainID     int    `json:"chain_id"`
		BlockHeight string `json:"block_height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding ledger info: %w", err)
	}

	height, err := strconv.ParseUint(response.BlockHeight, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed block height %q: %w", response.BlockHeight, err)
	}

	return &model.NetworkInfo{
		ChainID:     response.ChainID,
		BlockHeight: height,
		Name:        "movement",
	}, nil
}

// View executes a Move view function and returns the ordered result array.
func (c *FullnodeClient) View(ctx context.Context, request model.ViewRequest) ([]json.RawMessage, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("error encoding view request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/view", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logrus.Debugf("View call %s", request.Function)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing view %s: %w", request.Function, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("view %s failed: status %d, body: %s", request.Function, resp.StatusCode, string(body))
	}

	var result []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding view result: %w", err)
	}
	return result, nil
}

// coinStorePrefix marks coin balance resources in an account listing
const coinStorePrefix = "0x1::coin::CoinStore<"

// AccountBalances lists a wallet's coin balances with protocol attribution
// inferred from the asset-type string.
func (c *FullnodeClient) AccountBalances(ctx context.Context, wallet string) ([]model.Balance, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/accounts/"+wallet+"/resources", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching resources for %s: %w", wallet, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fullnode error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var resources []struct {
		Type string `json:"type"`
		Data struct {
			Coin struct {
				Value string `json:"value"`
			} `json:"coin"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return nil, fmt.Errorf("error decoding resources: %w", err)
	}

	var balances []model.Balance
	for _, res := range resources {
		if len(res.Type) <= len(coinStorePrefix) || res.Type[:len(coinStorePrefix)] != coinStorePrefix {
			continue
		}
		assetType := res.Type[len(coinStorePrefix) : len(res.Type)-1]

		raw, err := strconv.ParseUint(res.Data.Coin.Value, 10, 64)
		if err != nil {
			logrus.Warnf("Malformed coin value for %s: %v", assetType, err)
			continue
		}

		const decimals = 8
		balances = append(balances, model.Balance{
			Asset:    assetType,
			Amount:   float64(raw) / math.Pow10(decimals),
			Decimals: decimals,
			Protocol: c.reg.Classify(assetType),
		})
	}
	return balances, nil
}

// EchelonMarkets reads the lending markets from the Echelon view functions.
func (c *FullnodeClient) EchelonMarkets(ctx context.Context) ([]model.Market, error) {
	result, err := c.View(ctx, model.ViewRequest{
		Function:      registry.EchelonAddress + "::lending::all_markets",
		TypeArguments: []string{},
		Arguments:     []string{},
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("echelon markets view returned no data")
	}

	var rows []struct {
		Asset       string `json:"asset"`
		Address     string `json:"address"`
		TotalSupply string `json:"total_supply"`
		TotalBorrow string `json:"total_borrow"`
		Decimals    int    `json:"decimals"`
	}
	if err := json.Unmarshal(result[0], &rows); err != nil {
		return nil, fmt.Errorf("error decoding echelon markets: %w", err)
	}

	markets := make([]model.Market, 0, len(rows))
	for _, row := range rows {
		markets = append(markets, model.Market{
			Asset:       row.Asset,
			Address:     row.Address,
			TotalSupply: parseScaled(row.TotalSupply, row.Decimals),
			TotalBorrow: parseScaled(row.TotalBorrow, row.Decimals),
			Decimals:    row.Decimals,
		})
	}
	return markets, nil
}

// MeridianPoolReserves reads the reserves of one AMM pool. The ordered
// result is [reserve_in, reserve_out] for the given pair.
func (c *FullnodeClient) MeridianPoolReserves(ctx context.Context, tokenIn, tokenOut string) (reserveIn, reserveOut uint64, err error) {
	result, err := c.View(ctx, model.ViewRequest{
		Function:      registry.MeridianAddress + "::pool::reserves",
		TypeArguments: []string{tokenIn, tokenOut},
		Arguments:     []string{},
	})
	if err != nil {
		return 0, 0, err
	}
	if len(result) < 2 {
		return 0, 0, fmt.Errorf("meridian reserves view returned %d values, want 2", len(result))
	}

	var rawIn, rawOut string
	if err := json.Unmarshal(result[0], &rawIn); err != nil {
		return 0, 0, fmt.Errorf("error decoding reserve_in: %w", err)
	}
	if err := json.Unmarshal(result[1], &rawOut); err != nil {
		return 0, 0, fmt.Errorf("error decoding reserve_out: %w", err)
	}

	reserveIn, err = strconv.ParseUint(rawIn, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed reserve_in: %w", err)
	}
	reserveOut, err = strconv.ParseUint(rawOut, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed reserve_out: %w", err)
	}
	return reserveIn, reserveOut, nil
}

// MeridianPools reads the AMM pool listing from the Meridian view functions.
func (c *FullnodeClient) MeridianPools(ctx context.Context) ([]model.Market, error) {
	result, err := c.View(ctx, model.ViewRequest{
		Function:      registry.MeridianAddress + "::pool::all_pools",
		TypeArguments: []string{},
		Arguments:     []string{},
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("meridian pools view returned no data")
	}

	var rows []struct {
		Pair     string `json:"pair"`
		Address  string `json:"address"`
		TVL      string `json:"tvl"`
		Decimals int    `json:"decimals"`
	}
	if err := json.Unmarshal(result[0], &rows); err != nil {
		return nil, fmt.Errorf("error decoding meridian pools: %w", err)
	}

	pools := make([]model.Market, 0, len(rows))
	for _, row := range rows {
		pools = append(pools, model.Market{
			Asset:       row.Pair,
			Address:     row.Address,
			TotalSupply: parseScaled(row.TVL, row.Decimals),
			Decimals:    row.Decimals,
		})
	}
	return pools, nil
}

// rawVault is the wire shape of one vault record before normalization.
type rawVault struct {
	Asset    string `json:"asset"`
	Address  string `json:"address"`
	TVL      string `json:"tvl"`
	Debt     string `json:"total_debt"`
	Decimals int    `json:"decimals"`

	Strategies []struct {
		Address     string `json:"address"`
		TotalAsset  string `json:"total_asset"`
		TotalProfit string `json:"total_profit"`
		TotalLoss   string `json:"total_loss"`
		LastReport  int64  `json:"last_report_timestamp"`
	} `json:"strategies"`
}

// CanopyVaults reads all Canopy vaults together with their strategies.
func (c *FullnodeClient) CanopyVaults(ctx context.Context) ([]model.Vault, error) {
	result, err := c.View(ctx, model.ViewRequest{
		Function:      registry.CanopyAddress + "::vault::all_vaults",
		TypeArguments: []string{},
		Arguments:     []string{},
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("canopy vaults view returned no data")
	}

	var rows []rawVault
	if err := json.Unmarshal(result[0], &rows); err != nil {
		return nil, fmt.Errorf("error decoding canopy vaults: %w", err)
	}
	return ParseVaults(rows), nil
}

// ParseVaults normalizes raw vault records. The upstream listing can carry
// multiple records for the same asset; the record with the larger TVL wins.
// That conflict resolution is an invariant of the listing, not an error.
func ParseVaults(rows []rawVault) []model.Vault {
	byAsset := make(map[string]model.Vault)
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		vault := model.Vault{
			Asset:     row.Asset,
			Address:   row.Address,
			TVL:       parseScaled(row.TVL, row.Decimals),
			TotalDebt: parseScaled(row.Debt, row.Decimals),
			Decimals:  row.Decimals,
		}
		for _, s := range row.Strategies {
			vault.Strategies = append(vault.Strategies, model.Strategy{
				Address:             s.Address,
				TotalAsset:          parseScaled(s.TotalAsset, row.Decimals),
				TotalProfit:         parseScaled(s.TotalProfit, row.Decimals),
				TotalLoss:           parseScaled(s.TotalLoss, row.Decimals),
				LastReportTimestamp: s.LastReport,
			})
		}

		existing, seen := byAsset[row.Asset]
		if !seen {
			order = append(order, row.Asset)
			byAsset[row.Asset] = vault
			continue
		}
		if vault.TVL > existing.TVL {
			byAsset[row.Asset] = vault
		}
	}

	vaults := make([]model.Vault, 0, len(byAsset))
	for _, asset := range order {
		vaults = append(vaults, byAsset[asset])
	}
	return vaults
}

// TruFinStaked reads the total staked amount from the staking module.
func (c *FullnodeClient) TruFinStaked(ctx context.Context) (float64, error) {
	result, err := c.View(ctx, model.ViewRequest{
		Function:      registry.TruFinAddress + "::staking::total_staked",
		TypeArguments: []string{},
		Arguments:     []string{},
	})
	if err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, fmt.Errorf("staking view returned no data")
	}

	var raw string
	if err := json.Unmarshal(result[0], &raw); err != nil {
		return 0, fmt.Errorf("error decoding staked amount: %w", err)
	}
	return parseScaled(raw, 8), nil
}

// MirageDebt reads the total stablecoin debt of the CDP module.
func (c *FullnodeClient) MirageDebt(ctx context.Context) (float64, error) {
	result, err := c.View(ctx, model.ViewRequest{
		Function:      registry.MirageAddress + "::cdp::total_debt",
		TypeArguments: []string{},
		Arguments:     []string{},
	})
	if err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, fmt.Errorf("cdp view returned no data")
	}

	var raw string
	if err := json.Unmarshal(result[0], &raw); err != nil {
		return 0, fmt.Errorf("error decoding total debt: %w", err)
	}
	return parseScaled(raw, 8), nil
}

// parseScaled converts an integer-encoded on-chain amount to a float scaled
// by the asset's decimals. Malformed values degrade to zero.
func parseScaled(raw string, decimals int) float64 {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value / math.Pow10(decimals)
}
