// Package aggregate merges all data sources into one consistent snapshot.
// Independent fetches fan out concurrently and settle independently: a
// failed branch degrades only its own field, while the mandatory
// network-identity call is the single fetch allowed to fail the snapshot.
package aggregate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Satianurag/movement-defi-project-sub000/internal/apy"
	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/Satianurag/movement-defi-project-sub000/internal/registry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// ChainSource is the on-chain view-function collaborator.
type ChainSource interface {
	LedgerInfo(ctx context.Context) (*model.NetworkInfo, error)
	EchelonMarkets(ctx context.Context) ([]model.Market, error)
	MeridianPools(ctx context.Context) ([]model.Market, error)
	CanopyVaults(ctx context.Context) ([]model.Vault, error)
	TruFinStaked(ctx context.Context) (float64, error)
	MirageDebt(ctx context.Context) (float64, error)
	AccountBalances(ctx context.Context, wallet string) ([]model.Balance, error)
}

// DirectorySource lists protocol-level TVL data.
type DirectorySource interface {
	ListProtocols(ctx context.Context) ([]model.DirectoryEntry, error)
}

// YieldsSource lists yield pools, optionally filtered to one project.
type YieldsSource interface {
	Pools(ctx context.Context, project string) ([]model.PoolStat, error)
}

// PriceSource resolves USD quotes per symbol with settle-all semantics.
type PriceSource interface {
	GetPrices(ctx context.Context, symbols []string) map[string]model.PriceQuote
}

// priceSymbols are the quotes joined into every snapshot
var priceSymbols = []string{"MOVE", "USDC", "USDT", "WETH"}

// Pipeline assembles aggregated snapshots.
type Pipeline struct {
	reg       *registry.Registry
	chain     ChainSource
	directory DirectorySource
	yields    YieldsSource
	prices    PriceSource
	engine    *apy.Engine
	timeout   time.Duration
}

// New creates a snapshot pipeline over the given sources.
func New(reg *registry.Registry, chain ChainSource, directory DirectorySource, yields YieldsSource, prices PriceSource, engine *apy.Engine, timeout time.Duration) *Pipeline {
	if engine == nil {
		engine = apy.New()
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Pipeline{
		reg:       reg,
		chain:     chain,
		directory: directory,
		yields:    yields,
		prices:    prices,
		engine:    engine,
		timeout:   timeout,
	}
}

// protocolDetail is the on-chain data one detail branch produced
type protocolDetail struct {
	tvl     float64
	markets []model.Market
	vaults  []model.Vault
}

// GetSnapshot builds the merged view. Only a failure of the network-identity
// fetch surfaces to the caller; every other branch degrades to a nil/empty
// field. When wallet is non-empty the user's balances are fetched after the
// base snapshot and merged in; their failure never invalidates the snapshot.
func (p *Pipeline) GetSnapshot(ctx context.Context, wallet string) (*model.AggregatedSnapshot, error) {
	ctx, span := otel.Tracer("aggregate").Start(ctx, "GetSnapshot")
	defer span.End()

	network, err := p.fetchLedger(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("network identity fetch failed: %w", err)
	}

	snapshot := &model.AggregatedSnapshot{
		Network:   *network,
		Protocols: make(map[string]*model.ProtocolSnapshot),
		Timestamp: time.Now().UTC(),
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		details = make(map[string]*protocolDetail)
		pools   []model.PoolStat
	)

	// branch wraps one concurrent fetch so its failure degrades only its
	// own field
	branch := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			branchCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			if err := fn(branchCtx); err != nil {
				logrus.Warnf("Snapshot branch %s degraded: %v", name, err)
				mu.Lock()
				if _, isProtocol := p.reg.Protocol(name); isProtocol {
					snapshot.Protocols[name] = nil
				}
				mu.Unlock()
			}
		}()
	}

	branch("directory", func(ctx context.Context) error {
		entries, err := p.directory.ListProtocols(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		snapshot.AllProtocols = entries
		mu.Unlock()
		return nil
	})

	branch("yields", func(ctx context.Context) error {
		listing, err := p.yields.Pools(ctx, "")
		if err != nil {
			return err
		}
		mu.Lock()
		pools = listing
		mu.Unlock()
		return nil
	})

	branch("prices", func(ctx context.Context) error {
		quotes := p.prices.GetPrices(ctx, priceSymbols)
		mu.Lock()
		snapshot.Prices = quotes
		mu.Unlock()
		return nil
	})

	branch("echelon", func(ctx context.Context) error {
		markets, err := p.chain.EchelonMarkets(ctx)
		if err != nil {
			return err
		}
		var tvl float64
		for _, m := range markets {
			tvl += m.TotalSupply
		}
		mu.Lock()
		details["echelon"] = &protocolDetail{tvl: tvl, markets: markets}
		mu.Unlock()
		return nil
	})

	branch("canopy", func(ctx context.Context) error {
		vaults, err := p.chain.CanopyVaults(ctx)
		if err != nil {
			return err
		}
		var tvl float64
		for _, v := range vaults {
			tvl += v.TVL
		}
		mu.Lock()
		details["canopy"] = &protocolDetail{tvl: tvl, vaults: vaults}
		mu.Unlock()
		return nil
	})

	branch("trufin", func(ctx context.Context) error {
		staked, err := p.chain.TruFinStaked(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		details["trufin"] = &protocolDetail{tvl: staked}
		mu.Unlock()
		return nil
	})

	branch("mirage", func(ctx context.Context) error {
		debt, err := p.chain.MirageDebt(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		details["mirage"] = &protocolDetail{tvl: debt}
		mu.Unlock()
		return nil
	})

	branch("meridian", func(ctx context.Context) error {
		ammPools, err := p.chain.MeridianPools(ctx)
		if err != nil {
			return err
		}
		var tvl float64
		for _, pool := range ammPools {
			tvl += pool.TotalSupply
		}
		mu.Lock()
		details["meridian"] = &protocolDetail{tvl: tvl, markets: ammPools}
		mu.Unlock()
		return nil
	})

	wg.Wait()

	p.assemble(snapshot, details, pools)

	if wallet != "" {
		p.joinPosition(ctx, snapshot, wallet)
	}

	return snapshot, nil
}

// fetchLedger performs the mandatory chain-identity call with its own
// bounded timeout.
func (p *Pipeline) fetchLedger(ctx context.Context) (*model.NetworkInfo, error) {
	ledgerCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.chain.LedgerInfo(ledgerCtx)
}

// assemble turns per-branch details plus the shared pool listing into
// per-protocol snapshots with fresh APY estimates.
func (p *Pipeline) assemble(snapshot *model.AggregatedSnapshot, details map[string]*protocolDetail, pools []model.PoolStat) {
	directoryBySlug := make(map[string]model.DirectoryEntry, len(snapshot.AllProtocols))
	for _, entry := range snapshot.AllProtocols {
		directoryBySlug[entry.Slug] = entry
	}

	poolsByProject := make(map[string][]model.PoolStat)
	for _, pool := range pools {
		poolsByProject[pool.Project] = append(poolsByProject[pool.Project], pool)
	}

	for _, protocol := range p.reg.Protocols() {
		slug := protocol.Slug

		detail, ok := details[slug]
		if !ok {
			// branch already recorded its degradation as a nil entry
			if _, present := snapshot.Protocols[slug]; !present {
				snapshot.Protocols[slug] = nil
			}
			continue
		}

		ec := apy.Context{
			Category: protocol.Category,
			Pools:    poolsByProject[slug],
		}
		for _, vault := range detail.vaults {
			ec.Strategies = append(ec.Strategies, vault.Strategies...)
		}

		tvl := detail.tvl
		if entry, ok := directoryBySlug[slug]; ok {
			if entry.TVL > 0 {
				tvl = entry.TVL
			}
			ec.Change7d = entry.Change7d
		}

		snapshot.Protocols[slug] = &model.ProtocolSnapshot{
			Protocol: protocol,
			TVL:      tvl,
			Markets:  detail.markets,
			Vaults:   detail.vaults,
			APY:      p.engine.Estimate(ec),
		}
	}
}

// joinPosition merges the wallet's balances and USD valuation into the
// snapshot. Runs after the base snapshot on purpose; any failure here is
// logged and leaves the snapshot intact.
func (p *Pipeline) joinPosition(ctx context.Context, snapshot *model.AggregatedSnapshot, wallet string) {
	balanceCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	balances, err := p.chain.AccountBalances(balanceCtx, wallet)
	if err != nil {
		logrus.Warnf("Balance fetch failed for %s: %v", wallet, err)
		return
	}

	position := &model.UserPosition{
		Wallet:   wallet,
		Balances: balances,
	}
	for _, balance := range balances {
		if quote, ok := snapshot.Prices[symbolForAsset(balance.Asset)]; ok {
			position.TotalValueUSD += balance.Amount * quote.USD
		}
	}
	snapshot.Position = position
}

// symbolForAsset maps a Move asset-type string to a quoted ticker
func symbolForAsset(assetType string) string {
	switch {
	case assetType == registry.NativeCoinType:
		return "MOVE"
	case strings.Contains(assetType, "::usdc::"):
		return "USDC"
	case strings.Contains(assetType, "::usdt::"):
		return "USDT"
	case strings.Contains(assetType, "::weth::"):
		return "WETH"
	default:
		return ""
	}
}
