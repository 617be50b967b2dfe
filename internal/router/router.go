// Package router normalizes the differing on-chain call signatures of the
// registered protocols behind one deposit/withdraw contract. Behavior is
// driven by per-protocol descriptor records, never by subclassing: the
// router branches on a protocol's type so a new protocol of an existing
// type needs only a table row.
package router

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/Satianurag/movement-defi-project-sub000/internal/registry"
	"github.com/Satianurag/movement-defi-project-sub000/internal/types"
	"github.com/sirupsen/logrus"
)

// ProtocolType drives the call-shape branch
type ProtocolType string

// Protocol call shapes
const (
	TypeLending ProtocolType = "lending"
	TypeVault   ProtocolType = "vault"
	TypeDEX     ProtocolType = "dex"
)

// Descriptor holds the module and function names for one protocol. The
// tagged-variant table below replaces per-protocol dispatch code.
type Descriptor struct {
	Type           ProtocolType
	Module         string
	DepositFn      string
	WithdrawFn     string
	SwapFn         string
	AddLiquidityFn string
}

// descriptors is the static dispatch table keyed by protocol slug
var descriptors = map[string]Descriptor{
	"echelon": {
		Type:       TypeLending,
		Module:     "lending",
		DepositFn:  "supply",
		WithdrawFn: "withdraw",
	},
	"meridian": {
		Type:           TypeDEX,
		Module:         "pool",
		DepositFn:      "add_liquidity_single",
		WithdrawFn:     "remove_liquidity",
		SwapFn:         "swap_exact_in",
		AddLiquidityFn: "add_liquidity",
	},
	"canopy": {
		Type:       TypeVault,
		Module:     "vault",
		DepositFn:  "deposit",
		WithdrawFn: "withdraw",
	},
	"mirage": {
		Type:       TypeLending,
		Module:     "cdp",
		DepositFn:  "deposit_collateral",
		WithdrawFn: "withdraw_collateral",
	},
	"trufin": {
		Type:       TypeLending,
		Module:     "staking",
		DepositFn:  "stake",
		WithdrawFn: "unstake",
	},
}

// StepError labels a transaction failure with the step that produced it so
// partial-completion states stay diagnosable.
type StepError struct {
	Step types.Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Submitter signs and submits a built call descriptor. The router treats it
// as opaque; retry policy belongs to the submitter, not this layer.
type Submitter interface {
	Submit(ctx context.Context, sender string, payload model.EntryFunctionPayload) (model.TxResult, error)
}

// Router dispatches user intents to protocol-specific call signatures.
type Router struct {
	reg       *registry.Registry
	submitter Submitter
}

// New creates a router over the registry and submission collaborator.
func New(reg *registry.Registry, submitter Submitter) *Router {
	return &Router{reg: reg, submitter: submitter}
}

// normalize maps unrecognized slugs to the documented default. Unknown
// classifications are expected with unregistered assets and must not panic
// the routing path.
func normalize(slug string) (string, Descriptor) {
	if desc, ok := descriptors[slug]; ok {
		return slug, desc
	}
	logrus.Warnf("Unknown protocol slug %q, routing to default %q", slug, registry.DefaultSlug)
	return registry.DefaultSlug, descriptors[registry.DefaultSlug]
}

// Deposit routes a deposit intent to the correct protocol call.
func (r *Router) Deposit(ctx context.Context, slug, asset string, amount uint64, user string) (model.TxResult, error) {
	return r.execute(ctx, types.StepDeposit, slug, asset, amount, user, func(d Descriptor) string {
		return d.DepositFn
	})
}

// Withdraw routes a withdraw intent to the correct protocol call.
func (r *Router) Withdraw(ctx context.Context, slug, asset string, amount uint64, user string) (model.TxResult, error) {
	return r.execute(ctx, types.StepWithdraw, slug, asset, amount, user, func(d Descriptor) string {
		return d.WithdrawFn
	})
}

// execute builds the uniform entry-function call for one intent and submits
// it. Vault-type protocols require the exact vault address as the leading
// argument; a missing vault address is a hard error with full context.
func (r *Router) execute(ctx context.Context, step types.Step, slug, asset string, amount uint64, user string, fn func(Descriptor) string) (model.TxResult, error) {
	slug, desc := normalize(slug)

	protocol, ok := r.reg.Protocol(slug)
	if !ok {
		return model.TxResult{}, fmt.Errorf("protocol %q missing from registry", slug)
	}

	payload := model.EntryFunctionPayload{
		Function:      fmt.Sprintf("%s::%s::%s", protocol.ModuleAddress, desc.Module, fn(desc)),
		TypeArguments: []string{asset},
	}

	switch desc.Type {
	case TypeVault:
		vaultAddr, err := r.reg.ResolveVault(asset)
		if err != nil {
			return model.TxResult{}, fmt.Errorf("resolving %s %s for asset %s: %w", slug, step, asset, err)
		}
		payload.Arguments = []string{vaultAddr, strconv.FormatUint(amount, 10)}
	default:
		payload.Arguments = []string{strconv.FormatUint(amount, 10)}
	}

	logrus.WithFields(logrus.Fields{
		"protocol": slug,
		"step":     step,
		"asset":    asset,
		"amount":   amount,
	}).Info("Dispatching protocol call")

	result, err := r.submitter.Submit(ctx, user, payload)
	if err != nil {
		return model.TxResult{}, &StepError{Step: step, Err: err}
	}
	return result, nil
}

// Swap submits an exact-in swap through the DEX protocol.
func (r *Router) Swap(ctx context.Context, tokenIn, tokenOut string, amount *big.Int, user string) (model.TxResult, error) {
	desc := descriptors["meridian"]
	protocol, _ := r.reg.Protocol("meridian")

	payload := model.EntryFunctionPayload{
		Function:      fmt.Sprintf("%s::%s::%s", protocol.ModuleAddress, desc.Module, desc.SwapFn),
		TypeArguments: []string{tokenIn, tokenOut},
		Arguments:     []string{amount.String()},
	}

	result, err := r.submitter.Submit(ctx, user, payload)
	if err != nil {
		return model.TxResult{}, &StepError{Step: types.StepSwap, Err: err}
	}
	return result, nil
}

// AddLiquidity submits a two-sided liquidity add through the DEX protocol.
func (r *Router) AddLiquidity(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int, user string) (model.TxResult, error) {
	desc := descriptors["meridian"]
	protocol, _ := r.reg.Protocol("meridian")

	payload := model.EntryFunctionPayload{
		Function:      fmt.Sprintf("%s::%s::%s", protocol.ModuleAddress, desc.Module, desc.AddLiquidityFn),
		TypeArguments: []string{tokenIn, tokenOut},
		Arguments:     []string{amountIn.String()},
	}

	result, err := r.submitter.Submit(ctx, user, payload)
	if err != nil {
		return model.TxResult{}, &StepError{Step: types.StepAddLiquidity, Err: err}
	}
	return result, nil
}
