// Package zap computes the optimal single-sided-liquidity swap split for a
// constant-product pool with a 0.3% fee and drives the two-step
// swap-then-add-liquidity sequence. All arithmetic is fixed-point integer
// math on big.Int; precision loss here directly costs user funds.
package zap

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrAmountTooSmall rejects deposits too small to split against the pool's
// fee and rounding. No transaction is attempted after this error.
var ErrAmountTooSmall = errors.New("zap amount too small to produce a positive swap")

// Swapper is the routing collaborator the executor drives. Each method
// failure arrives labeled with its step identifier.
type Swapper interface {
	Swap(ctx context.Context, tokenIn, tokenOut string, amount *big.Int, user string) (model.TxResult, error)
	AddLiquidity(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int, user string) (model.TxResult, error)
}

// Fixed-point coefficients of the optimal-swap quadratic
// 1994·s² + 3988000·s·r − 3988000·a·r = 0.
var (
	coefC   = big.NewInt(3988000)
	coefFee = big.NewInt(7976)
	coefDiv = big.NewInt(3988)
	quadS2  = big.NewInt(1994)
	quadLin = big.NewInt(3988000)
)

// Isqrt returns floor(sqrt(x)) for any non-negative integer via Newton's
// method, with Isqrt(0) = 0. Panics on negative input since a negative
// radicand can only come from a programming error upstream.
func Isqrt(x *big.Int) *big.Int {
	if x.Sign() < 0 {
		panic("isqrt of negative number")
	}
	if x.Sign() == 0 {
		return big.NewInt(0)
	}

	// Initial guess: 2^(ceil(bits/2)) >= sqrt(x)
	guess := new(big.Int).Lsh(big.NewInt(1), uint(x.BitLen()+1)/2)
	for {
		// next = (guess + x/guess) / 2
		next := new(big.Int).Div(x, guess)
		next.Add(next, guess)
		next.Rsh(next, 1)
		if next.Cmp(guess) >= 0 {
			return guess
		}
		guess = next
	}
}

// OptimalSwapAmount returns the positive root of the defining quadratic:
// the amount of tokenIn to swap so that what remains matches the pool
// ratio after the swap's own price impact. This is the closed-form
// solution, not an approximation.
func OptimalSwapAmount(amountIn, reserveIn *big.Int) *big.Int {
	// C = 3988000·r
	c := new(big.Int).Mul(coefC, reserveIn)

	// D = C·(C + 7976·a)
	d := new(big.Int).Mul(coefFee, amountIn)
	d.Add(d, c)
	d.Mul(d, c)

	// s = (isqrt(D) − C) / 3988
	s := Isqrt(d)
	s.Sub(s, c)
	return s.Div(s, coefDiv)
}

// QuadraticResidual evaluates 1994·s² + 3988000·s·r − 3988000·a·r. The
// computed swap amount is the largest integer with a non-positive residual.
func QuadraticResidual(s, amountIn, reserveIn *big.Int) *big.Int {
	term1 := new(big.Int).Mul(s, s)
	term1.Mul(term1, quadS2)

	term2 := new(big.Int).Mul(s, reserveIn)
	term2.Mul(term2, quadLin)

	term3 := new(big.Int).Mul(amountIn, reserveIn)
	term3.Mul(term3, quadLin)

	term1.Add(term1, term2)
	return term1.Sub(term1, term3)
}

// PlanZap computes the swap split for depositing amountIn of tokenIn into
// the tokenIn/tokenOut pool whose input-side reserve is reserveIn.
func PlanZap(tokenIn, tokenOut string, amountIn, reserveIn *big.Int) (*model.ZapPlan, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 {
		return nil, fmt.Errorf("reserve in must be positive")
	}

	swapAmount := OptimalSwapAmount(amountIn, reserveIn)
	if swapAmount.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}

	return &model.ZapPlan{
		TokenIn:         tokenIn,
		TokenOut:        tokenOut,
		TotalAmountIn:   new(big.Int).Set(amountIn),
		SwapAmount:      swapAmount,
		RemainingAmount: new(big.Int).Sub(amountIn, swapAmount),
	}, nil
}

// ExecuteZap runs the two-step sequence. The steps are separate signed
// transactions and are not atomic: add-liquidity runs only after the swap
// reports success, and a step-2 failure returns a partial result carrying
// the swap hash so the already-swapped balance can be recovered manually.
func ExecuteZap(ctx context.Context, plan *model.ZapPlan, swapper Swapper, user string) (*model.ZapResult, error) {
	if plan == nil || plan.SwapAmount == nil || plan.SwapAmount.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}

	swapTx, err := swapper.Swap(ctx, plan.TokenIn, plan.TokenOut, plan.SwapAmount, user)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"swap_hash": swapTx.Hash,
		"remaining": plan.RemainingAmount.String(),
	}).Info("Zap swap confirmed, adding liquidity")

	liqTx, err := swapper.AddLiquidity(ctx, plan.TokenIn, plan.TokenOut, plan.RemainingAmount, user)
	if err != nil {
		return &model.ZapResult{SwapHash: swapTx.Hash, Partial: true}, err
	}

	return &model.ZapResult{
		SwapHash:      swapTx.Hash,
		LiquidityHash: liqTx.Hash,
	}, nil
}
