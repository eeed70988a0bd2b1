package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/fullmath"
	"github.com/defistate/clmm-go/liquiditymath"
	"github.com/defistate/clmm-go/swapmath"
	"github.com/defistate/clmm-go/tickmath"
)

// SwapExact0For1 swaps exactly amountIn of token0 for as much token1 as the
// curve yields. The recipient pays the input during its callback; the output
// is paid only after the pair has verified the input arrived.
func (p *Pair) SwapExact0For1(ctx context.Context, sender common.Address, amountIn *uint256.Int, to Recipient, data []byte) (amount0, amount1 *big.Int, err error) {
	return p.swap(ctx, sender, true, amountIn.ToBig(), to, data)
}

// Swap0ForExact1 swaps token0 for exactly amountOut of token1.
func (p *Pair) Swap0ForExact1(ctx context.Context, sender common.Address, amountOut *uint256.Int, to Recipient, data []byte) (amount0, amount1 *big.Int, err error) {
	return p.swap(ctx, sender, true, new(big.Int).Neg(amountOut.ToBig()), to, data)
}

// SwapExact1For0 swaps exactly amountIn of token1 for token0.
func (p *Pair) SwapExact1For0(ctx context.Context, sender common.Address, amountIn *uint256.Int, to Recipient, data []byte) (amount0, amount1 *big.Int, err error) {
	return p.swap(ctx, sender, false, amountIn.ToBig(), to, data)
}

// Swap1ForExact0 swaps token1 for exactly amountOut of token0.
func (p *Pair) Swap1ForExact0(ctx context.Context, sender common.Address, amountOut *uint256.Int, to Recipient, data []byte) (amount0, amount1 *big.Int, err error) {
	return p.swap(ctx, sender, false, new(big.Int).Neg(amountOut.ToBig()), to, data)
}

// stagedCrossing defers a tick's outside-counter flip to commit time,
// remembering the in-direction fee growth at the moment of crossing.
type stagedCrossing struct {
	tick   int
	growth uint256.Int
}

// swap runs the step loop against local state, settles tokens through the
// recipient callback, then commits. amountSpecified is positive for exact
// input, negative for exact output; the price limit is the open extreme of
// the travel direction.
func (p *Pair) swap(ctx context.Context, sender common.Address, zeroForOne bool, amountSpecified *big.Int, to Recipient, data []byte) (amount0, amount1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		p.metrics.observeError("swap")
		return nil, nil, err
	}
	defer p.unlock()

	now := p.clock()
	exactIn := amountSpecified.Sign() >= 0

	limit := new(uint256.Int)
	if zeroForOne {
		limit.AddUint64(tickmath.MIN_SQRT_RATIO, 1)
	} else {
		limit.SubUint64(tickmath.MAX_SQRT_RATIO, 1)
	}

	// Working copies; slot0 and the globals stay untouched until commit.
	sqrtPrice := new(uint256.Int).Set(&p.slot0.sqrtPriceX96)
	tick := p.slot0.tick
	liquidity := new(uint256.Int).Set(&p.liquidity)
	feeGrowth := new(uint256.Int)
	if zeroForOne {
		feeGrowth.Set(&p.feeGrowthGlobal0X128)
	} else {
		feeGrowth.Set(&p.feeGrowthGlobal1X128)
	}

	remaining := new(big.Int).Set(amountSpecified)
	calculated := new(big.Int)
	var crossings []stagedCrossing

	var (
		stepNext, stepIn, stepOut, stepFee uint256.Int
		nextRatio, target, growthDelta     uint256.Int
	)
	steps := 0
	for remaining.Sign() != 0 && !sqrtPrice.Eq(limit) {
		steps++
		stepStart := new(uint256.Int).Set(sqrtPrice)

		nextTick, found := p.ticks.NextInitialized(tick, zeroForOne)
		if !found {
			// Nothing left in the travel direction: run to the edge of the
			// tick domain so the price can reach the limit.
			if zeroForOne {
				nextTick = tickmath.MIN_TICK
			} else {
				nextTick = tickmath.MAX_TICK
			}
		}
		if nextTick < tickmath.MIN_TICK {
			nextTick = tickmath.MIN_TICK
		} else if nextTick > tickmath.MAX_TICK {
			nextTick = tickmath.MAX_TICK
		}
		if err := tickmath.GetSqrtRatioAtTick(&nextRatio, nextTick); err != nil {
			return nil, nil, err
		}

		target.Set(&nextRatio)
		if zeroForOne {
			if nextRatio.Lt(limit) {
				target.Set(limit)
			}
		} else {
			if nextRatio.Gt(limit) {
				target.Set(limit)
			}
		}

		if err := swapmath.ComputeSwapStep(&stepNext, &stepIn, &stepOut, &stepFee,
			stepStart, &target, liquidity, remaining, p.fee); err != nil {
			return nil, nil, err
		}
		sqrtPrice.Set(&stepNext)

		if exactIn {
			consumed := new(uint256.Int).Add(&stepIn, &stepFee)
			remaining.Sub(remaining, consumed.ToBig())
			calculated.Add(calculated, stepOut.ToBig())
		} else {
			remaining.Add(remaining, stepOut.ToBig())
			calculated.Add(calculated, new(uint256.Int).Add(&stepIn, &stepFee).ToBig())
		}

		if !liquidity.IsZero() && !stepFee.IsZero() {
			if err := fullmath.MulDiv(&growthDelta, &stepFee, fullmath.Q128, liquidity); err != nil {
				return nil, nil, err
			}
			feeGrowth.Add(feeGrowth, &growthDelta)
		}

		if sqrtPrice.Eq(&nextRatio) {
			// The step travelled to the discovered boundary: the tick
			// transition fires exactly once, here.
			if info, ok := p.ticks.Get(nextTick); ok {
				staged := stagedCrossing{tick: nextTick}
				staged.growth.Set(feeGrowth)
				crossings = append(crossings, staged)

				net := info.LiquidityNet
				if zeroForOne {
					net = new(big.Int).Neg(net)
				}
				if err := liquiditymath.AddDelta(liquidity, liquidity, net); err != nil {
					return nil, nil, err
				}
			}
			if zeroForOne {
				tick = nextTick - 1
			} else {
				tick = nextTick
			}
		} else if !sqrtPrice.Eq(stepStart) {
			tick, err = tickmath.GetTickAtSqrtRatio(sqrtPrice)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	amount0, amount1 = settleAmounts(zeroForOne, exactIn, amountSpecified, remaining, calculated)

	// Let the recipient cover the input during the callback and verify by
	// balance; the output leaves the pair only once the input is in.
	inputToken, owed, shortfallErr := p.inputSide(zeroForOne, amount0, amount1)
	var balanceBefore *uint256.Int
	if owed.Sign() > 0 {
		balanceBefore, err = inputToken.BalanceOf(ctx, p.pairAddress)
		if err != nil {
			return nil, nil, err
		}
	}
	if cb, ok := to.(SwapCallback); ok {
		if err := cb.OnSwap(ctx, sender, new(big.Int).Set(amount0), new(big.Int).Set(amount1), data); err != nil {
			p.metrics.observeError("swap")
			return nil, nil, fmt.Errorf("swap callback: %w", err)
		}
	}
	if owed.Sign() > 0 {
		balanceAfter, err := inputToken.BalanceOf(ctx, p.pairAddress)
		if err != nil {
			return nil, nil, err
		}
		required, _ := uint256.FromBig(owed)
		required.Add(required, balanceBefore)
		if balanceAfter.Lt(required) {
			p.metrics.observeError("swap")
			return nil, nil, shortfallErr
		}
	}
	if err := p.payOutSigned(ctx, to.Address(), amount0, amount1); err != nil {
		p.metrics.observeError("swap")
		return nil, nil, err
	}

	// Commit: flip staged crossings with the growth captured at crossing
	// time for the in-direction token and the final global for the other.
	for _, staged := range crossings {
		if zeroForOne {
			p.ticks.Cross(staged.tick, &staged.growth, &p.feeGrowthGlobal1X128, now)
		} else {
			p.ticks.Cross(staged.tick, &p.feeGrowthGlobal0X128, &staged.growth, now)
		}
	}
	p.slot0.sqrtPriceX96.Set(sqrtPrice)
	p.slot0.tick = tick
	p.liquidity.Set(liquidity)
	if zeroForOne {
		p.feeGrowthGlobal0X128.Set(feeGrowth)
	} else {
		p.feeGrowthGlobal1X128.Set(feeGrowth)
	}
	elapsed := int64(now - p.slot0.blockTimestampLast)
	p.slot0.tickCumulativeLast = wrap56(p.slot0.tickCumulativeLast + int64(tick)*elapsed)
	p.slot0.blockTimestampLast = now

	p.logger.Debug("swap", "sender", sender.Hex(), "recipient", to.Address().Hex(),
		"amount0", amount0.String(), "amount1", amount1.String(),
		"sqrtPriceX96", sqrtPrice.Dec(), "tick", tick, "steps", steps)
	p.metrics.observeOp("swap")
	p.metrics.observeSwap(steps, len(crossings))
	p.observeState()
	p.publish(SwapEvent{
		Sender: sender, Recipient: to.Address(),
		Amount0: new(big.Int).Set(amount0), Amount1: new(big.Int).Set(amount1),
		SqrtPriceX96: new(uint256.Int).Set(sqrtPrice), Tick: tick,
	})
	return amount0, amount1, nil
}

// settleAmounts maps the loop's remaining/calculated totals onto the signed
// per-token deltas: positive owed to the pair, negative owed to the
// recipient.
func settleAmounts(zeroForOne, exactIn bool, amountSpecified, remaining, calculated *big.Int) (amount0, amount1 *big.Int) {
	consumed := new(big.Int).Sub(amountSpecified, remaining)
	signedCalc := new(big.Int).Set(calculated)
	if exactIn {
		signedCalc.Neg(signedCalc)
	}
	if zeroForOne == exactIn {
		return consumed, signedCalc
	}
	return signedCalc, consumed
}

// payOutSigned transfers the negative (owed-to-recipient) deltas.
func (p *Pair) payOutSigned(ctx context.Context, recipient common.Address, amount0, amount1 *big.Int) error {
	out0, out1 := new(uint256.Int), new(uint256.Int)
	if amount0.Sign() < 0 {
		out0, _ = uint256.FromBig(new(big.Int).Neg(amount0))
	}
	if amount1.Sign() < 0 {
		out1, _ = uint256.FromBig(new(big.Int).Neg(amount1))
	}
	return p.payOut(ctx, recipient, out0, out1)
}

// inputSide returns the token owed by the recipient, the owed amount, and
// the matching shortfall error.
func (p *Pair) inputSide(zeroForOne bool, amount0, amount1 *big.Int) (Token, *big.Int, error) {
	if zeroForOne {
		return p.token0, amount0, ErrInsufficientInput0
	}
	return p.token1, amount1, ErrInsufficientInput1
}
