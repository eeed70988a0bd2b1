package swapmath

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/fullmath"
	"github.com/defistate/clmm-go/sqrtpricemath"
)

// FeeDenominator is the fee unit: hundredths of a bip, 1e6 per whole.
const FeeDenominator = 1_000_000

// swapMath holds reusable integers for one step so the swap loop stays
// allocation-free. Instances are managed by a sync.Pool.
type swapMath struct {
	sqrtRatioNextX96 *uint256.Int
	amountIn         *uint256.Int
	amountOut        *uint256.Int
	feeAmount        *uint256.Int

	remainingAbs     *uint256.Int
	remainingLessFee *uint256.Int
	temp             *uint256.Int
}

var pool = sync.Pool{
	New: func() any {
		return &swapMath{
			sqrtRatioNextX96: new(uint256.Int),
			amountIn:         new(uint256.Int),
			amountOut:        new(uint256.Int),
			feeAmount:        new(uint256.Int),
			remainingAbs:     new(uint256.Int),
			remainingLessFee: new(uint256.Int),
			temp:             new(uint256.Int),
		}
	},
}

// ComputeSwapStep computes one swap step between two prices at fixed
// liquidity and fee. Direction is inferred from the price ordering;
// amountRemaining >= 0 means exact input, negative means exact output.
// Results are written into the four destination pointers: the price after
// the step, the input consumed (fee excluded), the output produced, and the
// fee taken. Amounts paid in round up, amounts paid out round down.
func ComputeSwapStep(
	sqrtRatioNextX96, amountIn, amountOut, feeAmount *uint256.Int,
	sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity *uint256.Int,
	amountRemaining *big.Int,
	feePips uint64,
) error {
	s := pool.Get().(*swapMath)
	defer pool.Put(s)

	if err := s.computeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining, feePips); err != nil {
		return err
	}

	sqrtRatioNextX96.Set(s.sqrtRatioNextX96)
	amountIn.Set(s.amountIn)
	amountOut.Set(s.amountOut)
	feeAmount.Set(s.feeAmount)
	return nil
}

func (s *swapMath) computeSwapStep(
	sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity *uint256.Int,
	amountRemaining *big.Int,
	feePips uint64,
) error {
	zeroForOne := !sqrtRatioCurrentX96.Lt(sqrtRatioTargetX96)
	exactIn := amountRemaining.Sign() >= 0

	s.amountIn.Clear()
	s.amountOut.Clear()
	s.feeAmount.Clear()
	if overflow := s.remainingAbs.SetFromBig(new(big.Int).Abs(amountRemaining)); overflow {
		return fullmath.ErrOverflow
	}

	var err error
	if exactIn {
		s.temp.SetUint64(FeeDenominator - feePips)
		if err = fullmath.MulDiv(s.remainingLessFee, s.remainingAbs, s.temp, uint256.NewInt(FeeDenominator)); err != nil {
			return err
		}

		if zeroForOne {
			err = sqrtpricemath.GetAmount0Delta(s.amountIn, sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			err = sqrtpricemath.GetAmount1Delta(s.amountIn, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if err != nil {
			return err
		}

		if !s.remainingLessFee.Lt(s.amountIn) {
			s.sqrtRatioNextX96.Set(sqrtRatioTargetX96)
		} else if err = sqrtpricemath.GetNextSqrtPriceFromInput(s.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, s.remainingLessFee, zeroForOne); err != nil {
			return err
		}
	} else {
		if zeroForOne {
			err = sqrtpricemath.GetAmount1Delta(s.amountOut, sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			err = sqrtpricemath.GetAmount0Delta(s.amountOut, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		if err != nil {
			return err
		}

		if !s.remainingAbs.Lt(s.amountOut) {
			s.sqrtRatioNextX96.Set(sqrtRatioTargetX96)
		} else if err = sqrtpricemath.GetNextSqrtPriceFromOutput(s.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, s.remainingAbs, zeroForOne); err != nil {
			return err
		}
	}

	max := sqrtRatioTargetX96.Eq(s.sqrtRatioNextX96)

	// Recompute both legs against the price actually reached.
	if zeroForOne {
		if !(max && exactIn) {
			if err = sqrtpricemath.GetAmount0Delta(s.amountIn, s.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true); err != nil {
				return err
			}
		}
		if !(max && !exactIn) {
			if err = sqrtpricemath.GetAmount1Delta(s.amountOut, s.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false); err != nil {
				return err
			}
		}
	} else {
		if !(max && exactIn) {
			if err = sqrtpricemath.GetAmount1Delta(s.amountIn, sqrtRatioCurrentX96, s.sqrtRatioNextX96, liquidity, true); err != nil {
				return err
			}
		}
		if !(max && !exactIn) {
			if err = sqrtpricemath.GetAmount0Delta(s.amountOut, sqrtRatioCurrentX96, s.sqrtRatioNextX96, liquidity, false); err != nil {
				return err
			}
		}
	}

	// The paid-out leg never exceeds what was asked for.
	if !exactIn && s.amountOut.Gt(s.remainingAbs) {
		s.amountOut.Set(s.remainingAbs)
	}

	if exactIn && !s.sqrtRatioNextX96.Eq(sqrtRatioTargetX96) {
		// Partial fill: whatever input is left over is the fee.
		s.feeAmount.Sub(s.remainingAbs, s.amountIn)
	} else {
		s.temp.SetUint64(FeeDenominator - feePips)
		if err = fullmath.MulDivRoundingUp(s.feeAmount, s.amountIn, uint256.NewInt(feePips), s.temp); err != nil {
			return err
		}
	}

	return nil
}
